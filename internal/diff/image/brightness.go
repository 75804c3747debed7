package image

import (
	"image"
	"math"
)

// brightnessEpsilon keeps the adjustment factor finite for all-black sources.
const brightnessEpsilon = 1e-7

// intensityChannel is the byte offset, within an RGBA pixel, of the channel
// whose average stands for the brightness of the whole image. It is blue,
// the leading channel of BGR rasters.
const intensityChannel = 2

// MeanIntensity returns the average value of the intensity channel of img.
func MeanIntensity(img *image.RGBA) float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return 0
	}

	var sum uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		rowStart := img.PixOffset(bounds.Min.X, y)
		for x := 0; x < width; x++ {
			sum += uint64(img.Pix[rowStart+x*4+intensityChannel])
		}
	}

	return float64(sum) / float64(width*height)
}

// AdjustBrightness returns a copy of source with every color channel scaled
// by referenceAvg / MeanIntensity(source). Scaled values are rounded half to
// even and saturate to [0, 255].
func AdjustBrightness(source *image.RGBA, referenceAvg float64) *image.RGBA {
	factor := referenceAvg / (MeanIntensity(source) + brightnessEpsilon)

	var table [256]uint8
	for v := range table {
		table[v] = saturate(float64(v) * factor)
	}

	bounds := source.Bounds()
	adjusted := image.NewRGBA(bounds)
	width := bounds.Dx()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		srcRowStart := source.PixOffset(bounds.Min.X, y)
		dstRowStart := adjusted.PixOffset(bounds.Min.X, y)
		for x := 0; x < width; x++ {
			s := srcRowStart + x*4
			d := dstRowStart + x*4
			adjusted.Pix[d] = table[source.Pix[s]]
			adjusted.Pix[d+1] = table[source.Pix[s+1]]
			adjusted.Pix[d+2] = table[source.Pix[s+2]]
			adjusted.Pix[d+3] = 0xff
		}
	}

	return adjusted
}

func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
