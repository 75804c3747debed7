package image

import (
	"image"
	"image/color"

	"golang.org/x/xerrors"
)

// toRaster returns a three channel working copy of img anchored at the
// origin. Gray levels are replicated into every channel. Alpha is discarded
// and every output pixel is opaque; the un-premultiplied color is kept.
func toRaster(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, xerrors.Errorf("%dx%d: %w", width, height, ErrEmptyImage)
	}

	switch img.(type) {
	case *image.Alpha, *image.Alpha16:
		return nil, xerrors.Errorf("%T: %w", img, ErrUnsupportedFormat)
	}

	raster := image.NewRGBA(image.Rect(0, 0, width, height))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			srcRowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dstRowStart := raster.PixOffset(0, y)
			for x := 0; x < width; x++ {
				v := src.Pix[srcRowStart+x]
				d := dstRowStart + x*4
				raster.Pix[d] = v
				raster.Pix[d+1] = v
				raster.Pix[d+2] = v
				raster.Pix[d+3] = 0xff
			}
		}
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			srcRowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dstRowStart := raster.PixOffset(0, y)
			for x := 0; x < width; x++ {
				s := srcRowStart + x*4
				d := dstRowStart + x*4
				raster.Pix[d] = src.Pix[s]
				raster.Pix[d+1] = src.Pix[s+1]
				raster.Pix[d+2] = src.Pix[s+2]
				raster.Pix[d+3] = 0xff
			}
		}
	case *image.RGBA:
		for y := 0; y < height; y++ {
			srcRowStart := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dstRowStart := raster.PixOffset(0, y)
			for x := 0; x < width; x++ {
				s := srcRowStart + x*4
				d := dstRowStart + x*4
				r, g, b, a := src.Pix[s], src.Pix[s+1], src.Pix[s+2], src.Pix[s+3]
				if a != 0xff {
					r, g, b = unpremultiply(r, a), unpremultiply(g, a), unpremultiply(b, a)
				}
				raster.Pix[d] = r
				raster.Pix[d+1] = g
				raster.Pix[d+2] = b
				raster.Pix[d+3] = 0xff
			}
		}
	default:
		for y := 0; y < height; y++ {
			dstRowStart := raster.PixOffset(0, y)
			for x := 0; x < width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				d := dstRowStart + x*4
				raster.Pix[d] = c.R
				raster.Pix[d+1] = c.G
				raster.Pix[d+2] = c.B
				raster.Pix[d+3] = 0xff
			}
		}
	}

	return raster, nil
}

func unpremultiply(c uint8, a uint8) uint8 {
	if a == 0 {
		return 0
	}
	return uint8((uint32(c)*0xff + uint32(a)/2) / uint32(a))
}
