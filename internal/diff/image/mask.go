package image

import (
	"image"
	"runtime"
	"sync"

	"golang.org/x/xerrors"
)

// CombinedDifference returns, for every pixel, the largest of the three
// per-channel absolute differences between image1 and image2.
func CombinedDifference(image1 *image.RGBA, image2 *image.RGBA) (*image.Gray, error) {
	if image1.Bounds().Size() != image2.Bounds().Size() {
		return nil, xerrors.Errorf("%v and %v: %w", image1.Bounds().Size(), image2.Bounds().Size(), ErrDimensionMismatch)
	}

	size := image1.Bounds().Size()
	combined := image.NewGray(image.Rect(0, 0, size.X, size.Y))

	forEachBand(size.Y, func(startY int, endY int) {
		for y := startY; y < endY; y++ {
			row1 := image1.PixOffset(image1.Bounds().Min.X, image1.Bounds().Min.Y+y)
			row2 := image2.PixOffset(image2.Bounds().Min.X, image2.Bounds().Min.Y+y)
			rowCombined := combined.PixOffset(0, y)

			for x := 0; x < size.X; x++ {
				o1 := row1 + x*4
				o2 := row2 + x*4
				d := absDiff(image1.Pix[o1], image2.Pix[o2])
				d = max(d, absDiff(image1.Pix[o1+1], image2.Pix[o2+1]))
				d = max(d, absDiff(image1.Pix[o1+2], image2.Pix[o2+2]))
				combined.Pix[rowCombined+x] = d
			}
		}
	})

	return combined, nil
}

// Threshold returns a binary mask that is 255 where difference is strictly
// greater than threshold and 0 elsewhere.
func Threshold(difference *image.Gray, threshold uint8) *image.Gray {
	bounds := difference.Bounds()
	mask := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	forEachBand(bounds.Dy(), func(startY int, endY int) {
		for y := startY; y < endY; y++ {
			src := difference.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			dst := mask.PixOffset(0, y)
			for x := 0; x < bounds.Dx(); x++ {
				if difference.Pix[src+x] > threshold {
					mask.Pix[dst+x] = 0xff
				}
			}
		}
	})

	return mask
}

// ApplyMask copies the pixels of img where mask is set; every other pixel
// is opaque black.
func ApplyMask(img *image.RGBA, mask *image.Gray) (*image.RGBA, error) {
	if img.Bounds().Size() != mask.Bounds().Size() {
		return nil, xerrors.Errorf("%v and mask %v: %w", img.Bounds().Size(), mask.Bounds().Size(), ErrDimensionMismatch)
	}

	size := img.Bounds().Size()
	masked := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))

	forEachBand(size.Y, func(startY int, endY int) {
		for y := startY; y < endY; y++ {
			src := img.PixOffset(img.Bounds().Min.X, img.Bounds().Min.Y+y)
			maskRow := mask.PixOffset(mask.Bounds().Min.X, mask.Bounds().Min.Y+y)
			dst := masked.PixOffset(0, y)

			for x := 0; x < size.X; x++ {
				d := dst + x*4
				masked.Pix[d+3] = 0xff
				if mask.Pix[maskRow+x] == 0 {
					continue
				}
				s := src + x*4
				masked.Pix[d] = img.Pix[s]
				masked.Pix[d+1] = img.Pix[s+1]
				masked.Pix[d+2] = img.Pix[s+2]
			}
		}
	})

	return masked, nil
}

// forEachBand splits [0, height) into one band of rows per worker and waits
// for all of them. Bands never overlap, so fn may write its rows freely.
func forEachBand(height int, fn func(startY int, endY int)) {
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers <= 1 {
		fn(0, height)
		return
	}

	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}

func absDiff(a uint8, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
