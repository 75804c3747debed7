package image

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/xerrors"
)

// Align returns image1 and image2 with identical dimensions. An image that
// already has the target size is returned as is; a resized image is a new
// allocation produced by bilinear resampling.
//
// With AlignPairwise, image1 is stretched to the per-axis maximum when it is
// shorter or narrower than image2, otherwise image2 is stretched when it is
// shorter or narrower than image1. If that still leaves the sizes unequal,
// ErrDimensionMismatch is returned.
func Align(image1 *image.RGBA, image2 *image.RGBA, policy AlignmentPolicy) (*image.RGBA, *image.RGBA, error) {
	width1, height1 := image1.Bounds().Dx(), image1.Bounds().Dy()
	width2, height2 := image2.Bounds().Dx(), image2.Bounds().Dy()
	maxWidth := max(width1, width2)
	maxHeight := max(height1, height2)

	switch policy {
	case AlignIndependent:
		return resize(image1, maxWidth, maxHeight), resize(image2, maxWidth, maxHeight), nil
	case AlignPairwise:
	default:
		return nil, nil, xerrors.Errorf("unknown alignment policy: %d", policy)
	}

	if height1 < height2 || width1 < width2 {
		image1 = resize(image1, maxWidth, maxHeight)
	} else if height1 > height2 || width1 > width2 {
		image2 = resize(image2, maxWidth, maxHeight)
	}

	if image1.Bounds().Size() != image2.Bounds().Size() {
		return nil, nil, xerrors.Errorf("%dx%d and %dx%d after pairwise alignment: %w",
			image1.Bounds().Dx(), image1.Bounds().Dy(), image2.Bounds().Dx(), image2.Bounds().Dy(), ErrDimensionMismatch)
	}

	return image1, image2, nil
}

func resize(src *image.RGBA, width int, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
