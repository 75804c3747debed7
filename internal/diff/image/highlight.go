package image

import (
	"image"

	"github.com/go-logr/logr"
	"golang.org/x/xerrors"
)

// HighlightDiff keeps image1's color wherever the two images differ by more
// than a threshold on any channel and paints everything else black.
type HighlightDiff struct {
	options Options
	logger  logr.Logger
}

func NewHighlightDiff(options Options) *HighlightDiff {
	return &HighlightDiff{
		options: options,
		logger:  logr.Discard(),
	}
}

// WithLogger returns a copy of h that reports alignment and brightness
// decisions to logger at V(1).
func (h *HighlightDiff) WithLogger(logger logr.Logger) *HighlightDiff {
	return &HighlightDiff{
		options: h.options,
		logger:  logger,
	}
}

func (h *HighlightDiff) Options() Options {
	return h.options
}

func (h *HighlightDiff) Calculate(image1 image.Image, image2 image.Image) (*DiffResult, error) {
	raster1, err := toRaster(image1)
	if err != nil {
		return nil, xerrors.Errorf("image1: %w", err)
	}
	raster2, err := toRaster(image2)
	if err != nil {
		return nil, xerrors.Errorf("image2: %w", err)
	}

	aligned1, aligned2, err := Align(raster1, raster2, h.options.Alignment)
	if err != nil {
		return nil, err
	}
	if aligned1 != raster1 || aligned2 != raster2 {
		h.logger.V(1).Info("resized images",
			"policy", h.options.Alignment.String(),
			"image1", raster1.Bounds().Size().String(),
			"image2", raster2.Bounds().Size().String(),
			"aligned", aligned1.Bounds().Size().String(),
		)
	}

	if h.options.AdjustBrightness {
		// image2 is matched against the already adjusted image1, not the original.
		target := MeanIntensity(aligned2)
		aligned1 = AdjustBrightness(aligned1, target)
		aligned2 = AdjustBrightness(aligned2, MeanIntensity(aligned1))
		h.logger.V(1).Info("adjusted brightness",
			"target", target,
			"image1", MeanIntensity(aligned1),
			"image2", MeanIntensity(aligned2),
		)
	}

	combined, err := CombinedDifference(aligned1, aligned2)
	if err != nil {
		return nil, err
	}

	mask := Threshold(combined, h.options.Threshold)

	highlighted, err := ApplyMask(aligned1, mask)
	if err != nil {
		return nil, err
	}

	diffAmount := 0.0
	if total := len(mask.Pix); total > 0 {
		diffAmount = float64(countSet(mask)) / float64(total)
	}

	return &DiffResult{
		Image:      highlighted,
		Mask:       mask,
		DiffAmount: diffAmount,
	}, nil
}

func countSet(mask *image.Gray) int {
	count := 0
	for _, v := range mask.Pix {
		if v != 0 {
			count++
		}
	}
	return count
}
