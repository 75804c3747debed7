package image

import (
	"errors"
	"image"

	"golang.org/x/xerrors"
)

var (
	ErrEmptyImage        = errors.New("image has zero width or height")
	ErrUnsupportedFormat = errors.New("image carries no color data")
	ErrDimensionMismatch = errors.New("image dimensions do not match")
)

// AlignmentPolicy decides how two differently sized images are brought to
// the same dimensions before differencing.
type AlignmentPolicy int

const (
	// AlignPairwise stretches whichever image is smaller on some axis to the
	// per-axis maximum and leaves the other untouched. Images that are taller
	// but narrower than each other cannot be aligned this way.
	AlignPairwise AlignmentPolicy = iota
	// AlignIndependent stretches both images to the per-axis maximum.
	AlignIndependent
)

func (p AlignmentPolicy) String() string {
	switch p {
	case AlignPairwise:
		return "pairwise"
	case AlignIndependent:
		return "independent"
	default:
		return "unknown"
	}
}

func ParseAlignmentPolicy(s string) (AlignmentPolicy, error) {
	switch s {
	case "", "pairwise":
		return AlignPairwise, nil
	case "independent":
		return AlignIndependent, nil
	default:
		return 0, xerrors.Errorf("unknown alignment policy: %s", s)
	}
}

// Options configures a comparison.
type Options struct {
	// Combined channel differences strictly greater than Threshold are highlighted.
	Threshold uint8

	// Scale both images to a common average intensity before differencing.
	AdjustBrightness bool

	Alignment AlignmentPolicy
}

// DefaultOptions are the library defaults. The diff command overrides the
// threshold with 0 so that any difference counts.
var DefaultOptions = Options{
	Threshold:        10,
	AdjustBrightness: true,
	Alignment:        AlignPairwise,
}

type DiffResult struct {
	// Image holds image1's (aligned, adjusted) color where the mask is set and
	// black everywhere else.
	Image *image.RGBA
	// Mask is 255 where the combined difference exceeds the threshold, 0 otherwise.
	Mask *image.Gray
	// DiffAmount is the fraction of highlighted pixels.
	DiffAmount float64
}

type Differ interface {
	Calculate(image1 image.Image, image2 image.Image) (*DiffResult, error)
}
