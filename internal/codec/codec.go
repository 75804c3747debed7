// Package codec decodes input images and encodes diff images in the format
// implied by a file extension.
package codec

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/xerrors"
)

var (
	ErrDecode               = errors.New("failed to decode image")
	ErrUnsupportedExtension = errors.New("unsupported image extension")
)

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	GIF  Format = "gif"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

const DefaultJPEGQuality = 90

// FormatFromPath infers the output format from the extension of p. p may be
// a file path or a URL.
func FormatFromPath(p string) (Format, error) {
	if i := strings.IndexAny(p, "?#"); i >= 0 && strings.Contains(p, "://") {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	f, err := ParseFormat(ext)
	if err != nil {
		return "", xerrors.Errorf("%q: %w", p, err)
	}
	return f, nil
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg", "jpe":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	default:
		return "", xerrors.Errorf("%q: %w", s, ErrUnsupportedExtension)
	}
}

func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case GIF:
		return "image/gif"
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Decode decodes any registered format: png, jpeg, gif, bmp, tiff and webp.
func Decode(data []byte) (image.Image, string, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", xerrors.Errorf("%v: %w", err, ErrDecode)
	}
	return img, name, nil
}

type EncodeOptions struct {
	// JPEG quality in [1, 100]. Zero means DefaultJPEGQuality.
	Quality int
}

func Encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		quality := opts.Quality
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case GIF:
		err = gif.Encode(w, img, nil)
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return xerrors.Errorf("%q: %w", f, ErrUnsupportedExtension)
	}
	if err != nil {
		return xerrors.Errorf("failed to encode %s image: %w", f, err)
	}
	return nil
}

func EncodeBytes(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	var buffer bytes.Buffer
	if err := Encode(&buffer, img, f, opts); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
