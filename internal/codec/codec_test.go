package codec_test

import (
	"colordiff/internal/codec"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatFromPath(t *testing.T) {
	type in struct {
		first string
	}

	type want struct {
		first codec.Format
	}

	tests := []struct {
		name    string
		in      in
		want    want
		wantErr error
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"out/diff.png"},
			want{codec.PNG},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"/tmp/DIFF.JPG"},
			want{codec.JPEG},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"s3://bucket/diff.tiff"},
			want{codec.TIFF},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"https://example.com/a.bmp?version=2"},
			want{codec.BMP},
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"diff.webp"},
			want{""},
			codec.ErrUnsupportedExtension,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"diff"},
			want{""},
			codec.ErrUnsupportedExtension,
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		wantErr := tt.wantErr
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := codec.FormatFromPath(in.first)
			if !errors.Is(err, wantErr) {
				t.Fatalf("err: got %v, want %v", err, wantErr)
			}
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
		img.Pix[i+3] = 255
	}

	for _, f := range []codec.Format{codec.PNG, codec.JPEG, codec.GIF, codec.BMP, codec.TIFF} {
		t.Run(string(f), func(t *testing.T) {
			data, err := codec.EncodeBytes(img, f, codec.EncodeOptions{Quality: 100})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			decoded, name, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != string(f) {
				t.Errorf("expected format %s, got %s", f, name)
			}
			if decoded.Bounds() != img.Bounds() {
				t.Errorf("expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
			}

			r, g, b, _ := color.NRGBAModel.Convert(decoded.At(3, 3)).RGBA()
			if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
				t.Errorf("expected red pixel, got (%d,%d,%d)", r>>8, g>>8, b>>8)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, _, err := codec.Decode([]byte("not an image"))
	if !errors.Is(err, codec.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if diff := cmp.Diff("image: unknown format: failed to decode image", err.Error()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if _, err := codec.EncodeBytes(img, codec.Format("webp"), codec.EncodeOptions{}); !errors.Is(err, codec.ErrUnsupportedExtension) {
		t.Errorf("expected ErrUnsupportedExtension, got %v", err)
	}
}
