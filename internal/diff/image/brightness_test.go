package image

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMeanIntensity(t *testing.T) {
	img := createTestImage(2, 2, color.RGBA{R: 255, G: 255, B: 0, A: 255})
	img.SetRGBA(0, 0, color.RGBA{B: 100, A: 255})
	img.SetRGBA(1, 1, color.RGBA{B: 20, A: 255})

	if got := MeanIntensity(img); got != 30 {
		t.Errorf("expected mean of the blue channel to be 30, got %f", got)
	}
}

func TestAdjustBrightness(t *testing.T) {
	t.Run("OwnAverageIsIdentity", func(t *testing.T) {
		img := createNoiseImage(50, 40, 7)

		adjusted := AdjustBrightness(img, MeanIntensity(img))
		if diff := cmp.Diff(img.Pix, adjusted.Pix); diff != "" {
			t.Errorf("expected image to be unchanged (-want +got):\n%s", diff)
		}
		if adjusted == img {
			t.Errorf("expected a new image")
		}
	})

	t.Run("ScalesAllChannels", func(t *testing.T) {
		img := createTestImage(3, 3, color.RGBA{R: 10, G: 30, B: 50, A: 255})

		adjusted := AdjustBrightness(img, 100)
		if got, want := adjusted.RGBAAt(1, 1), (color.RGBA{R: 20, G: 60, B: 100, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Saturates", func(t *testing.T) {
		img := createTestImage(2, 2, color.RGBA{R: 200, G: 0, B: 100, A: 255})

		adjusted := AdjustBrightness(img, 200)
		if got, want := adjusted.RGBAAt(0, 0), (color.RGBA{R: 255, G: 0, B: 200, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("BlackSource", func(t *testing.T) {
		img := createTestImage(2, 2, color.RGBA{R: 5, A: 255})

		adjusted := AdjustBrightness(img, 128)
		if got, want := adjusted.RGBAAt(0, 0), (color.RGBA{R: 255, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("DarkensToZero", func(t *testing.T) {
		img := createTestImage(2, 2, color.RGBA{R: 90, G: 90, B: 90, A: 255})

		adjusted := AdjustBrightness(img, 0)
		if got, want := adjusted.RGBAAt(0, 0), (color.RGBA{A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}

func TestSaturate(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-3, 0},
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{254.6, 255},
		{1e9, 255},
	}

	for _, tc := range tests {
		if got := saturate(tc.in); got != tc.want {
			t.Errorf("saturate(%v): expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestToRaster(t *testing.T) {
	t.Run("DropsAlpha", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

		raster, err := toRaster(img)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := raster.RGBAAt(0, 0), (color.RGBA{R: 10, G: 20, B: 30, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("MovesOriginToZero", func(t *testing.T) {
		img := createTestImage(10, 10, color.Black)
		img.SetRGBA(5, 5, color.RGBA{R: 1, G: 2, B: 3, A: 255})
		sub := img.SubImage(image.Rect(5, 5, 8, 8))

		raster, err := toRaster(sub)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raster.Bounds() != image.Rect(0, 0, 3, 3) {
			t.Errorf("expected bounds at origin, got %v", raster.Bounds())
		}
		if got, want := raster.RGBAAt(0, 0), (color.RGBA{R: 1, G: 2, B: 3, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("YCbCr", func(t *testing.T) {
		img := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio420)
		for i := range img.Y {
			img.Y[i] = 128
		}
		for i := range img.Cb {
			img.Cb[i] = 128
			img.Cr[i] = 128
		}

		raster, err := toRaster(img)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := raster.RGBAAt(1, 1), (color.RGBA{R: 128, G: 128, B: 128, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Gray", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		img.SetGray(1, 0, color.Gray{Y: 77})

		raster, err := toRaster(img)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := raster.RGBAAt(1, 0), (color.RGBA{R: 77, G: 77, B: 77, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
		if got, want := raster.RGBAAt(0, 0), (color.RGBA{A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Gray16", func(t *testing.T) {
		img := image.NewGray16(image.Rect(0, 0, 2, 2))
		img.SetGray16(0, 1, color.Gray16{Y: 0x1234})

		raster, err := toRaster(img)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := raster.RGBAAt(0, 1), (color.RGBA{R: 0x12, G: 0x12, B: 0x12, A: 255}); got != want {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("AlphaOnly", func(t *testing.T) {
		for _, img := range []image.Image{image.NewAlpha(image.Rect(0, 0, 2, 2)), image.NewAlpha16(image.Rect(0, 0, 2, 2))} {
			if _, err := toRaster(img); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("%T: expected ErrUnsupportedFormat, got %v", img, err)
			}
		}
	})
}
