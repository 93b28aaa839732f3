package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/gauss"
)

func TestPlotRenderer_Render(t *testing.T) {
	job := newJob("line", writeSpectrum(t, 400, 0.1))
	job.Fits = []FitConfig{
		{Model: gauss.Gaussian, Data: FitDataAll},
		{Model: gauss.Gaussian, Data: FitDataPeak, Vicinity: 10},
	}
	a := mustAnalyse(t, job)

	for theme := range validColorThemes {
		t.Run(theme.String(), func(t *testing.T) {
			r, err := NewPlotRenderer(RenderConfig{Width: 640, Height: 400, ColorTheme: theme})
			if err != nil {
				t.Fatalf("NewPlotRenderer failed: %v", err)
			}

			img, err := r.Render(a)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 400 {
				t.Fatalf("Expected 640x400 image, got %v", img.Bounds())
			}

			b := r.config.BorderConfig
			area := image.Rect(b.Left, b.Top, 640-b.Right, 400-b.Bottom)
			scale, err := newPlotScale(area, a)
			if err != nil {
				t.Fatalf("newPlotScale failed: %v", err)
			}

			peak := a.Final().Peaks[0]
			px := area.Min.X + int(scale.x(peak.Position))
			py := area.Min.Y + int(scale.y(peak.Intensity))
			want := color.RGBAModel.Convert(r.palette.Peak)
			if got := img.RGBAAt(px, py); got != want {
				t.Errorf("Expected peak marker colour %v at (%d, %d), got %v", want, px, py, got)
			}

			background := color.RGBAModel.Convert(r.palette.Background)
			var drawn int
			for y := area.Min.Y; y < area.Max.Y; y++ {
				for x := area.Min.X; x < area.Max.X; x++ {
					if img.RGBAAt(x, y) != background {
						drawn++
					}
				}
			}
			if drawn == 0 {
				t.Error("Expected the plot area to be drawn on")
			}
		})
	}
}

func TestNewPlotRenderer_TooSmall(t *testing.T) {
	if _, err := NewPlotRenderer(RenderConfig{Width: 100, Height: 100}); err == nil {
		t.Error("Expected error for an image smaller than its borders")
	}
}

func TestEncode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))

	testCases := []struct {
		format ImageFormat
		decode func(*bytes.Reader) (image.Image, error)
	}{
		{ImagePNG, func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) }},
		{ImageJPEG, func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) }},
	}

	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, img, tc.format); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := tc.decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.Bounds() != img.Bounds() {
				t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
			}
		})
	}

	if err := Encode(&bytes.Buffer{}, img, "gif"); err == nil {
		t.Error("Expected error for an unknown format")
	}
}

func TestNiceStep(t *testing.T) {
	testCases := []struct {
		span, count, want float64
	}{
		{10, 5, 2},
		{1, 4, 0.5},
		{730, 6, 200},
		{3e14, 5, 1e14},
		{0, 5, 1},
	}

	for _, tc := range testCases {
		if got := niceStep(tc.span, tc.count); got != tc.want {
			t.Errorf("niceStep(%v, %v): expected %v, got %v", tc.span, tc.count, tc.want, got)
		}
	}
}

func TestOutputWriter(t *testing.T) {
	job := newJob("line", writeSpectrum(t, 0, 1))
	job.Fits = []FitConfig{{Model: gauss.Gaussian, Data: FitDataAll}}
	job.Deconvolve = &DeconvolveSpec{Model: gauss.Gaussian, Method: deconv.Regularized}
	a := mustAnalyse(t, job)

	dir := filepath.Join(t.TempDir(), "out")
	w, err := newOutputWriter(&RenderOptions{
		Directory: dir,
		Format:    ImagePNG,
		Width:     400,
		Height:    300,
		Theme:     ClassicTheme,
	}, discardLogger())
	if err != nil {
		t.Fatalf("newOutputWriter failed: %v", err)
	}

	if err = w.write(context.Background(), a); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	for _, name := range []string{"line.png", "line.txt"} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty %s, got %v", name, err)
		}
	}
}
