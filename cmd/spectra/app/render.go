package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/vector"

	"github.com/roman-kulish/spectra/internal/fit"
)

const (
	lineWidth  = 1.5
	curveWidth = 2.0
	markerSize = 4
	yHeadroom  = 0.05

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 70
	defaultRightBorder  = 40
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the intensity scale
	Bottom int // Space for the position scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for plots
type RenderConfig struct {
	Width      int // Full image width in pixels
	Height     int // Full image height in pixels
	FontSize   float64
	ColorTheme ColorTheme

	BorderConfig BorderConfig
}

// PlotRenderer draws a spectrum with its peaks and fitted curves
type PlotRenderer struct {
	config  RenderConfig
	palette *Palette
}

// NewPlotRenderer creates a new plot renderer with the given configuration
func NewPlotRenderer(config RenderConfig) (*PlotRenderer, error) {
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	b := config.BorderConfig
	if config.Width-b.Left-b.Right < 10 || config.Height-b.Top-b.Bottom < 10 {
		return nil, fmt.Errorf("image %dx%d is too small for its borders", config.Width, config.Height)
	}

	return &PlotRenderer{
		config:  config,
		palette: NewPalette(config.ColorTheme),
	}, nil
}

// plotScale maps data coordinates to pixels of the plot area.
type plotScale struct {
	area       image.Rectangle
	xMin, xMax float64
	yMin, yMax float64
}

func (s *plotScale) x(v float64) float32 {
	w := float64(s.area.Dx() - 1)
	return float32(clamp((v-s.xMin)/(s.xMax-s.xMin), 0, 1) * w)
}

func (s *plotScale) y(v float64) float32 {
	h := float64(s.area.Dy() - 1)
	return float32((1 - clamp((v-s.yMin)/(s.yMax-s.yMin), 0, 1)) * h)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func newPlotScale(area image.Rectangle, a *Analysis) (*plotScale, error) {
	snap := a.Final()
	if snap.Spectrum.Len() == 0 {
		return nil, errors.New("empty spectrum")
	}

	s := &plotScale{
		area: area,
		xMin: math.Inf(1), xMax: math.Inf(-1),
		yMin: math.Min(0, a.NoiseFloor), yMax: math.Inf(-1),
	}
	for i, x := range snap.Spectrum.Positions {
		y := snap.Spectrum.Intensities[i]
		s.xMin, s.xMax = math.Min(s.xMin, x), math.Max(s.xMax, x)
		s.yMin, s.yMax = math.Min(s.yMin, y), math.Max(s.yMax, y)
	}
	for _, f := range a.Fits {
		for _, p := range f.Curve {
			s.yMin, s.yMax = math.Min(s.yMin, p.Y), math.Max(s.yMax, p.Y)
		}
	}

	if s.xMax == s.xMin {
		s.xMin, s.xMax = s.xMin-0.5, s.xMax+0.5
	}
	if s.yMax == s.yMin {
		s.yMax = s.yMin + 1
	}
	s.yMax += (s.yMax - s.yMin) * yHeadroom

	return s, nil
}

// Render creates an image of the analysis: the measured trace, the noise
// floor, every fitted curve and the peak markers.
func (r *PlotRenderer) Render(a *Analysis) (*image.RGBA, error) {
	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.palette.Background), image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, r.config.Width-b.Right, r.config.Height-b.Bottom)
	scale, err := newPlotScale(area, a)
	if err != nil {
		return nil, err
	}

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Borders:  b,
		Palette:  r.palette,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Grid and labels go first so the data is drawn over them
	if err = ann.annotate(img, scale, a); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	snap := a.Final()
	r.hline(img, scale, a.NoiseFloor, r.palette.Floor)

	trace := make([]fit.Point, snap.Spectrum.Len())
	for i := range trace {
		trace[i] = fit.Point{X: snap.Spectrum.Positions[i], Y: snap.Spectrum.Intensities[i]}
	}
	drawPolyline(img, scale, trace, lineWidth, r.palette.Trace)

	for i, f := range a.Fits {
		drawPolyline(img, scale, f.Curve, curveWidth, r.palette.Curve(i, len(a.Fits)))
	}

	for _, p := range snap.Peaks {
		r.marker(img, scale, p.Position, p.Intensity)
	}

	return img, nil
}

func (r *PlotRenderer) hline(img *image.RGBA, s *plotScale, v float64, c color.Color) {
	y := s.area.Min.Y + int(s.y(v))
	for x := s.area.Min.X; x < s.area.Max.X; x += 2 {
		img.Set(x, y, c)
	}
}

func (r *PlotRenderer) marker(img *image.RGBA, s *plotScale, x, y float64) {
	px := s.area.Min.X + int(s.x(x))
	py := s.area.Min.Y + int(s.y(y))

	rect := image.Rect(px-markerSize, py-markerSize, px+markerSize+1, py+markerSize+1).Intersect(s.area)
	draw.Draw(img, rect, image.NewUniform(r.palette.Peak), image.Point{}, draw.Over)
}

// drawPolyline strokes the points as a chain of quads of the given width.
// Every quad is wound the same way, so overlapping joints do not cancel.
func drawPolyline(img draw.Image, s *plotScale, points []fit.Point, width float32, c color.Color) {
	if len(points) < 2 {
		return
	}

	z := vector.NewRasterizer(s.area.Dx(), s.area.Dy())
	half := width / 2

	for i := 1; i < len(points); i++ {
		x0, y0 := s.x(points[i-1].X), s.y(points[i-1].Y)
		x1, y1 := s.x(points[i].X), s.y(points[i].Y)

		dx, dy := x1-x0, y1-y0
		l := float32(math.Hypot(float64(dx), float64(dy)))
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half

		// Extend along the segment so consecutive quads overlap at joints
		ex, ey := dx/l*half, dy/l*half

		z.MoveTo(inside(s.area, x0+nx-ex, y0+ny-ey))
		z.LineTo(inside(s.area, x1+nx+ex, y1+ny+ey))
		z.LineTo(inside(s.area, x1-nx+ex, y1-ny+ey))
		z.LineTo(inside(s.area, x0-nx-ex, y0-ny-ey))
		z.ClosePath()
	}

	z.Draw(img, s.area, image.NewUniform(c), image.Point{})
}

// inside clamps a rasterizer vertex to the plot area.
func inside(area image.Rectangle, x, y float32) (float32, float32) {
	w, h := float32(area.Dx()), float32(area.Dy())
	return min(max(x, 0), w), min(max(y, 0), h)
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)

	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})

	default:
		return fmt.Errorf("unknown image format %q", format)
	}
}
