package app

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for plots.
// - ClassicTheme: Blue trace, curves from blue to red
// - GrayscaleTheme: Monochrome plot
// - JungleTheme: Dark green to yellow curves
// - ThermalTheme: Red to yellow curves on a dark trace
// - MarineTheme: Deep blue to cyan curves
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"
)

var validColorThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

func (t ColorTheme) String() string {
	return string(t)
}

// Palette holds the colours a plot is drawn with.
type Palette struct {
	Background color.Color
	Grid       color.Color
	Text       color.Color
	Trace      color.Color // Measured spectrum
	Peak       color.Color // Peak markers
	Floor      color.Color // Noise floor line

	from, to colorful.Color // Endpoints of the fitted curve gradient
}

// NewPalette returns the palette of theme, falling back to the classic one.
func NewPalette(theme ColorTheme) *Palette {
	p := &Palette{
		Background: color.White,
		Grid:       colorful.Hsv(0, 0, 0.88),
		Text:       color.Black,
		Floor:      colorful.Hsv(0, 0, 0.6),
	}

	switch theme {
	case GrayscaleTheme:
		p.Trace = colorful.Hsv(0, 0, 0.1)
		p.Peak = colorful.Hsv(0, 0, 0.35)
		p.from, p.to = colorful.Hsv(0, 0, 0.25), colorful.Hsv(0, 0, 0.7)

	case JungleTheme:
		p.Trace = colorful.Hsv(150, 0.9, 0.3)
		p.Peak = colorful.Hsv(30, 0.9, 0.8)
		p.from, p.to = colorful.Hsv(120, 1, 0.45), colorful.Hsv(60, 1, 0.85)

	case ThermalTheme:
		p.Trace = colorful.Hsv(0, 0, 0.15)
		p.Peak = colorful.Hsv(200, 0.8, 0.8)
		p.from, p.to = colorful.Hsv(0, 1, 0.8), colorful.Hsv(55, 1, 0.95)

	case MarineTheme:
		p.Trace = colorful.Hsv(230, 1, 0.35)
		p.Peak = colorful.Hsv(10, 0.8, 0.9)
		p.from, p.to = colorful.Hsv(220, 1, 0.7), colorful.Hsv(180, 0.8, 0.8)

	default:
		p.Trace = colorful.Hsv(220, 0.9, 0.6)
		p.Peak = colorful.Hsv(0, 0.9, 0.85)
		p.from, p.to = colorful.Hsv(240, 0.9, 0.8), colorful.Hsv(0, 0.9, 0.9)
	}

	return p
}

// Curve returns the colour of fitted curve i of n, spread evenly over the
// theme gradient.
func (p *Palette) Curve(i, n int) color.Color {
	if n <= 1 {
		return p.from.Clamped()
	}
	t := float64(i) / float64(n-1)
	return p.from.BlendHcl(p.to, t).Clamped()
}
