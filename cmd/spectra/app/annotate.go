package app

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkHeight = 5
	pixelsPerLabel = 120.0
	legendSwatch   = 18
)

type annotatorConfig struct {
	FontSize float64
	Borders  BorderConfig
	Palette  *Palette
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(config.Palette.Text))

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, s *plotScale, an *Analysis) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func(*image.RGBA, *plotScale, *Analysis) error
	}{
		{"drawing position scale", a.drawPositionScale},
		{"drawing intensity scale", a.drawIntensityScale},
		{"drawing title", a.drawTitle},
		{"drawing legend", a.drawLegend},
		{"drawing info bar", a.drawInfoBar},
	}
	for _, op := range ops {
		if err := op.fn(img, s, an); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawPositionScale(img *image.RGBA, s *plotScale, an *Analysis) error {
	step := niceStep(s.xMax-s.xMin, float64(s.area.Dx())/pixelsPerLabel)
	unit := an.Final().Unit
	textY := s.area.Max.Y + tickMarkHeight + a.fontHeight()

	for v := math.Ceil(s.xMin/step) * step; v <= s.xMax; v += step {
		x := s.area.Min.X + int(s.x(v))

		for y := s.area.Min.Y; y < s.area.Max.Y; y++ {
			img.Set(x, y, a.config.Palette.Grid)
		}
		for y := s.area.Max.Y; y < s.area.Max.Y+tickMarkHeight; y++ {
			img.Set(x, y, a.config.Palette.Text)
		}

		label := formatPosition(v, unit)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing position label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawIntensityScale(img *image.RGBA, s *plotScale, _ *Analysis) error {
	step := niceStep(s.yMax-s.yMin, float64(s.area.Dy())/pixelsPerLabel*2)
	metrics := a.fontFace.Metrics()

	for v := math.Ceil(s.yMin/step) * step; v <= s.yMax; v += step {
		y := s.area.Min.Y + int(s.y(v))

		for x := s.area.Min.X; x < s.area.Max.X; x++ {
			img.Set(x, y, a.config.Palette.Grid)
		}
		for x := s.area.Min.X - tickMarkHeight; x < s.area.Min.X; x++ {
			img.Set(x, y, a.config.Palette.Text)
		}

		label := formatIntensity(v)
		width := font.MeasureString(a.fontFace, label)
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()
		pt := freetype.Pt(s.area.Min.X-tickMarkHeight-3-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing intensity label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTitle(_ *image.RGBA, _ *plotScale, an *Analysis) error {
	textY := (a.config.Borders.Top + a.fontHeight()) / 2
	_, err := a.context.DrawString(an.Job.Name+": "+an.Job.File, freetype.Pt(a.config.Borders.Left, textY))
	return err
}

func (a *annotator) drawLegend(img *image.RGBA, s *plotScale, an *Analysis) error {
	lineHeight := a.fontHeight() + 4
	x := s.area.Max.X - 160
	y := s.area.Min.Y + lineHeight

	for i, f := range an.Fits {
		c := a.config.Palette.Curve(i, len(an.Fits))
		swatch := image.Rect(x, y-lineHeight/2-1, x+legendSwatch, y-lineHeight/2+2)
		draw.Draw(img, swatch, image.NewUniform(c), image.Point{}, draw.Src)

		label := fmt.Sprintf("%s [%d, %d)", f.Kind, f.Begin, f.End)
		if _, err := a.context.DrawString(label, freetype.Pt(x+legendSwatch+6, y)); err != nil {
			return fmt.Errorf("drawing legend: %w", err)
		}
		y += lineHeight
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, s *plotScale, an *Analysis) error {
	snap := an.Final()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Range: %s - %s", formatPosition(s.xMin, snap.Unit), formatPosition(s.xMax, snap.Unit)))
	sb.WriteString(fmt.Sprintf("; Samples: %d; Peaks: %d", snap.Spectrum.Len(), len(snap.Peaks)))
	sb.WriteString(fmt.Sprintf("; Noise floor: %s", formatIntensity(an.NoiseFloor)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom/2-a.fontHeight())/2 - metrics.Descent.Round()

	_, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY))
	return err
}

// niceStep returns a 1, 2 or 5 times power of ten step that splits span into
// about count intervals.
func niceStep(span, count float64) float64 {
	if span <= 0 || count < 1 {
		count = 1
	}
	if span <= 0 {
		return 1
	}

	rough := span / count
	mag := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * mag; step >= rough {
			return step
		}
	}
	return 10 * mag
}
