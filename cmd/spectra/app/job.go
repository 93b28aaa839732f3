package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/fit"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

// Snapshot is the state of a spectrum at one step of a job.
type Snapshot struct {
	Unit     spectrum.Unit
	Spectrum spectrum.Spectrum
	Peaks    []spectrum.Peak
}

// Response is an instrument response estimated from one of the job fits.
type Response struct {
	Fit    *spectrum.Fit
	Method deconv.Method
	Values []float64
}

// Analysis is the outcome of a single job.
type Analysis struct {
	Job        *JobConfig
	NoiseFloor float64
	Source     Snapshot  // Spectrum as loaded
	Converted  *Snapshot // Spectrum after unit conversion, nil if not converted
	Fits       []*spectrum.Fit
	Response   *Response
}

// Final returns the snapshot the fits were computed on.
func (a *Analysis) Final() *Snapshot {
	if a.Converted != nil {
		return a.Converted
	}
	return &a.Source
}

func snapshot(s *spectrum.Store) Snapshot {
	return Snapshot{
		Unit:     s.Unit(),
		Spectrum: s.Spectrum(),
		Peaks:    s.Peaks(),
	}
}

func loadOptions(job *JobConfig, fitter *fit.Fitter) []spectrum.LoadOption {
	opts := []spectrum.LoadOption{
		spectrum.WithLineSeparator(job.LineSeparator),
		spectrum.WithColumnSeparator(job.ColumnSeparator),
		spectrum.WithDecimalPoint(job.DecimalPoint),
		spectrum.WithUnit(job.Units),
		spectrum.WithFitter(fitter),
	}
	if job.NoiseLevel != nil {
		opts = append(opts, spectrum.WithNoiseLevel(*job.NoiseLevel))
	}
	return opts
}

// analyse loads the job input and runs its conversion, fits and
// deconvolution in that order. A fit that fails is logged and skipped; the
// job only fails if the input cannot be loaded or the requested response
// cannot be estimated.
func analyse(ctx context.Context, job *JobConfig, fitter *fit.Fitter, logger *slog.Logger) (*Analysis, error) {
	logger = logger.With(slog.String("job", job.Name))

	store, err := spectrum.Load(job.File, loadOptions(job, fitter)...)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", job.File, err)
	}

	floor, err := store.NoiseFloor()
	if err != nil {
		return nil, fmt.Errorf("computing noise floor: %w", err)
	}

	a := &Analysis{
		Job:        job,
		NoiseFloor: floor,
		Source:     snapshot(store),
	}

	logger.Info("spectrum loaded",
		slog.String("file", job.File),
		slog.Int("samples", store.Len()),
		slog.Int("peaks", len(a.Source.Peaks)),
		slog.String("unit", store.Unit().String()),
	)

	if job.ConvertTo != spectrum.UnitUnset && job.ConvertTo != store.Unit() {
		ok, err := store.Convert(job.ConvertTo)
		if err != nil {
			return nil, fmt.Errorf("converting to %s: %w", job.ConvertTo, err)
		}
		if ok {
			converted := snapshot(store)
			a.Converted = &converted
			logger.Debug("positions converted", slog.String("unit", job.ConvertTo.String()))
		} else {
			logger.Warn("conversion skipped, a zero position would be a divisor",
				slog.String("from", store.Unit().String()),
				slog.String("to", job.ConvertTo.String()),
			)
		}
	}

	for i := range job.Fits {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		f, err := runFit(store, &job.Fits[i])
		if err != nil {
			logger.Error(fmt.Sprintf("fit failed: %s", err.Error()),
				slog.Int("fit", i),
				slog.String("model", job.Fits[i].Model.String()),
			)
			continue
		}
		if f == nil {
			continue
		}

		a.Fits = append(a.Fits, f)
		logger.Debug("fit done",
			slog.String("model", f.Kind.String()),
			slog.Int("begin", f.Begin),
			slog.Int("end", f.End),
			slog.Float64("cost", f.Cost),
			slog.Int("iterations", f.Iterations),
		)
	}

	if d := job.Deconvolve; d != nil {
		if a.Response, err = respond(store, d); err != nil {
			return nil, fmt.Errorf("estimating response: %w", err)
		}
	}

	return a, nil
}

func runFit(store *spectrum.Store, c *FitConfig) (*spectrum.Fit, error) {
	switch c.Data {
	case FitDataNone:
		return nil, nil

	case FitDataAll:
		return store.FitAll(c.Model)

	case FitDataPeak:
		n := c.Vicinity
		if n == 0 {
			var err error
			if n, err = store.MaxVicinity(c.Peak); err != nil {
				return nil, err
			}
		}
		return store.FitPeak(c.Model, c.Peak, n)

	default:
		return nil, fmt.Errorf("unknown data selection %q", c.Data)
	}
}

func respond(store *spectrum.Store, d *DeconvolveSpec) (*Response, error) {
	f, ok := store.FitResult(d.Model)
	if !ok {
		return nil, errors.New("no successful " + d.Model.String() + " fit")
	}

	method := d.Method
	if method == "" {
		method = deconv.Naive
	}

	values, err := store.Response(d.Model, f.Begin, f.End, deconv.Options{
		Method:  method,
		Epsilon: d.Epsilon,
	})
	if err != nil {
		return nil, err
	}

	return &Response{Fit: f, Method: method, Values: values}, nil
}
