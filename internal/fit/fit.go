// Package fit performs bounded nonlinear least-squares fits of the Gaussian
// models in package gauss to sampled spectral data.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/spectra/internal/gauss"
)

const (
	// DefaultMaxIterations is the default solver iteration budget
	DefaultMaxIterations = 1000

	// DefaultTolerance is the default relative cost and step tolerance
	DefaultTolerance = 1e-10

	// DefaultRenderDensity is the number of curve points rendered per sample
	DefaultRenderDensity = 5

	seedWidth = 1.0
)

var (
	// ErrDidNotConverge is returned when the solver exhausts its iteration
	// budget before meeting its tolerance.
	ErrDidNotConverge = errors.New("fit did not converge")

	// ErrInvalidSubrange is returned when the data has fewer samples than the
	// model has free parameters.
	ErrInvalidSubrange = errors.New("subrange has fewer samples than model parameters")

	// ErrInvalidArgument is returned for unusable model kinds or inputs.
	ErrInvalidArgument = errors.New("invalid fit argument")
)

// Point is a single (x, y) pair of a rendered model curve.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is the outcome of a successful fit.
type Result struct {
	Kind       gauss.Kind `json:"kind"`
	Begin      int        `json:"begin"`     // First sample index of the fitted subrange
	End        int        `json:"end"`       // One past the last sample index
	Params     []float64  `json:"params"`    // Fitted parameter vector, see package gauss for the order
	StdErrors  []float64  `json:"stdErrors"` // √diag of the parameter covariance
	Cost       float64    `json:"cost"`      // Sum of squared residuals at the solution
	Iterations int        `json:"iterations"`
	Curve      []Point    `json:"-"` // Model sampled densely over the subrange extent
}

// Len returns the number of samples the fit was computed over.
func (r *Result) Len() int {
	return r.End - r.Begin
}

// Eval evaluates the fitted model at each x.
func (r *Result) Eval(xs []float64) ([]float64, error) {
	return gauss.EvalSlice(r.Kind, xs, r.Params)
}

// WithMaxIterations sets the solver iteration budget.
func WithMaxIterations(n int) func(*Fitter) {
	return func(f *Fitter) {
		f.maxIterations = n
	}
}

// WithTolerance sets the relative tolerance on cost reduction and parameter step.
func WithTolerance(tol float64) func(*Fitter) {
	return func(f *Fitter) {
		f.tolerance = tol
	}
}

// WithRenderDensity sets how many curve points are rendered per fitted sample.
func WithRenderDensity(density int) func(*Fitter) {
	return func(f *Fitter) {
		f.density = density
	}
}

// WithIdenticalSeeds seeds every component of a mixture at the subrange
// midpoint instead of spreading the centres across the subrange. Identical
// components receive identical updates, so the components only separate if
// the bounds force them apart.
func WithIdenticalSeeds() func(*Fitter) {
	return func(f *Fitter) {
		f.identicalSeeds = true
	}
}

// Fitter fits Gaussian models with a bounded Levenberg-Marquardt solver.
type Fitter struct {
	maxIterations  int
	tolerance      float64
	density        int
	identicalSeeds bool
}

// New creates a Fitter with the default iteration budget, tolerance and render density.
func New(options ...func(*Fitter)) *Fitter {
	f := Fitter{
		maxIterations: DefaultMaxIterations,
		tolerance:     DefaultTolerance,
		density:       DefaultRenderDensity,
	}

	for _, option := range options {
		option(&f)
	}

	if f.maxIterations <= 0 {
		f.maxIterations = DefaultMaxIterations
	}
	if f.tolerance <= 0 {
		f.tolerance = DefaultTolerance
	}
	if f.density <= 0 {
		f.density = DefaultRenderDensity
	}

	return &f
}

// RenderDensity returns the number of curve points rendered per sample.
func (f *Fitter) RenderDensity() int {
	return f.density
}

// Fit fits the model kind to the samples (xs, ys). noiseFloor is the lower
// amplitude bound of mixture components. The returned Result has Begin=0 and
// End=len(xs); callers fitting a subrange of a larger spectrum restamp them.
func (f *Fitter) Fit(kind gauss.Kind, xs, ys []float64, noiseFloor float64) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: model %q cannot be fitted", ErrInvalidArgument, kind)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d positions, %d intensities", ErrInvalidArgument, len(xs), len(ys))
	}
	if n, m := len(xs), kind.NumParams(); n < m {
		return nil, fmt.Errorf("%w: %d samples, %s has %d parameters", ErrInvalidSubrange, n, kind, m)
	}

	seed, bounds := f.initialGuess(kind, xs, ys, noiseFloor)

	p := problem{kind: kind, xs: xs, ys: ys, bounds: bounds}
	sol, err := p.solve(seed, f.maxIterations, f.tolerance)
	if err != nil {
		return nil, err
	}

	curve, err := f.render(kind, xs, sol.params)
	if err != nil {
		return nil, fmt.Errorf("rendering curve: %w", err)
	}

	return &Result{
		Kind:       kind,
		Begin:      0,
		End:        len(xs),
		Params:     sol.params,
		StdErrors:  p.stdErrors(sol.params, sol.cost),
		Cost:       sol.cost,
		Iterations: sol.iterations,
		Curve:      curve,
	}, nil
}

// initialGuess returns the starting parameters and box constraints for kind.
func (f *Fitter) initialGuess(kind gauss.Kind, xs, ys []float64, noiseFloor float64) ([]float64, bounds) {
	n := len(xs)

	amplitude := floats.Norm(ys, math.Inf(1))
	centre := xs[n/2]
	xMin, xMax := floats.Min(xs), floats.Max(xs)

	// σ must stay strictly positive for the model to be defined
	minWidth := 1e-9 * math.Max(xMax-xMin, 1)

	if kind == gauss.Gaussian {
		seed := []float64{amplitude, centre, seedWidth, ys[0]}
		b := bounds{
			lower: []float64{0, xMin, minWidth, math.Inf(-1)},
			upper: []float64{math.Inf(1), xMax, math.Inf(1), math.Inf(1)},
		}
		return seed, b
	}

	k := kind.Components()
	aLow, aHigh := noiseFloor, amplitude
	if aLow > aHigh {
		aLow = aHigh
	}

	seed := make([]float64, 0, 3*k)
	b := bounds{
		lower: make([]float64, 0, 3*k),
		upper: make([]float64, 0, 3*k),
	}
	for i := 0; i < k; i++ {
		c := centre
		if !f.identicalSeeds {
			c = xMin + float64(i+1)*(xMax-xMin)/float64(k+1)
		}

		seed = append(seed, amplitude, c, seedWidth)
		b.lower = append(b.lower, aLow, xMin, minWidth)
		b.upper = append(b.upper, aHigh, xMax, math.Inf(1))
	}
	return seed, b
}

func (f *Fitter) render(kind gauss.Kind, xs, params []float64) ([]Point, error) {
	grid := make([]float64, len(xs)*f.density)
	if len(grid) < 2 {
		return nil, nil
	}
	floats.Span(grid, xs[0], xs[len(xs)-1])

	ys, err := gauss.EvalSlice(kind, grid, params)
	if err != nil {
		return nil, err
	}

	curve := make([]Point, len(grid))
	for i := range grid {
		curve[i] = Point{X: grid[i], Y: ys[i]}
	}
	return curve, nil
}

