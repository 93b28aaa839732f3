// Package gauss evaluates the Gaussian line-shape models used to fit spectral peaks.
//
// Two families are supported:
//
//   - Gaussian: a single Gaussian on a constant offset, parameters (A, x0, σ, δ)
//     f(x) = δ + A/(σ√2π)·exp(−((x−x0)/σ)²/2)
//   - Doublet, Triplet, Quadruplet: a sum of k unshifted Gaussians, parameters
//     ordered (A₁, x₁, σ₁, A₂, x₂, σ₂, …) with no shared offset term.
//
// All functions are pure and safe for concurrent use.
package gauss

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	None       Kind = "none"
	Gaussian   Kind = "gaussian"
	Doublet    Kind = "doublet"
	Triplet    Kind = "triplet"
	Quadruplet Kind = "quadruplet"
)

// ErrUnknownKind is returned for a model kind that has no evaluation function.
var ErrUnknownKind = errors.New("unknown model kind")

// ErrParamCount is returned when a parameter vector does not match the model.
var ErrParamCount = errors.New("wrong number of model parameters")

var sqrt2Pi = math.Sqrt(2 * math.Pi)

var components = map[Kind]int{
	Gaussian:   1,
	Doublet:    2,
	Triplet:    3,
	Quadruplet: 4,
}

// Kind names a model family.
type Kind string

func (k Kind) String() string {
	return string(k)
}

// Components returns the number of Gaussian terms of the model, 0 for None or
// an unknown kind.
func (k Kind) Components() int {
	return components[k]
}

// NumParams returns the length of the parameter vector expected by the model.
func (k Kind) NumParams() int {
	switch n := components[k]; {
	case k == Gaussian:
		return 4
	case n > 0:
		return 3 * n
	default:
		return 0
	}
}

// Valid reports whether k can be evaluated.
func (k Kind) Valid() bool {
	_, ok := components[k]
	return ok
}

// ParseKind resolves a case-insensitive model name. An empty name is None.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case None, Gaussian, Doublet, Triplet, Quadruplet:
		return k, nil
	case "double gaussian", "double":
		return Doublet, nil
	case "":
		return None, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	kind, err := ParseKind(value.Value)
	if err != nil {
		return fmt.Errorf("gauss.Kind: %w", err)
	}

	*k = kind
	return nil
}

func (k Kind) MarshalYAML() (interface{}, error) {
	return string(k), nil
}

// Single evaluates one Gaussian term plus offset.
func Single(x, a, x0, sigma, delta float64) float64 {
	return delta + term(x, a, x0, sigma)
}

// Mixture evaluates the sum of len(p)/3 Gaussian terms at x. Trailing
// parameters that do not form a full triple are ignored.
func Mixture(x float64, p []float64) float64 {
	var sum float64
	for i := 0; i+2 < len(p); i += 3 {
		sum += term(x, p[i], p[i+1], p[i+2])
	}
	return sum
}

func term(x, a, x0, sigma float64) float64 {
	z := (x - x0) / sigma
	return a / (sigma * sqrt2Pi) * math.Exp(-z*z/2)
}

// FWHM returns the full width at half maximum of a Gaussian of width sigma.
func FWHM(sigma float64) float64 {
	return 2 * math.Sqrt(2*math.Ln2) * sigma
}

// Height returns the peak value A/(σ√2π) of a single term.
func Height(a, sigma float64) float64 {
	return a / (sigma * sqrt2Pi)
}

func checkParams(kind Kind, p []float64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if want := kind.NumParams(); len(p) != want {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrParamCount, kind, want, len(p))
	}
	return nil
}

// Eval evaluates the model of the given kind at x.
func Eval(kind Kind, x float64, p []float64) (float64, error) {
	if err := checkParams(kind, p); err != nil {
		return 0, err
	}
	return eval(kind, x, p), nil
}

func eval(kind Kind, x float64, p []float64) float64 {
	if kind == Gaussian {
		return Single(x, p[0], p[1], p[2], p[3])
	}
	return Mixture(x, p)
}

// EvalSlice evaluates the model at every x in xs.
func EvalSlice(kind Kind, xs, p []float64) ([]float64, error) {
	if err := checkParams(kind, p); err != nil {
		return nil, err
	}

	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = eval(kind, x, p)
	}
	return ys, nil
}

// Gradient writes the partial derivatives of the model with respect to each
// parameter at x into dst, which must have length kind.NumParams().
func Gradient(kind Kind, dst []float64, x float64, p []float64) error {
	if err := checkParams(kind, p); err != nil {
		return err
	}
	if len(dst) != len(p) {
		return fmt.Errorf("%w: gradient buffer has %d elements, want %d", ErrParamCount, len(dst), len(p))
	}

	for i := 0; i+2 < len(p); i += 3 {
		a, x0, sigma := p[i], p[i+1], p[i+2]
		z := (x - x0) / sigma
		g := math.Exp(-z*z/2) / (sigma * sqrt2Pi)

		dst[i] = g
		dst[i+1] = a * g * z / sigma
		dst[i+2] = a * g * (z*z - 1) / sigma
	}
	if kind == Gaussian {
		dst[3] = 1
	}
	return nil
}
