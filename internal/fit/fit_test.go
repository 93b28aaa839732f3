package fit

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/spectra/internal/gauss"
)

func synthesize(t *testing.T, kind gauss.Kind, params []float64, from, to, step float64) ([]float64, []float64) {
	t.Helper()

	n := int(math.Round((to-from)/step)) + 1
	xs := make([]float64, n)
	floats.Span(xs, from, to)

	ys, err := gauss.EvalSlice(kind, xs, params)
	if err != nil {
		t.Fatalf("Failed to synthesize data: %v", err)
	}
	return xs, ys
}

func requireRelative(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol*math.Abs(want) {
		t.Errorf("%s: expected %v within %.2g relative, got %v", name, want, tol, got)
	}
}

func TestFit_SingleGaussianNoiseless(t *testing.T) {
	xs, ys := synthesize(t, gauss.Gaussian, []float64{5, 10, 2, 0}, 0, 20, 0.1)

	res, err := New().Fit(gauss.Gaussian, xs, ys, 0)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	requireRelative(t, "amplitude", res.Params[0], 5, 0.01)
	requireRelative(t, "centre", res.Params[1], 10, 0.01)
	requireRelative(t, "sigma", res.Params[2], 2, 0.01)
	if math.Abs(res.Params[3]) > 1e-6 {
		t.Errorf("Expected offset near 0, got %v", res.Params[3])
	}

	for i, e := range res.StdErrors {
		if math.IsNaN(e) || e > 1e-6 {
			t.Errorf("Expected near-zero std error for parameter %d, got %v", i, e)
		}
	}
}

func TestFit_TripletSeparatedPeaks(t *testing.T) {
	truth := []float64{2, 10, 0.35, 3, 20, 0.35, 2.5, 30, 0.35}
	xs, ys := synthesize(t, gauss.Triplet, truth, 0, 40, 0.05)

	res, err := New().Fit(gauss.Triplet, xs, ys, 0.02*floats.Max(ys))
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if len(res.Params) != 9 || len(res.StdErrors) != 9 {
		t.Fatalf("Expected 9 parameters and errors, got %d and %d", len(res.Params), len(res.StdErrors))
	}

	for i, want := range []float64{10, 20, 30} {
		requireRelative(t, "centre", res.Params[3*i+1], want, 0.01)
	}
}

func TestFit_DoubletOrdering(t *testing.T) {
	truth := []float64{1.5, 4, 0.3, 1, 8, 0.3}
	xs, ys := synthesize(t, gauss.Doublet, truth, 0, 12, 0.02)

	res, err := New().Fit(gauss.Doublet, xs, ys, 0)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	requireRelative(t, "first centre", res.Params[1], 4, 0.01)
	requireRelative(t, "second centre", res.Params[4], 8, 0.01)
}

func TestFitter_InitialGuess(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}
	ys := []float64{1, 2, -6, 3, 4, 3, 2, 1, 0.5}

	t.Run("gaussian", func(t *testing.T) {
		seed, b := New().initialGuess(gauss.Gaussian, xs, ys, 0.1)

		expected := []float64{6, 4, 1, 1}
		if !floats.Equal(seed, expected) {
			t.Errorf("Expected seed %v, got %v", expected, seed)
		}
		if b.lower[0] != 0 || !math.IsInf(b.upper[0], 1) {
			t.Errorf("Expected amplitude bounds [0, +Inf), got [%v, %v]", b.lower[0], b.upper[0])
		}
		if b.lower[1] != 0 || b.upper[1] != 8 {
			t.Errorf("Expected centre bounds [0, 8], got [%v, %v]", b.lower[1], b.upper[1])
		}
		if !math.IsInf(b.lower[3], -1) || !math.IsInf(b.upper[3], 1) {
			t.Errorf("Expected unbounded offset, got [%v, %v]", b.lower[3], b.upper[3])
		}
	})

	t.Run("spread triplet", func(t *testing.T) {
		seed, b := New().initialGuess(gauss.Triplet, xs, ys, 0.1)

		expected := []float64{6, 2, 1, 6, 4, 1, 6, 6, 1}
		if !floats.Equal(seed, expected) {
			t.Errorf("Expected seed %v, got %v", expected, seed)
		}
		for i := 0; i < 3; i++ {
			if b.lower[3*i] != 0.1 || b.upper[3*i] != 6 {
				t.Errorf("Component %d: expected amplitude bounds [0.1, 6], got [%v, %v]", i, b.lower[3*i], b.upper[3*i])
			}
		}
	})

	t.Run("identical doublet", func(t *testing.T) {
		seed, _ := New(WithIdenticalSeeds()).initialGuess(gauss.Doublet, xs, ys, 0.1)

		expected := []float64{6, 4, 1, 6, 4, 1}
		if !floats.Equal(seed, expected) {
			t.Errorf("Expected seed %v, got %v", expected, seed)
		}
	})
}

func TestFit_RenderedCurve(t *testing.T) {
	xs, ys := synthesize(t, gauss.Gaussian, []float64{5, 10, 2, 1}, 0, 20, 0.5)

	res, err := New(WithRenderDensity(7)).Fit(gauss.Gaussian, xs, ys, 0)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if want := len(xs) * 7; len(res.Curve) != want {
		t.Fatalf("Expected %d curve points, got %d", want, len(res.Curve))
	}
	if res.Curve[0].X != xs[0] || res.Curve[len(res.Curve)-1].X != xs[len(xs)-1] {
		t.Errorf("Expected curve to span [%v, %v], got [%v, %v]",
			xs[0], xs[len(xs)-1], res.Curve[0].X, res.Curve[len(res.Curve)-1].X)
	}
	if res.Begin != 0 || res.End != len(xs) || res.Len() != len(xs) {
		t.Errorf("Expected subrange [0, %d), got [%d, %d)", len(xs), res.Begin, res.End)
	}
}

func TestFit_NoisyDataReportsErrors(t *testing.T) {
	xs, ys := synthesize(t, gauss.Gaussian, []float64{50, 100, 3, 2}, 80, 120, 0.25)
	for i := range ys {
		ys[i] += 0.05 * math.Sin(float64(i)*1.7)
	}

	res, err := New().Fit(gauss.Gaussian, xs, ys, 0)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	requireRelative(t, "centre", res.Params[1], 100, 0.001)
	for i, e := range res.StdErrors {
		if !(e > 0) || math.IsInf(e, 0) {
			t.Errorf("Expected finite positive std error for parameter %d, got %v", i, e)
		}
	}
}

func TestFit_Errors(t *testing.T) {
	xs := []float64{1, 2, 3}
	ys := []float64{0, 1, 0}

	testCases := []struct {
		name string
		kind gauss.Kind
		xs   []float64
		ys   []float64
		err  error
	}{
		{"too few samples for gaussian", gauss.Gaussian, xs, ys, ErrInvalidSubrange},
		{"too few samples for doublet", gauss.Doublet, []float64{1, 2, 3, 4, 5}, []float64{0, 1, 2, 1, 0}, ErrInvalidSubrange},
		{"none kind", gauss.None, xs, ys, ErrInvalidArgument},
		{"mismatched lengths", gauss.Gaussian, []float64{1, 2, 3, 4}, ys, ErrInvalidArgument},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New().Fit(tc.kind, tc.xs, tc.ys, 0); !errors.Is(err, tc.err) {
				t.Errorf("Expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestFit_IterationBudget(t *testing.T) {
	xs, ys := synthesize(t, gauss.Gaussian, []float64{40, 14, 0.8, 0}, 0, 20, 0.1)

	_, err := New(WithMaxIterations(1)).Fit(gauss.Gaussian, xs, ys, 0)
	if !errors.Is(err, ErrDidNotConverge) {
		t.Errorf("Expected %v, got %v", ErrDidNotConverge, err)
	}
}
