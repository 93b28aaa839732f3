// Package deconv estimates an instrument response function by dividing the
// spectrum of an observed signal by the spectrum of a model of the true line
// shape.
//
// Spectral division is ill-posed wherever the model spectrum has near-zero
// magnitude. The Naive method performs the plain division and lets those bins
// blow up; Regularized and Wiener trade accuracy for stability and must be
// asked for explicitly.
package deconv

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// Deconvolution errors.
var (
	ErrEmptyInput     = errors.New("deconv: empty input")
	ErrLengthMismatch = errors.New("deconv: observed and model lengths differ")
)

// Method selects how the spectral division is carried out.
type Method string

const (
	// Naive divides the transforms element-wise: IFFT(FFT(obs) / FFT(model)).
	Naive Method = "naive"

	// Regularized computes IFFT(FFT(obs)·conj(H) / (|H|² + ε)).
	Regularized Method = "regularized"

	// Wiener is Regularized with ε set to the noise-to-signal ratio.
	Wiener Method = "wiener"
)

const (
	defaultEpsilon = 1e-6
	defaultNSR     = 0.01
)

var validMethods = map[Method]struct{}{
	Naive:       {},
	Regularized: {},
	Wiener:      {},
}

func (m Method) String() string {
	return string(m)
}

// Validate reports whether m names a known method. The empty method is Naive.
func (m Method) Validate() error {
	if m == "" {
		return nil
	}
	if _, ok := validMethods[m]; !ok {
		return fmt.Errorf("deconv: unknown method %q", m)
	}
	return nil
}

// Options configures Estimate.
type Options struct {
	Method Method

	// Epsilon is the regularisation term for Regularized.
	Epsilon float64

	// NoiseVariance and SignalVariance feed the Wiener noise-to-signal ratio.
	// A zero SignalVariance is estimated from the observed data, a zero
	// NoiseVariance is taken as 1% of it.
	NoiseVariance  float64
	SignalVariance float64
}

// Estimate returns the real part of IFFT(FFT(observed) ÷ FFT(model)) using the
// configured division method. Both inputs must sample the same positions.
func Estimate(observed, model []float64, opts Options) ([]float64, error) {
	if len(observed) == 0 || len(model) == 0 {
		return nil, ErrEmptyInput
	}
	if len(observed) != len(model) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(observed), len(model))
	}
	if err := opts.Method.Validate(); err != nil {
		return nil, err
	}

	n := len(observed)
	fft := fourier.NewCmplxFFT(n)

	obsFreq := fft.Coefficients(nil, toComplex(observed))
	modelFreq := fft.Coefficients(nil, toComplex(model))

	ratio := make([]complex128, n)
	switch opts.Method {
	case Regularized:
		eps := opts.Epsilon
		if eps <= 0 {
			eps = defaultEpsilon
		}
		divideRegularized(ratio, obsFreq, modelFreq, eps)

	case Wiener:
		divideRegularized(ratio, obsFreq, modelFreq, noiseToSignal(observed, opts))

	default:
		for i := range ratio {
			ratio[i] = obsFreq[i] / modelFreq[i]
		}
	}

	seq := fft.Sequence(nil, ratio)

	// Sequence is unnormalised
	scale := 1 / float64(n)
	out := make([]float64, n)
	for i, v := range seq {
		out[i] = real(v) * scale
	}
	return out, nil
}

// transform returns the DFT of a real sequence.
func transform(x []float64) []complex128 {
	if len(x) == 0 {
		return nil
	}
	return fourier.NewCmplxFFT(len(x)).Coefficients(nil, toComplex(x))
}

func divideRegularized(dst, num, den []complex128, eps float64) {
	for i := range dst {
		h := den[i]
		magSq := real(h)*real(h) + imag(h)*imag(h)
		dst[i] = num[i] * cmplx.Conj(h) / complex(magSq+eps, 0)
	}
}

func noiseToSignal(observed []float64, opts Options) float64 {
	signalVar := opts.SignalVariance
	if signalVar <= 0 {
		signalVar = stat.PopVariance(observed, nil)
	}
	if signalVar <= 0 {
		return defaultEpsilon
	}

	noiseVar := opts.NoiseVariance
	if noiseVar <= 0 {
		noiseVar = signalVar * defaultNSR
	}
	return noiseVar / signalVar
}

func toComplex(x []float64) []complex128 {
	c := make([]complex128, len(x))
	for i, v := range x {
		c[i] = complex(v, 0)
	}
	return c
}
