package spectrum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NoiseFloor returns level × max(|intensity|). level must lie in [0, 1].
func NoiseFloor(intensities []float64, level float64) (float64, error) {
	if len(intensities) == 0 {
		return 0, fmt.Errorf("%w: noise floor of an empty spectrum", ErrInvalidArgument)
	}
	if level < 0 || level > 1 || math.IsNaN(level) {
		return 0, fmt.Errorf("%w: noise level must be between 0 and 1: %v given", ErrInvalidArgument, level)
	}

	return level * floats.Norm(intensities, math.Inf(1)), nil
}

// DetectPeaks returns the strict local maxima of s whose magnitude exceeds
// noiseFloor, in ascending index order. The first and last samples are never
// peaks.
func DetectPeaks(s Spectrum, noiseFloor float64) []Peak {
	ints := s.Intensities

	var peaks []Peak
	for i := 1; i < len(ints)-1; i++ {
		if math.Abs(ints[i]) <= noiseFloor {
			continue
		}
		if ints[i]-ints[i-1] > 0 && ints[i+1]-ints[i] < 0 {
			peaks = append(peaks, Peak{
				Index:     i,
				Position:  s.Positions[i],
				Intensity: ints[i],
			})
		}
	}
	return peaks
}
