package spectrum

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/fit"
	"github.com/roman-kulish/spectra/internal/gauss"
)

// Fit is a cached fit result together with the unit system of the positions
// it was computed on.
type Fit struct {
	*fit.Result
	Unit Unit `json:"unit"`

	axis int
}

// Store owns one loaded spectrum, its detected peaks and the most recent fit
// of every model kind.
type Store struct {
	mu sync.RWMutex

	path       string
	data       Spectrum
	peaks      []Peak
	noiseLevel float64
	unit       Unit
	axis       int // bumped whenever positions are rewritten

	fitter *fit.Fitter
	fits   map[gauss.Kind]*Fit
}

func newStore(path string, data Spectrum, c *loadConfig) (*Store, error) {
	s := Store{
		path:       path,
		data:       data,
		noiseLevel: c.noiseLevel,
		unit:       c.unit,
		fitter:     c.fitter,
		fits:       make(map[gauss.Kind]*Fit),
	}
	if err := s.detect(); err != nil {
		return nil, err
	}
	return &s, nil
}

// detect rebuilds the peak list. The caller must hold the write lock or own s
// exclusively.
func (s *Store) detect() error {
	floor, err := NoiseFloor(s.data.Intensities, s.noiseLevel)
	if err != nil {
		return err
	}
	s.peaks = DetectPeaks(s.data, floor)
	return nil
}

// Path returns the file the spectrum was loaded from, empty for Parse.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data.Len()
}

// Spectrum returns a copy of the whole spectrum.
func (s *Store) Spectrum() Spectrum {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.data.Clone()
}

// Peaks returns a copy of the detected peaks.
func (s *Store) Peaks() []Peak {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Peak(nil), s.peaks...)
}

// Unit returns the current unit system of the position axis.
func (s *Store) Unit() Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unit
}

// NoiseLevel returns the noise level fraction configured at load.
func (s *Store) NoiseLevel() float64 {
	return s.noiseLevel
}

// NoiseFloor returns the noise level times the largest absolute intensity.
func (s *Store) NoiseFloor() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return NoiseFloor(s.data.Intensities, s.noiseLevel)
}

// SetIntensities replaces the intensity column and re-detects peaks. Cached
// fits are kept; they describe the data they were computed on.
func (s *Store) SetIntensities(intensities []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(intensities) != s.data.Len() {
		return fmt.Errorf("%w: %d intensities for %d samples", ErrInvalidArgument, len(intensities), s.data.Len())
	}

	s.data.Intensities = append([]float64(nil), intensities...)
	return s.detect()
}

// Range returns a copy of the samples [begin, end).
func (s *Store) Range(begin, end int) (Spectrum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rangeLocked(begin, end)
}

func (s *Store) rangeLocked(begin, end int) (Spectrum, error) {
	if begin < 0 || end > s.data.Len() || begin >= end {
		return Spectrum{}, fmt.Errorf("%w: range [%d, %d) of %d samples", ErrOutOfRange, begin, end, s.data.Len())
	}

	return Spectrum{
		Positions:   append([]float64(nil), s.data.Positions[begin:end]...),
		Intensities: append([]float64(nil), s.data.Intensities[begin:end]...),
	}, nil
}

// MaxVicinity returns the largest n accepted by Vicinity for the given peak
// number: the distance from the peak to the nearer end of the spectrum.
func (s *Store) MaxVicinity(peak int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.peakLocked(peak)
	if err != nil {
		return 0, err
	}
	return min(p.Index, s.data.Len()-p.Index-1), nil
}

// Vicinity returns the subrange [idx-n, idx+n+1) centred on the peak with the
// given number.
func (s *Store) Vicinity(peak, n int) (begin, end int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.vicinityLocked(peak, n)
}

func (s *Store) vicinityLocked(peak, n int) (int, int, error) {
	p, err := s.peakLocked(peak)
	if err != nil {
		return 0, 0, err
	}

	limit := min(p.Index, s.data.Len()-p.Index-1)
	if n < 0 || n > limit {
		return 0, 0, fmt.Errorf("%w: vicinity %d of peak %d, at most %d", ErrOutOfRange, n, peak, limit)
	}
	return p.Index - n, p.Index + n + 1, nil
}

func (s *Store) peakLocked(peak int) (Peak, error) {
	if peak < 0 || peak >= len(s.peaks) {
		return Peak{}, fmt.Errorf("%w: peak %d of %d", ErrOutOfRange, peak, len(s.peaks))
	}
	return s.peaks[peak], nil
}

// Fit fits kind to the samples [begin, end) and caches the result, replacing
// only the previous result of the same kind.
func (s *Store) Fit(kind gauss.Kind, begin, end int) (*Fit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fitLocked(kind, begin, end)
}

// FitAll fits kind to the whole spectrum.
func (s *Store) FitAll(kind gauss.Kind) (*Fit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fitLocked(kind, 0, s.data.Len())
}

// FitPeak fits kind to the vicinity of n samples around a peak.
func (s *Store) FitPeak(kind gauss.Kind, peak, n int) (*Fit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	begin, end, err := s.vicinityLocked(peak, n)
	if err != nil {
		return nil, err
	}
	return s.fitLocked(kind, begin, end)
}

func (s *Store) fitLocked(kind gauss.Kind, begin, end int) (*Fit, error) {
	if !kind.Valid() || kind == gauss.None {
		return nil, fmt.Errorf("%w: cannot fit model %q", ErrInvalidArgument, kind)
	}

	sub, err := s.rangeLocked(begin, end)
	if err != nil {
		return nil, err
	}

	floor, err := NoiseFloor(s.data.Intensities, s.noiseLevel)
	if err != nil {
		return nil, err
	}

	res, err := s.fitter.Fit(kind, sub.Positions, sub.Intensities, floor)
	if err != nil {
		if errors.Is(err, fit.ErrInvalidArgument) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return nil, err
	}

	res.Begin = begin
	res.End = end

	f := &Fit{Result: res, Unit: s.unit, axis: s.axis}
	s.fits[kind] = f
	return f, nil
}

// FitResult returns the cached fit of kind, if any.
func (s *Store) FitResult(kind gauss.Kind) (*Fit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fits[kind]
	return f, ok
}

// Convert converts the position axis to the unit system to. It reports false,
// leaving the store untouched, if a zero position would be a divisor. When the
// current unit is unset only the tag is recorded. Peak positions are re-read
// from the converted axis.
func (s *Store) Convert(to Unit) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: unknown unit %q", ErrInvalidArgument, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unit == UnitUnset {
		s.unit = to
		return true, nil
	}
	if s.unit == to {
		return true, nil
	}

	positions, ok, err := ConvertPositions(s.data.Positions, s.unit, to)
	if err != nil || !ok {
		return false, err
	}

	s.data.Positions = positions
	s.unit = to
	s.axis++
	for i := range s.peaks {
		s.peaks[i].Position = positions[s.peaks[i].Index]
	}
	return true, nil
}

// Response estimates the instrument response over [begin, end) by
// deconvolving the observed intensities with the cached fit of kind evaluated
// at the same positions.
func (s *Store) Response(kind gauss.Kind, begin, end int, opts deconv.Options) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fits[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s fit", ErrInvalidArgument, kind)
	}
	if f.axis != s.axis {
		return nil, fmt.Errorf("%w: %s fit computed in %s, axis is now %s", ErrInvalidArgument, kind, f.Unit, s.unit)
	}

	sub, err := s.rangeLocked(begin, end)
	if err != nil {
		return nil, err
	}
	if sub.Len() != f.Len() {
		return nil, fmt.Errorf("%w: range of %d samples, %s fit covers %d", ErrInvalidArgument, sub.Len(), kind, f.Len())
	}

	model, err := f.Eval(sub.Positions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	resp, err := deconv.Estimate(sub.Intensities, model, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return resp, nil
}
