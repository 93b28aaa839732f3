package spectrum

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/roman-kulish/spectra/internal/fit"
)

const (
	DefaultLineSeparator   = "\n"
	DefaultColumnSeparator = "\t"
	DefaultDecimalPoint    = "."
	DefaultNoiseLevel      = 0.02
)

// loadConfig holds the input format and analysis settings used by Load and Parse
type loadConfig struct {
	lineSeparator   string
	columnSeparator string
	decimalPoint    string
	noiseLevel      float64
	unit            Unit
	fitter          *fit.Fitter
}

// LoadOption configures Load and Parse.
type LoadOption func(*loadConfig)

// WithLineSeparator sets the record separator.
func WithLineSeparator(sep string) LoadOption {
	return func(c *loadConfig) {
		c.lineSeparator = sep
	}
}

// WithColumnSeparator sets the separator between position and intensity.
func WithColumnSeparator(sep string) LoadOption {
	return func(c *loadConfig) {
		c.columnSeparator = sep
	}
}

// WithDecimalPoint sets the decimal symbol that is remapped to "." before
// numbers are parsed.
func WithDecimalPoint(symbol string) LoadOption {
	return func(c *loadConfig) {
		c.decimalPoint = symbol
	}
}

// WithNoiseLevel sets the noise floor as a fraction of the largest absolute
// intensity, in [0, 1].
func WithNoiseLevel(level float64) LoadOption {
	return func(c *loadConfig) {
		c.noiseLevel = level
	}
}

// WithUnit declares the units of the position column.
func WithUnit(u Unit) LoadOption {
	return func(c *loadConfig) {
		c.unit = u
	}
}

// WithFitter sets the fitter used by Store.Fit.
func WithFitter(f *fit.Fitter) LoadOption {
	return func(c *loadConfig) {
		c.fitter = f
	}
}

func newLoadConfig(opts []LoadOption) (*loadConfig, error) {
	c := loadConfig{
		lineSeparator:   DefaultLineSeparator,
		columnSeparator: DefaultColumnSeparator,
		decimalPoint:    DefaultDecimalPoint,
		noiseLevel:      DefaultNoiseLevel,
	}
	for _, opt := range opts {
		opt(&c)
	}

	switch {
	case c.lineSeparator == "":
		return nil, fmt.Errorf("%w: empty line separator", ErrInvalidArgument)
	case c.columnSeparator == "":
		return nil, fmt.Errorf("%w: empty column separator", ErrInvalidArgument)
	case c.decimalPoint == "":
		return nil, fmt.Errorf("%w: empty decimal point symbol", ErrInvalidArgument)
	case c.decimalPoint == c.columnSeparator && c.decimalPoint != DefaultDecimalPoint:
		return nil, fmt.Errorf("%w: decimal point and column separator are both %q", ErrInvalidArgument, c.decimalPoint)
	case c.noiseLevel < 0 || c.noiseLevel > 1 || math.IsNaN(c.noiseLevel):
		return nil, fmt.Errorf("%w: noise level must be between 0 and 1: %v given", ErrInvalidArgument, c.noiseLevel)
	case c.unit != UnitUnset && !c.unit.Valid():
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidArgument, c.unit)
	}

	if c.fitter == nil {
		c.fitter = fit.New()
	}
	return &c, nil
}

// Load reads a two-column text file and returns a Store holding its spectrum
// and detected peaks. Nothing is returned unless every record parses.
func Load(path string, opts ...LoadOption) (*Store, error) {
	config, err := newLoadConfig(opts)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	spec, err := parseText(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return newStore(path, spec, config)
}

// Parse is Load over an arbitrary reader.
func Parse(r io.Reader, opts ...LoadOption) (*Store, error) {
	config, err := newLoadConfig(opts)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading spectrum: %w", err)
	}

	spec, err := parseText(string(data), config)
	if err != nil {
		return nil, err
	}

	return newStore("", spec, config)
}

// parseText splits text into records. The segment after the last line
// separator is never a sample, so an N-record file ends with a separator.
func parseText(text string, c *loadConfig) (Spectrum, error) {
	lines := strings.Split(text, c.lineSeparator)
	count := len(lines) - 1

	spec := Spectrum{
		Positions:   make([]float64, 0, count),
		Intensities: make([]float64, 0, count),
	}

	for i := 0; i < count; i++ {
		record := strings.ReplaceAll(lines[i], c.decimalPoint, ".")

		fields := strings.Split(record, c.columnSeparator)
		if len(fields) != 2 {
			return Spectrum{}, &ParseError{
				Line:   i + 1,
				Record: lines[i],
				Err:    fmt.Errorf("expected 2 fields, got %d", len(fields)),
			}
		}

		position, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return Spectrum{}, &ParseError{Line: i + 1, Record: lines[i], Err: fmt.Errorf("invalid position: %w", err)}
		}

		intensity, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return Spectrum{}, &ParseError{Line: i + 1, Record: lines[i], Err: fmt.Errorf("invalid intensity: %w", err)}
		}

		spec.Positions = append(spec.Positions, position)
		spec.Intensities = append(spec.Intensities, intensity)
	}

	return spec, nil
}
