package spectrum

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spectrum.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name        string
		text        string
		opts        []LoadOption
		positions   []float64
		intensities []float64
	}{
		{
			name:        "tab separated",
			text:        "1\t10\n2\t20\n3\t30\n",
			positions:   []float64{1, 2, 3},
			intensities: []float64{10, 20, 30},
		},
		{
			name:        "trailing segment is not a sample",
			text:        "1\t10\n2\t20\n3\t30",
			positions:   []float64{1, 2},
			intensities: []float64{10, 20},
		},
		{
			name:        "windows line endings",
			text:        "1.5\t10\r\n2.5\t20\r\n",
			positions:   []float64{1.5, 2.5},
			intensities: []float64{10, 20},
		},
		{
			name:        "decimal comma and semicolon",
			text:        "1,5;10,25\n2,5;-3\n",
			opts:        []LoadOption{WithColumnSeparator(";"), WithDecimalPoint(",")},
			positions:   []float64{1.5, 2.5},
			intensities: []float64{10.25, -3},
		},
		{
			name:        "custom line separator",
			text:        "1 2|3 4|",
			opts:        []LoadOption{WithLineSeparator("|"), WithColumnSeparator(" ")},
			positions:   []float64{1, 3},
			intensities: []float64{2, 4},
		},
		{
			name: "empty input",
			text: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Parse(strings.NewReader(tc.text), tc.opts...)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			got := store.Spectrum()
			if got.Len() != len(tc.positions) {
				t.Fatalf("Expected %d samples, got %d", len(tc.positions), got.Len())
			}
			for i := range tc.positions {
				if got.Positions[i] != tc.positions[i] {
					t.Errorf("Expected position %v at %d, got %v", tc.positions[i], i, got.Positions[i])
				}
				if got.Intensities[i] != tc.intensities[i] {
					t.Errorf("Expected intensity %v at %d, got %v", tc.intensities[i], i, got.Intensities[i])
				}
			}
		})
	}
}

func TestParse_MalformedRecord(t *testing.T) {
	testCases := []struct {
		name string
		text string
		line int
	}{
		{"three fields", "1\t2\n3\t4\t5\n", 2},
		{"one field", "1\n", 1},
		{"not a number", "1\t2\n3\tx\n", 2},
		{"empty line", "1\t2\n\n3\t4\n", 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Parse(strings.NewReader(tc.text))
			if store != nil {
				t.Errorf("Expected no store on failure")
			}
			if !errors.Is(err, ErrParse) {
				t.Fatalf("Expected %v, got %v", ErrParse, err)
			}

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected *ParseError, got %T", err)
			}
			if perr.Line != tc.line {
				t.Errorf("Expected line %d, got %d", tc.line, perr.Line)
			}
		})
	}
}

func TestParse_InvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opts []LoadOption
	}{
		{"empty line separator", []LoadOption{WithLineSeparator("")}},
		{"empty column separator", []LoadOption{WithColumnSeparator("")}},
		{"empty decimal point", []LoadOption{WithDecimalPoint("")}},
		{"decimal point equals column separator", []LoadOption{WithDecimalPoint(","), WithColumnSeparator(",")}},
		{"negative noise level", []LoadOption{WithNoiseLevel(-0.1)}},
		{"noise level above one", []LoadOption{WithNoiseLevel(1.5)}},
		{"noise level not a number", []LoadOption{WithNoiseLevel(math.NaN())}},
		{"unknown unit", []LoadOption{WithUnit("furlong")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader("1\t2\n"), tc.opts...); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Expected %v, got %v", ErrInvalidArgument, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "400\t1\n500\t3\n600\t2\n")

	store, err := Load(path, WithUnit(UnitNanometer))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if store.Path() != path {
		t.Errorf("Expected path %s, got %s", path, store.Path())
	}
	if store.Len() != 3 {
		t.Errorf("Expected 3 samples, got %d", store.Len())
	}
	if store.Unit() != UnitNanometer {
		t.Errorf("Expected unit %s, got %s", UnitNanometer, store.Unit())
	}
	if store.NoiseLevel() != DefaultNoiseLevel {
		t.Errorf("Expected noise level %v, got %v", DefaultNoiseLevel, store.NoiseLevel())
	}

	peaks := store.Peaks()
	if len(peaks) != 1 || peaks[0].Index != 1 || peaks[0].Position != 500 {
		t.Errorf("Expected a single peak at index 1, got %+v", peaks)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
		if !errors.Is(err, ErrFileNotFound) {
			t.Errorf("Expected %v, got %v", ErrFileNotFound, err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		_, err := Load(writeFile(t, "1\t2\nfoo\n"))
		if !errors.Is(err, ErrParse) {
			t.Errorf("Expected %v, got %v", ErrParse, err)
		}
	})
}
