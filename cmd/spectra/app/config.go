package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/fit"
	"github.com/roman-kulish/spectra/internal/gauss"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	// FitDataNone skips the fit
	FitDataNone FitData = "none"
	FitDataAll  FitData = "all"
	FitDataPeak FitData = "peak"

	defaultWorkers   = 2
	defaultWidth     = 1200
	defaultHeight    = 600
	defaultOutputDir = "out"
)

var (
	validImageFormats = map[ImageFormat]struct{}{
		ImagePNG:  {},
		ImageJPEG: {},
	}

	validFitData = map[FitData]struct{}{
		FitDataNone: {},
		FitDataAll:  {},
		FitDataPeak: {},
	}
)

type ImageFormat string

func (f ImageFormat) String() string {
	return string(f)
}

// FitData selects which samples a fit runs over.
type FitData string

func (d FitData) String() string {
	return string(d)
}

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings" json:"settings"`
	Fitting  FittingConfig `yaml:"fitting" json:"fitting"`
	Storage  StorageConfig `yaml:"storage" json:"storage"`
	Render   RenderOptions `yaml:"render" json:"render"`
	Jobs     []JobConfig   `yaml:"jobs" json:"jobs"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel" json:"logLevel"`
	Workers  int    `yaml:"workers" json:"workers"` // Number of jobs analysed concurrently
}

// Level parses the configured log level, defaulting to info.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// FittingConfig tunes the solver shared by all jobs. Zero values keep the
// solver defaults.
type FittingConfig struct {
	MaxIterations  int     `yaml:"maxIterations" json:"maxIterations,omitempty"`
	Tolerance      float64 `yaml:"tolerance" json:"tolerance,omitempty"`
	RenderDensity  int     `yaml:"renderDensity" json:"renderDensity,omitempty"` // Curve points per sample
	IdenticalSeeds bool    `yaml:"identicalSeeds" json:"identicalSeeds,omitempty"`
}

// Fitter builds the fitter described by the configuration.
func (c *FittingConfig) Fitter() *fit.Fitter {
	options := []func(*fit.Fitter){
		fit.WithMaxIterations(c.MaxIterations),
		fit.WithTolerance(c.Tolerance),
		fit.WithRenderDensity(c.RenderDensity),
	}
	if c.IdenticalSeeds {
		options = append(options, fit.WithIdenticalSeeds())
	}
	return fit.New(options...)
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
	Disabled      bool   `yaml:"disabled" json:"disabled"`
}

// RenderOptions controls the plot and report written for every job.
type RenderOptions struct {
	Directory string      `yaml:"directory" json:"directory"` // Output directory for plots and reports
	Format    ImageFormat `yaml:"format" json:"format"`
	Width     int         `yaml:"width" json:"width"`
	Height    int         `yaml:"height" json:"height"`
	Theme     ColorTheme  `yaml:"theme" json:"theme"`
	Disabled  bool        `yaml:"disabled" json:"disabled"`
}

// JobConfig describes the analysis of a single input file.
type JobConfig struct {
	Name            string          `yaml:"name" json:"name"`
	File            string          `yaml:"file" json:"file"`
	LineSeparator   string          `yaml:"lineSeparator" json:"lineSeparator"`
	ColumnSeparator string          `yaml:"columnSeparator" json:"columnSeparator"`
	DecimalPoint    string          `yaml:"decimalPoint" json:"decimalPoint"`
	NoiseLevel      *float64        `yaml:"noiseLevel" json:"noiseLevel,omitempty"`
	Units           spectrum.Unit   `yaml:"units" json:"units"`
	ConvertTo       spectrum.Unit   `yaml:"convertTo" json:"convertTo,omitempty"`
	Fits            []FitConfig     `yaml:"fits" json:"fits,omitempty"`
	Deconvolve      *DeconvolveSpec `yaml:"deconvolve" json:"deconvolve,omitempty"`
}

// FitConfig is a single fit request of a job.
type FitConfig struct {
	Model    gauss.Kind `yaml:"model" json:"model"`
	Data     FitData    `yaml:"data" json:"data"`
	Peak     int        `yaml:"peak" json:"peak"`         // Peak number for FitDataPeak
	Vicinity int        `yaml:"vicinity" json:"vicinity"` // Samples either side of the peak, 0 for the largest possible
}

// DeconvolveSpec requests an instrument response estimate from the fit of
// Model, over the samples that fit covers.
type DeconvolveSpec struct {
	Model   gauss.Kind    `yaml:"model" json:"model"`
	Method  deconv.Method `yaml:"method" json:"method"`
	Epsilon float64       `yaml:"epsilon" json:"epsilon,omitempty"`
}

// LoadConfig reads and validates the YAML configuration at path, applying
// defaults for omitted settings.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.Workers <= 0 {
		c.Settings.Workers = defaultWorkers
	}
	if c.Render.Directory == "" {
		c.Render.Directory = defaultOutputDir
	}
	if c.Render.Format == "" {
		c.Render.Format = ImagePNG
	}
	c.Render.Format = ImageFormat(strings.ToLower(string(c.Render.Format)))
	if c.Render.Width <= 0 {
		c.Render.Width = defaultWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = defaultHeight
	}
	if c.Render.Theme == "" {
		c.Render.Theme = ClassicTheme
	}

	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.LineSeparator == "" {
			job.LineSeparator = spectrum.DefaultLineSeparator
		}
		if job.ColumnSeparator == "" {
			job.ColumnSeparator = spectrum.DefaultColumnSeparator
		}
		if job.DecimalPoint == "" {
			job.DecimalPoint = spectrum.DefaultDecimalPoint
		}
		for j := range job.Fits {
			if job.Fits[j].Data == "" {
				job.Fits[j].Data = FitDataAll
			}
		}
	}
}

func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return fmt.Errorf("app.Config: invalid log level: %s", c.Settings.LogLevel)
	}
	if _, ok := validImageFormats[c.Render.Format]; !ok {
		return fmt.Errorf("app.Config: invalid image format: %s", c.Render.Format)
	}
	if _, ok := validColorThemes[c.Render.Theme]; !ok {
		return fmt.Errorf("app.Config: invalid color theme: %s", c.Render.Theme)
	}
	if c.Fitting.MaxIterations < 0 || c.Fitting.Tolerance < 0 || c.Fitting.RenderDensity < 0 {
		return errors.New("app.Config: fitting settings must not be negative")
	}
	if len(c.Jobs) == 0 {
		return errors.New("app.Config: no jobs specified")
	}

	names := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if err := job.Validate(); err != nil {
			return fmt.Errorf("app.Config: job %d: %w", i, err)
		}
		if _, ok := names[job.Name]; ok {
			return fmt.Errorf("app.Config: duplicate job name: %s", job.Name)
		}
		names[job.Name] = struct{}{}
	}

	return nil
}

func (j *JobConfig) Validate() error {
	if j.Name == "" {
		return errors.New("app.JobConfig: name is required")
	}
	if strings.ContainsAny(j.Name, `/\`) {
		return fmt.Errorf("app.JobConfig: name must not contain path separators: %s", j.Name)
	}
	if j.File == "" {
		return fmt.Errorf("app.JobConfig: %s: file is required", j.Name)
	}
	if j.DecimalPoint == j.ColumnSeparator && j.DecimalPoint != spectrum.DefaultDecimalPoint {
		return fmt.Errorf("app.JobConfig: %s: decimal point and column separator are both %q", j.Name, j.DecimalPoint)
	}
	if j.NoiseLevel != nil && (*j.NoiseLevel < 0 || *j.NoiseLevel > 1 || math.IsNaN(*j.NoiseLevel)) {
		return fmt.Errorf("app.JobConfig: %s: noise level must be between 0 and 1: %0.3f given", j.Name, *j.NoiseLevel)
	}
	if j.ConvertTo != spectrum.UnitUnset && j.Units == spectrum.UnitUnset {
		return fmt.Errorf("app.JobConfig: %s: units are required to convert to %s", j.Name, j.ConvertTo)
	}

	for i, f := range j.Fits {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("app.JobConfig: %s: fit %d: %w", j.Name, i, err)
		}
	}

	if d := j.Deconvolve; d != nil {
		if err := d.Method.Validate(); err != nil {
			return fmt.Errorf("app.JobConfig: %s: %w", j.Name, err)
		}
		if !d.Model.Valid() {
			return fmt.Errorf("app.JobConfig: %s: deconvolution needs a fitted model: %q given", j.Name, d.Model)
		}

		var fitted bool
		for _, f := range j.Fits {
			fitted = fitted || (f.Model == d.Model && f.Data != FitDataNone)
		}
		if !fitted {
			return fmt.Errorf("app.JobConfig: %s: deconvolution model %s is never fitted", j.Name, d.Model)
		}
	}

	return nil
}

func (f *FitConfig) Validate() error {
	if _, ok := validFitData[f.Data]; !ok {
		return fmt.Errorf("app.FitConfig: invalid data selection: %s", f.Data)
	}
	if f.Data == FitDataNone {
		return nil
	}
	if !f.Model.Valid() {
		return fmt.Errorf("app.FitConfig: invalid model: %q", f.Model)
	}
	if f.Data == FitDataPeak && (f.Peak < 0 || f.Vicinity < 0) {
		return fmt.Errorf("app.FitConfig: peak and vicinity must not be negative: %d, %d", f.Peak, f.Vicinity)
	}
	return nil
}
