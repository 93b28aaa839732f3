package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/spectra/internal/storage"
)

const (
	storageDir = "data"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	options := []func(*Orchestrator){
		WithMaxWorkers(config.Settings.Workers),
		WithFitter(config.Fitting.Fitter()),
	}

	if !config.Storage.Disabled {
		store, serr := createStorage(&config.Storage)
		if serr != nil {
			return fmt.Errorf("failed to create storage: %w", serr)
		}
		defer func() {
			err = errors.Join(err, store.Close())
		}()

		logger.Info("storing analyses", slog.String("path", store.Path()))
		options = append(options, WithStore(store))
	}

	if !config.Render.Disabled {
		w, err := newOutputWriter(&config.Render, logger)
		if err != nil {
			return fmt.Errorf("failed to create output writer: %w", err)
		}
		options = append(options, WithSink(w.write))
	}

	orchestrator := NewOrchestrator(logger, options...)
	for i := range config.Jobs {
		if err = orchestrator.AddJob(&config.Jobs[i]); err != nil {
			return err
		}
	}

	return orchestrator.Run(ctx)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	switch {
	case filepath.IsAbs(config.DataDirectory):
		dbPath = config.DataDirectory
	case config.DataDirectory != "":
		dbPath = filepath.Join(wd, config.DataDirectory)
	default:
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("spectra_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}

// outputWriter renders the plot and writes the text report of every analysis
// into the output directory, named after the job.
type outputWriter struct {
	config   *RenderOptions
	renderer *PlotRenderer
	logger   *slog.Logger
}

func newOutputWriter(config *RenderOptions, logger *slog.Logger) (*outputWriter, error) {
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	renderer, err := NewPlotRenderer(RenderConfig{
		Width:      config.Width,
		Height:     config.Height,
		ColorTheme: config.Theme,
	})
	if err != nil {
		return nil, fmt.Errorf("creating plot renderer: %w", err)
	}

	return &outputWriter{config: config, renderer: renderer, logger: logger}, nil
}

func (w *outputWriter) write(_ context.Context, a *Analysis) error {
	img, err := w.renderer.Render(a)
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}

	imagePath := filepath.Join(w.config.Directory, a.Job.Name+"."+w.config.Format.String())
	if err = writeFile(imagePath, func(f *os.File) error {
		return Encode(f, img, w.config.Format)
	}); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}

	reportPath := filepath.Join(w.config.Directory, a.Job.Name+".txt")
	if err = writeFile(reportPath, func(f *os.File) error {
		return WriteReport(f, a)
	}); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	w.logger.Info("analysis written",
		slog.String("job", a.Job.Name),
		slog.String("plot", imagePath),
		slog.String("report", reportPath),
		slog.Int("fits", len(a.Fits)),
	)
	return nil
}

func writeFile(path string, fn func(*os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	return fn(f)
}
