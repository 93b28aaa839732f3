package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roman-kulish/spectra/internal/fit"
	"github.com/roman-kulish/spectra/internal/spectrum"
	"github.com/roman-kulish/spectra/internal/storage"
)

const defaultMaxWorkers = 1

// WithMaxWorkers sets the number of jobs analysed concurrently.
func WithMaxWorkers(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxWorkers = n
	}
}

// WithStore sets the store every analysis is persisted to. Without a store
// analyses are only handed to the sinks.
func WithStore(store storage.Store) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithSink registers a function called with every completed analysis, after
// it has been persisted.
func WithSink(sink func(context.Context, *Analysis) error) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sink)
	}
}

// WithFitter sets the fitter shared by all jobs.
func WithFitter(f *fit.Fitter) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.fitter = f
	}
}

// Orchestrator runs analysis jobs on a bounded pool of workers. Completed
// analyses are handed to a single goroutine which persists them, so the store
// only ever sees one writer.
type Orchestrator struct {
	jobs []*JobConfig

	logger *slog.Logger
	store  storage.Store
	fitter *fit.Fitter
	sinks  []func(context.Context, *Analysis) error

	maxWorkers int

	mu   sync.Mutex
	errs []error
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		logger:     logger,
		maxWorkers: defaultMaxWorkers,
	}

	for _, option := range options {
		option(&o)
	}

	if o.maxWorkers <= 0 {
		o.maxWorkers = defaultMaxWorkers
	}
	if o.fitter == nil {
		o.fitter = fit.New()
	}

	return &o
}

// AddJob registers a job with the Orchestrator
func (o *Orchestrator) AddJob(job *JobConfig) error {
	for _, j := range o.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("job %s already exists", job.Name)
		}
	}

	o.jobs = append(o.jobs, job)
	return nil
}

// Run analyses all registered jobs and returns once every analysis has been
// handled. Failed jobs do not stop the others; their errors are joined into
// the returned error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.jobs) == 0 {
		return errors.New("no jobs to run")
	}

	queue := make(chan *JobConfig)
	results := make(chan *Analysis, o.maxWorkers)

	var handled sync.WaitGroup
	handled.Add(1)
	go func() {
		defer handled.Done()
		o.handleAnalyses(ctx, results)
	}()

	var wg sync.WaitGroup
	for i := 0; i < min(o.maxWorkers, len(o.jobs)); i++ {
		wg.Add(1)
		go o.work(ctx, queue, results, &wg)
	}

	for _, job := range o.jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(queue)

	wg.Wait()
	close(results)
	handled.Wait()

	if err := ctx.Err(); err != nil {
		o.fail(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return errors.Join(o.errs...)
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.errs = append(o.errs, err)
}

func (o *Orchestrator) work(ctx context.Context, queue <-chan *JobConfig, results chan<- *Analysis, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range queue {
		a, err := analyse(ctx, job, o.fitter, o.logger)
		if err != nil {
			o.logger.Error(err.Error(), slog.String("job", job.Name))
			o.fail(fmt.Errorf("job %s: %w", job.Name, err))
			continue
		}
		results <- a
	}
}

func (o *Orchestrator) handleAnalyses(ctx context.Context, results <-chan *Analysis) {
	for a := range results {
		if err := o.handleAnalysis(ctx, a); err != nil {
			o.logger.Error(err.Error(), slog.String("job", a.Job.Name))
			o.fail(fmt.Errorf("job %s: %w", a.Job.Name, err))
		}
	}
}

func (o *Orchestrator) handleAnalysis(ctx context.Context, a *Analysis) error {
	if o.store != nil {
		if err := persist(ctx, o.store, a); err != nil {
			return fmt.Errorf("storing analysis: %w", err)
		}
	}

	var errs []error
	for _, sink := range o.sinks {
		errs = append(errs, sink(ctx, a))
	}
	return errors.Join(errs...)
}

// persist writes a session for the analysis with its snapshots, peaks, fits
// and response. Fits and the response hang off the final snapshot.
func persist(ctx context.Context, store storage.Store, a *Analysis) error {
	job := a.Job
	sessionID, err := store.CreateSession(ctx, storage.SessionInfo{
		File:            job.File,
		LineSeparator:   job.LineSeparator,
		ColumnSeparator: job.ColumnSeparator,
		DecimalPoint:    job.DecimalPoint,
		NoiseLevel:      noiseLevel(job),
		Unit:            a.Source.Unit,
	}, job)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	spectrumID, err := storeSnapshot(ctx, store, sessionID, &a.Source)
	if err != nil {
		return err
	}
	if a.Converted != nil {
		if spectrumID, err = storeSnapshot(ctx, store, sessionID, a.Converted); err != nil {
			return err
		}
	}

	for _, f := range a.Fits {
		fitID, err := store.StoreFit(ctx, spectrumID, f)
		if err != nil {
			return fmt.Errorf("storing %s fit: %w", f.Kind, err)
		}

		if r := a.Response; r != nil && r.Fit == f {
			if _, err = store.StoreResponse(ctx, fitID, r.Method, f.Begin, f.End, r.Values); err != nil {
				return fmt.Errorf("storing response: %w", err)
			}
		}
	}

	return nil
}

func storeSnapshot(ctx context.Context, store storage.Store, sessionID int64, s *Snapshot) (int64, error) {
	id, err := store.StoreSpectrum(ctx, sessionID, s.Unit, s.Spectrum)
	if err != nil {
		return 0, fmt.Errorf("storing spectrum: %w", err)
	}
	if err = store.StorePeaks(ctx, id, s.Peaks); err != nil {
		return 0, fmt.Errorf("storing peaks: %w", err)
	}
	return id, nil
}

func noiseLevel(job *JobConfig) float64 {
	if job.NoiseLevel != nil {
		return *job.NoiseLevel
	}
	return spectrum.DefaultNoiseLevel
}
