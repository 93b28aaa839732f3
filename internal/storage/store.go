package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

// Store provides an interface for persisting spectral analyses. A session is
// one analysis of one input file; spectra, peaks, fits and responses hang off
// it in that order. All operations that write to the database should be
// considered atomic.
type Store interface {
	// CreateSession records a new analysis session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - info: How the input file is read
	//   - config: Optional job configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, info SessionInfo, config any) (sessionID int64, err error)

	// Session retrieves a specific analysis session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails or context is cancelled
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all analysis sessions stored in the database, ordered
	// by creation time in ascending order.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreSpectrum saves a snapshot of a spectrum. A session may hold several
	// snapshots, for example before and after unit conversion.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session this spectrum belongs to
	//   - unit: Unit system of the positions
	//   - s: Spectrum samples
	//
	// Returns:
	//   - spectrumID: Unique identifier for the stored snapshot
	//   - error: If storage fails or context is cancelled
	StoreSpectrum(ctx context.Context, sessionID int64, unit spectrum.Unit, s spectrum.Spectrum) (spectrumID int64, err error)

	// ReadSpectrum retrieves a stored spectrum snapshot by its ID.
	ReadSpectrum(ctx context.Context, spectrumID int64) (*SpectrumRecord, error)

	// StorePeaks saves the peak list of a spectrum snapshot in a single
	// transaction, keeping the list order.
	StorePeaks(ctx context.Context, spectrumID int64, peaks []spectrum.Peak) error

	// Peaks returns the peaks of a spectrum snapshot in their stored order.
	Peaks(ctx context.Context, spectrumID int64) ([]spectrum.Peak, error)

	// StoreFit saves a fit result computed on a spectrum snapshot.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - spectrumID: ID of the spectrum snapshot the fit was computed on
	//   - f: Fit result
	//
	// Returns:
	//   - fitID: Unique identifier for the stored fit
	//   - error: If storage fails or context is cancelled
	StoreFit(ctx context.Context, spectrumID int64, f *spectrum.Fit) (fitID int64, err error)

	// Fits returns the fits of a spectrum snapshot in insertion order.
	Fits(ctx context.Context, spectrumID int64) ([]*FitRecord, error)

	// StoreResponse saves an instrument response estimated from a fit over the
	// samples [begin, end).
	StoreResponse(ctx context.Context, fitID int64, method deconv.Method, begin, end int, response []float64) (responseID int64, err error)

	// Responses returns the response estimates derived from a fit.
	Responses(ctx context.Context, fitID int64) ([]*ResponseRecord, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
