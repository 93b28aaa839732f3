package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/gauss"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath. The
// database is opened, and its schema created, on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

// Path returns the database file path.
func (s *SqliteStore) Path() string {
	return s.dbPath
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, info SessionInfo, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		info.File,
		info.LineSeparator,
		info.ColumnSeparator,
		info.DecimalPoint,
		info.NoiseLevel,
		string(info.Unit),
		configData,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var unit string
	var config sql.NullString

	err := row.Scan(
		&sess.ID,
		&sess.CreatedAt,
		&sess.File,
		&sess.LineSeparator,
		&sess.ColumnSeparator,
		&sess.DecimalPoint,
		&sess.NoiseLevel,
		&unit,
		&config,
	)
	if err != nil {
		return nil, err
	}

	sess.Unit = spectrum.Unit(unit)
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreSpectrum(ctx context.Context, sessionID int64, unit spectrum.Unit, data spectrum.Spectrum) (spectrumID int64, err error) {
	if len(data.Positions) != len(data.Intensities) {
		err = fmt.Errorf("%d positions, %d intensities", len(data.Positions), len(data.Intensities))
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSpectrumSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		sessionID,
		string(unit),
		data.Len(),
		encodeFloats(data.Positions),
		encodeFloats(data.Intensities),
	)
	if err != nil {
		err = fmt.Errorf("inserting spectrum: %w", err)
		return
	}

	spectrumID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting spectrum ID: %w", err)
	}
	return
}

func scanSpectrum(row rowScanner) (*SpectrumRecord, error) {
	var rec SpectrumRecord
	var unit string
	var numSamples int
	var positions, intensities []byte

	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.CreatedAt, &unit, &numSamples, &positions, &intensities); err != nil {
		return nil, err
	}
	rec.Unit = spectrum.Unit(unit)

	var err error
	if rec.Spectrum.Positions, err = decodeFloats(positions); err != nil {
		return nil, fmt.Errorf("decoding positions: %w", err)
	}
	if rec.Spectrum.Intensities, err = decodeFloats(intensities); err != nil {
		return nil, fmt.Errorf("decoding intensities: %w", err)
	}
	if len(rec.Spectrum.Positions) != numSamples || len(rec.Spectrum.Intensities) != numSamples {
		return nil, fmt.Errorf("spectrum %d: expected %d samples, got %d positions and %d intensities",
			rec.ID, numSamples, len(rec.Spectrum.Positions), len(rec.Spectrum.Intensities))
	}
	return &rec, nil
}

func (s *SqliteStore) ReadSpectrum(ctx context.Context, spectrumID int64) (rec *SpectrumRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSpectrumSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if rec, err = scanSpectrum(stmt.QueryRowContext(ctx, spectrumID)); err != nil {
		err = fmt.Errorf("scanning spectrum: %w", err)
	}
	return
}

// ReadSpectra creates a SpectrumReader over the spectrum snapshots of a
// session.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the session to read from
//   - opts: Optional configuration parameters for the reader (WithUnit)
//
// The returned SpectrumReader must be closed after use to release database
// resources. Each reader instance should only be used from a single goroutine.
func (s *SqliteStore) ReadSpectra(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSpectrumReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSpectrumReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) StorePeaks(ctx context.Context, spectrumID int64, peaks []spectrum.Peak) (err error) {
	if len(peaks) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(peaks)*5)

	// Build batch insert query
	valuesPlaceholder := "(?, ?, ?, ?, ?)"

	var sb strings.Builder

	sb.WriteString(insertPeakSQL)

	for i, p := range peaks {
		values = append(values, spectrumID, i, p.Index, p.Position, p.Intensity)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting peaks: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Peaks(ctx context.Context, spectrumID int64) (peaks []spectrum.Peak, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectPeaksSQL, spectrumID)
	if err != nil {
		err = fmt.Errorf("querying peaks: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p spectrum.Peak
		if err = rows.Scan(&p.Index, &p.Position, &p.Intensity); err != nil {
			err = fmt.Errorf("scanning peak: %w", err)
			return
		}
		peaks = append(peaks, p)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreFit(ctx context.Context, spectrumID int64, f *spectrum.Fit) (fitID int64, err error) {
	if f == nil || f.Result == nil {
		err = errors.New("nil fit")
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertFitSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		spectrumID,
		string(f.Kind),
		string(f.Unit),
		f.Begin,
		f.End,
		encodeFloats(f.Params),
		encodeFloats(f.StdErrors),
		f.Cost,
		f.Iterations,
	)
	if err != nil {
		err = fmt.Errorf("inserting fit: %w", err)
		return
	}

	fitID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting fit ID: %w", err)
	}
	return
}

func (s *SqliteStore) Fits(ctx context.Context, spectrumID int64) (fits []*FitRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFitsSQL, spectrumID)
	if err != nil {
		err = fmt.Errorf("querying fits: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec FitRecord
		var kind, unit string
		var params, stdErrors []byte

		err = rows.Scan(
			&rec.ID,
			&rec.SpectrumID,
			&rec.CreatedAt,
			&kind,
			&unit,
			&rec.Begin,
			&rec.End,
			&params,
			&stdErrors,
			&rec.Cost,
			&rec.Iterations,
		)
		if err != nil {
			err = fmt.Errorf("scanning fit: %w", err)
			return
		}

		rec.Kind = gauss.Kind(kind)
		rec.Unit = spectrum.Unit(unit)
		if rec.Params, err = decodeFloats(params); err != nil {
			err = fmt.Errorf("decoding fit %d params: %w", rec.ID, err)
			return
		}
		if rec.StdErrors, err = decodeFloats(stdErrors); err != nil {
			err = fmt.Errorf("decoding fit %d errors: %w", rec.ID, err)
			return
		}
		fits = append(fits, &rec)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreResponse(ctx context.Context, fitID int64, method deconv.Method, begin, end int, response []float64) (responseID int64, err error) {
	if method == "" {
		method = deconv.Naive
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertResponseSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, fitID, string(method), begin, end, encodeFloats(response))
	if err != nil {
		err = fmt.Errorf("inserting response: %w", err)
		return
	}

	responseID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting response ID: %w", err)
	}
	return
}

func (s *SqliteStore) Responses(ctx context.Context, fitID int64) (responses []*ResponseRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectResponsesSQL, fitID)
	if err != nil {
		err = fmt.Errorf("querying responses: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec ResponseRecord
		var method string
		var blob []byte

		if err = rows.Scan(&rec.ID, &rec.FitID, &rec.CreatedAt, &method, &rec.Begin, &rec.End, &blob); err != nil {
			err = fmt.Errorf("scanning response: %w", err)
			return
		}

		rec.Method = deconv.Method(method)
		if rec.Response, err = decodeFloats(blob); err != nil {
			err = fmt.Errorf("decoding response %d: %w", rec.ID, err)
			return
		}
		responses = append(responses, &rec)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
