package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roman-kulish/spectra/internal/spectrum"
)

// SpectrumReader provides an iterator-based interface for reading the
// spectrum snapshots of a session in insertion order.
type SpectrumReader interface {
	// Session returns metadata about the session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another
	// snapshot to read, false when the iteration is complete or if an error
	// occurred.
	Next(context.Context) bool

	// Current returns the current snapshot in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *SpectrumRecord

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish
	// between end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	// After Close is called, the reader should not be used.
	Close() error
}

// ReaderOption configures a SpectrumReader with specific filtering criteria.
type ReaderOption func(*SqliteSpectrumReader)

// WithUnit restricts the reader to snapshots stored in the given unit system.
func WithUnit(u spectrum.Unit) ReaderOption {
	return func(r *SqliteSpectrumReader) {
		r.unit = u
	}
}

var _ SpectrumReader = (*SqliteSpectrumReader)(nil)

// SqliteSpectrumReader implements SpectrumReader for SQLite database backend.
type SqliteSpectrumReader struct {
	db *sql.DB

	sessionID int64
	session   *Session
	unit      spectrum.Unit // Optional unit filter

	current *SpectrumRecord
	rows    *sql.Rows
	err     error
}

func newSqliteSpectrumReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSpectrumReader, error) {
	sr := &SqliteSpectrumReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SqliteSpectrumReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if sr.unit != spectrum.UnitUnset && !sr.unit.Valid() {
		return fmt.Errorf("unknown unit filter %q", sr.unit)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSpectrumReader) loadSession(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if sr.session, err = scanSession(stmt.QueryRowContext(ctx, sr.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return
}

func (sr *SqliteSpectrumReader) initQuery(ctx context.Context) (err error) {
	unit := string(sr.unit)
	sr.rows, err = sr.db.QueryContext(ctx, selectSessionSpectraSQL, sr.sessionID, unit, unit)
	return
}

func (sr *SqliteSpectrumReader) Session() *Session {
	return sr.session
}

func (sr *SqliteSpectrumReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		sr.err = ctx.Err()
		return false
	default:
	}

	if !sr.rows.Next() {
		sr.current = nil
		return false
	}

	if sr.current, sr.err = scanSpectrum(sr.rows); sr.err != nil {
		sr.err = fmt.Errorf("scanning spectrum: %w", sr.err)
		return false
	}
	return true
}

func (sr *SqliteSpectrumReader) Current() *SpectrumRecord {
	return sr.current
}

func (sr *SqliteSpectrumReader) Error() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SqliteSpectrumReader) Close() error {
	if sr.rows != nil {
		if sr.err == nil {
			sr.err = sr.rows.Err()
		}
		err := sr.rows.Close()
		sr.current = nil
		sr.rows = nil
		return err
	}
	return nil
}
