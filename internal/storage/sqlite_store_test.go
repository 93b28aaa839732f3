package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/fit"
	"github.com/roman-kulish/spectra/internal/gauss"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	store := NewSqliteStore(filepath.Join(t.TempDir(), "spectra.db"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func createSession(t *testing.T, store *SqliteStore) int64 {
	t.Helper()

	info := SessionInfo{
		File:            "shots/He_test3.txt",
		LineSeparator:   "\n",
		ColumnSeparator: "\t",
		DecimalPoint:    ".",
		NoiseLevel:      0.02,
		Unit:            spectrum.UnitNanometer,
	}
	id, err := store.CreateSession(context.Background(), info, map[string]string{"job": "he-lamp"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return id
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := createSession(t, store)
	second, err := store.CreateSession(ctx, SessionInfo{File: "b.txt"}, nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	sess, err := store.Session(ctx, first)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess.File != "shots/He_test3.txt" || sess.Unit != spectrum.UnitNanometer || sess.NoiseLevel != 0.02 {
		t.Errorf("unexpected session %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"job":"he-lamp"}` {
		t.Errorf("Expected JSON config, got %v", sess.Config)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("Expected creation time to be set")
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != first || sessions[1].ID != second {
		t.Fatalf("Expected sessions [%d %d], got %+v", first, second, sessions)
	}
	if sessions[1].Config != nil {
		t.Errorf("Expected no config, got %q", *sessions[1].Config)
	}
}

func TestSqliteStore_SpectrumAndPeaks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessionID := createSession(t, store)

	data := spectrum.Spectrum{
		Positions:   []float64{400, 400.5, 401, 401.5, 402},
		Intensities: []float64{0.1, 2.5, 0.3, 7.25, -1},
	}

	spectrumID, err := store.StoreSpectrum(ctx, sessionID, spectrum.UnitNanometer, data)
	if err != nil {
		t.Fatalf("Failed to store spectrum: %v", err)
	}

	rec, err := store.ReadSpectrum(ctx, spectrumID)
	if err != nil {
		t.Fatalf("Failed to read spectrum: %v", err)
	}
	if rec.SessionID != sessionID || rec.Unit != spectrum.UnitNanometer {
		t.Errorf("unexpected record %+v", rec)
	}
	for i := range data.Positions {
		if rec.Spectrum.Positions[i] != data.Positions[i] || rec.Spectrum.Intensities[i] != data.Intensities[i] {
			t.Fatalf("sample %d: expected (%v, %v), got (%v, %v)", i,
				data.Positions[i], data.Intensities[i], rec.Spectrum.Positions[i], rec.Spectrum.Intensities[i])
		}
	}

	peaks := []spectrum.Peak{
		{Index: 1, Position: 400.5, Intensity: 2.5},
		{Index: 3, Position: 401.5, Intensity: 7.25},
	}
	if err = store.StorePeaks(ctx, spectrumID, peaks); err != nil {
		t.Fatalf("Failed to store peaks: %v", err)
	}

	got, err := store.Peaks(ctx, spectrumID)
	if err != nil {
		t.Fatalf("Failed to read peaks: %v", err)
	}
	if len(got) != len(peaks) {
		t.Fatalf("Expected %d peaks, got %d", len(peaks), len(got))
	}
	for i := range peaks {
		if got[i] != peaks[i] {
			t.Errorf("Expected peak %+v, got %+v", peaks[i], got[i])
		}
	}

	if err = store.StorePeaks(ctx, spectrumID, nil); err != nil {
		t.Errorf("Expected storing no peaks to be a no-op, got %v", err)
	}
}

func TestSqliteStore_FitsAndResponses(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessionID := createSession(t, store)

	spectrumID, err := store.StoreSpectrum(ctx, sessionID, spectrum.UnitHertz, spectrum.Spectrum{
		Positions:   []float64{1, 2, 3, 4},
		Intensities: []float64{0, 1, 1, 0},
	})
	if err != nil {
		t.Fatalf("Failed to store spectrum: %v", err)
	}

	f := &spectrum.Fit{
		Result: &fit.Result{
			Kind:       gauss.Gaussian,
			Begin:      0,
			End:        4,
			Params:     []float64{2.5, 2.5, 0.8, 0},
			StdErrors:  []float64{math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(1)},
			Cost:       0,
			Iterations: 12,
		},
		Unit: spectrum.UnitHertz,
	}

	fitID, err := store.StoreFit(ctx, spectrumID, f)
	if err != nil {
		t.Fatalf("Failed to store fit: %v", err)
	}

	fits, err := store.Fits(ctx, spectrumID)
	if err != nil {
		t.Fatalf("Failed to read fits: %v", err)
	}
	if len(fits) != 1 {
		t.Fatalf("Expected 1 fit, got %d", len(fits))
	}

	rec := fits[0]
	if rec.ID != fitID || rec.Kind != gauss.Gaussian || rec.Unit != spectrum.UnitHertz || rec.End != 4 || rec.Iterations != 12 {
		t.Errorf("unexpected fit record %+v", rec)
	}
	for i := range f.Params {
		if rec.Params[i] != f.Params[i] {
			t.Errorf("Expected param %d = %v, got %v", i, f.Params[i], rec.Params[i])
		}
		if !math.IsInf(rec.StdErrors[i], 1) {
			t.Errorf("Expected +Inf error for param %d, got %v", i, rec.StdErrors[i])
		}
	}

	response := []float64{1, 0, 0, 0}
	if _, err = store.StoreResponse(ctx, fitID, "", 0, 4, response); err != nil {
		t.Fatalf("Failed to store response: %v", err)
	}

	responses, err := store.Responses(ctx, fitID)
	if err != nil {
		t.Fatalf("Failed to read responses: %v", err)
	}
	if len(responses) != 1 || responses[0].Method != deconv.Naive || len(responses[0].Response) != 4 {
		t.Fatalf("unexpected responses %+v", responses)
	}
	if responses[0].Response[0] != 1 {
		t.Errorf("Expected response[0] = 1, got %v", responses[0].Response[0])
	}

	if _, err = store.StoreFit(ctx, spectrumID, nil); err == nil {
		t.Error("Expected error storing a nil fit")
	}
}

func TestSqliteStore_ReadSpectra(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sessionID := createSession(t, store)

	snapshots := []struct {
		unit spectrum.Unit
		data spectrum.Spectrum
	}{
		{spectrum.UnitNanometer, spectrum.Spectrum{Positions: []float64{500}, Intensities: []float64{1}}},
		{spectrum.UnitWavenumber, spectrum.Spectrum{Positions: []float64{20000}, Intensities: []float64{1}}},
		{spectrum.UnitNanometer, spectrum.Spectrum{Positions: []float64{600}, Intensities: []float64{2}}},
	}
	for _, s := range snapshots {
		if _, err := store.StoreSpectrum(ctx, sessionID, s.unit, s.data); err != nil {
			t.Fatalf("Failed to store spectrum: %v", err)
		}
	}

	testCases := []struct {
		name      string
		opts      []ReaderOption
		positions []float64
	}{
		{"all snapshots", nil, []float64{500, 20000, 600}},
		{"unit filter", []ReaderOption{WithUnit(spectrum.UnitNanometer)}, []float64{500, 600}},
		{"no match", []ReaderOption{WithUnit(spectrum.UnitHertz)}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reader, err := store.ReadSpectra(ctx, sessionID, tc.opts...)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer reader.Close()

			if reader.Session().ID != sessionID {
				t.Errorf("Expected session %d, got %d", sessionID, reader.Session().ID)
			}

			var got []float64
			for reader.Next(ctx) {
				got = append(got, reader.Current().Spectrum.Positions[0])
			}
			if err := reader.Error(); err != nil {
				t.Fatalf("Reader failed: %v", err)
			}

			if len(got) != len(tc.positions) {
				t.Fatalf("Expected %v, got %v", tc.positions, got)
			}
			for i := range got {
				if got[i] != tc.positions[i] {
					t.Errorf("Expected %v, got %v", tc.positions, got)
				}
			}
		})
	}

	if _, err := store.ReadSpectra(ctx, 0); err == nil {
		t.Error("Expected error for a missing session ID")
	}
}

func TestSqliteSpectrumReader_ErrorAfterClose(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSession(t, store)

	db, err := store.getReadDB()
	if err != nil {
		t.Fatalf("Failed to open read connection: %v", err)
	}

	// abs() of the smallest integer overflows while the rows are stepped
	rows, err := db.QueryContext(ctx, "SELECT abs(-9223372036854775808)")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	sr := &SqliteSpectrumReader{db: db, rows: rows}
	for sr.rows.Next() {
	}
	if err = sr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if sr.Error() == nil {
		t.Error("Expected the iteration error to survive Close")
	}
	if sr.Next(ctx) {
		t.Error("Expected Next to report false after Close")
	}
}

func TestEncodeFloats(t *testing.T) {
	values := []float64{0, -1.5, math.Pi, math.Inf(-1), math.MaxFloat64, math.SmallestNonzeroFloat64}

	got, err := decodeFloats(encodeFloats(values))
	if err != nil {
		t.Fatalf("decodeFloats failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("index %d: expected %v, got %v", i, values[i], got[i])
		}
	}

	if _, err := decodeFloats(snappy.Encode(nil, []byte{1, 2, 3})); err == nil {
		t.Error("Expected error for a truncated blob")
	}
}
