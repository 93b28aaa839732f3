package storage

import (
	"time"

	"github.com/roman-kulish/spectra/internal/deconv"
	"github.com/roman-kulish/spectra/internal/gauss"
	"github.com/roman-kulish/spectra/internal/spectrum"
)

// SessionInfo describes how an input file was read.
type SessionInfo struct {
	File            string        `json:"file"`            // Path of the input file
	LineSeparator   string        `json:"lineSeparator"`   // Record separator
	ColumnSeparator string        `json:"columnSeparator"` // Field separator
	DecimalPoint    string        `json:"decimalPoint"`    // Decimal symbol
	NoiseLevel      float64       `json:"noiseLevel"`      // Noise floor fraction
	Unit            spectrum.Unit `json:"unit"`            // Declared position units, may be unset
}

// Session represents a single analysis of one input file.
type Session struct {
	SessionInfo
	ID        int64     `json:"ID"`
	CreatedAt time.Time `json:"createdAt"`
	Config    *string   `json:"config,omitempty"` // Optional job configuration in JSON format
}

// SpectrumRecord is a stored snapshot of a spectrum in a given unit system.
type SpectrumRecord struct {
	ID        int64             `json:"ID"`
	SessionID int64             `json:"sessionID"`
	CreatedAt time.Time         `json:"createdAt"`
	Unit      spectrum.Unit     `json:"unit"`
	Spectrum  spectrum.Spectrum `json:"spectrum"`
}

// FitRecord is a stored fit result.
type FitRecord struct {
	ID         int64         `json:"ID"`
	SpectrumID int64         `json:"spectrumID"`
	CreatedAt  time.Time     `json:"createdAt"`
	Kind       gauss.Kind    `json:"kind"`
	Unit       spectrum.Unit `json:"unit"`
	Begin      int           `json:"begin"`
	End        int           `json:"end"`
	Params     []float64     `json:"params"`
	StdErrors  []float64     `json:"stdErrors"`
	Cost       float64       `json:"cost"`
	Iterations int           `json:"iterations"`
}

// ResponseRecord is a stored instrument response estimate.
type ResponseRecord struct {
	ID        int64         `json:"ID"`
	FitID     int64         `json:"fitID"`
	CreatedAt time.Time     `json:"createdAt"`
	Method    deconv.Method `json:"method"`
	Begin     int           `json:"begin"`
	End       int           `json:"end"`
	Response  []float64     `json:"response"`
}
