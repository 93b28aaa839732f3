package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      created_at,
                      file,
                      line_separator,
                      column_separator,
                      decimal_point,
                      noise_level,
                      unit,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    created_at,
    file,
    line_separator,
    column_separator,
    decimal_point,
    noise_level,
    unit,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    created_at,
    file,
    line_separator,
    column_separator,
    decimal_point,
    noise_level,
    unit,
    config
FROM sessions
ORDER BY created_at, id`

	insertSpectrumSQL = `
INSERT INTO spectra (
                     session_id,
                     created_at,
                     unit,
                     num_samples,
                     positions,
                     intensities)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?)`

	selectSpectrumSQL = `
SELECT
    id,
    session_id,
    created_at,
    unit,
    num_samples,
    positions,
    intensities
FROM spectra
WHERE
    id = ?`

	selectSessionSpectraSQL = `
SELECT
    id,
    session_id,
    created_at,
    unit,
    num_samples,
    positions,
    intensities
FROM spectra
WHERE
    session_id = ?
    AND (? = '' OR unit = ?)
ORDER BY id`

	insertPeakSQL = `
INSERT INTO peaks (
                   spectrum_id,
                   number,
                   sample,
                   position,
                   intensity)
VALUES `

	selectPeaksSQL = `
SELECT
    sample,
    position,
    intensity
FROM peaks
WHERE
    spectrum_id = ?
ORDER BY number`

	insertFitSQL = `
INSERT INTO fits (
                  spectrum_id,
                  created_at,
                  kind,
                  unit,
                  begin_index,
                  end_index,
                  params,
                  std_errors,
                  cost,
                  iterations)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFitsSQL = `
SELECT
    id,
    spectrum_id,
    created_at,
    kind,
    unit,
    begin_index,
    end_index,
    params,
    std_errors,
    cost,
    iterations
FROM fits
WHERE
    spectrum_id = ?
ORDER BY id`

	insertResponseSQL = `
INSERT INTO responses (
                       fit_id,
                       created_at,
                       method,
                       begin_index,
                       end_index,
                       response)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?)`

	selectResponsesSQL = `
SELECT
    id,
    fit_id,
    created_at,
    method,
    begin_index,
    end_index,
    response
FROM responses
WHERE
    fit_id = ?
ORDER BY id`
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)
