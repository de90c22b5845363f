package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (
                  start_time,
                  instrument,
                  config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	insertVolumeSQL = `
INSERT INTO volumes (run_id,
                     input_path,
                     output_path,
                     status,
                     error,
                     algorithm,
                     nyquist,
                     duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectVolumeStatusSQL = `
SELECT
    status
FROM volumes
WHERE
    input_path = ?
ORDER BY processed_at DESC, id DESC
LIMIT 1`

	selectRunVolumesSQL = `
SELECT
    id,
    input_path,
    output_path,
    status,
    error,
    algorithm,
    nyquist,
    duration_ms,
    processed_at
FROM volumes
WHERE
    run_id = ?
ORDER BY processed_at, id`
)

//go:embed schema.sql
var initSchemaSQL string
