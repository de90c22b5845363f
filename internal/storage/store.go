// Package storage keeps the processing catalog: one row per production run
// and one row per volume the run touched. The catalog is the shared
// bookkeeping surface across concurrently running workers, so every write is
// a single atomic statement and the database runs in WAL mode.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Volume processing outcomes recorded in the catalog.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// VolumeRecord is one processed (or failed, or skipped) input volume.
type VolumeRecord struct {
	ID          int64
	RunID       int64
	InputPath   string
	OutputPath  string
	Status      string
	Error       string
	Algorithm   string
	Nyquist     float64
	Duration    time.Duration
	ProcessedAt time.Time
}

// Store is the sqlite-backed processing catalog. The write and read
// connections are opened lazily and independently; Close is idempotent.
type Store struct {
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

// New creates a catalog store backed by the sqlite database at dbPath. The
// schema is created on first write.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", s.dbPath))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.writeDB = db
	})
	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// The schema must exist before a read-only connection can query it.
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", s.dbPath))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})
	return s.readDB, s.readDBErr
}

// CreateRun records the start of a production run and returns its ID. The
// config may be a string, []byte or any JSON-serializable value.
func (s *Store) CreateRun(ctx context.Context, instrument string, config any) (runID int64, err error) {
	var configData sql.NullString
	if config != nil {
		switch c := config.(type) {
		case string:
			configData = sql.NullString{String: c, Valid: true}
		case []byte:
			configData = sql.NullString{String: string(c), Valid: true}
		default:
			p, mErr := json.Marshal(config)
			if mErr != nil {
				return 0, fmt.Errorf("marshaling run config: %w", mErr)
			}
			configData = sql.NullString{String: string(p), Valid: true}
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, instrument, configData)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return runID, err
}

// RecordVolume appends one volume outcome to the catalog.
func (s *Store) RecordVolume(ctx context.Context, rec VolumeRecord) (id int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertVolumeSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		rec.RunID,
		rec.InputPath,
		nullString(rec.OutputPath),
		rec.Status,
		nullString(rec.Error),
		nullString(rec.Algorithm),
		nullFloat(rec.Nyquist),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting volume record: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting volume record ID: %w", err)
	}
	return id, err
}

// IsProcessed reports whether the input path already has a successful
// catalog entry, so concurrent or repeated runs skip it.
func (s *Store) IsProcessed(ctx context.Context, inputPath string) (bool, error) {
	db, err := s.getReadDB()
	if err != nil {
		return false, fmt.Errorf("getting read connection: %w", err)
	}

	var status string
	err = db.QueryRowContext(ctx, selectVolumeStatusSQL, inputPath).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying volume status: %w", err)
	}
	return status == StatusProcessed, nil
}

// RunVolumes returns every volume record of a run in processing order.
func (s *Store) RunVolumes(ctx context.Context, runID int64) (records []VolumeRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunVolumesSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run volumes: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec VolumeRecord
		var outputPath, errText, algorithm sql.NullString
		var nyquist sql.NullFloat64
		var durationMs sql.NullInt64
		if err = rows.Scan(&rec.ID, &rec.InputPath, &outputPath, &rec.Status, &errText,
			&algorithm, &nyquist, &durationMs, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scanning volume record: %w", err)
		}
		rec.RunID = runID
		rec.OutputPath = outputPath.String
		rec.Error = errText.String
		rec.Algorithm = algorithm.String
		rec.Nyquist = nyquist.Float64
		rec.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating volume records: %w", err)
	}
	return records, nil
}

// Close releases both database connections. Safe to call multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.writeDB != nil {
			s.closeErr = s.writeDB.Close()
		}
		if s.readDB != nil {
			if err := s.readDB.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}
