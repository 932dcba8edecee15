package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/prodline/tracker/internal/models"
)

// DuckStore implements Store on a DuckDB file. The schema is created on
// open, so a fresh data directory is immediately usable.
type DuckStore struct {
	db     *sql.DB
	dbPath string
}

// NewDuckStore opens (or creates) the tracker database in dataDir.
func NewDuckStore(dataDir string) (*DuckStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return NewDuckStoreAtPath(filepath.Join(dataDir, "tracker.duckdb"))
}

// NewDuckStoreAtPath opens a store at a specific database path.
func NewDuckStoreAtPath(dbPath string) (*DuckStore, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	s := &DuckStore{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DuckStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS builds (
			build_number    VARCHAR PRIMARY KEY,
			number_of_parts INTEGER NOT NULL,
			time_per_part   DOUBLE NOT NULL,
			created_at      TIMESTAMP NOT NULL,
			updated_at      TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id                 VARCHAR PRIMARY KEY,
			login_id           VARCHAR NOT NULL,
			build_number       VARCHAR NOT NULL,
			number_of_parts    INTEGER NOT NULL,
			time_per_part      DOUBLE NOT NULL,
			start_time         TIMESTAMP NOT NULL,
			end_time           TIMESTAMP NOT NULL,
			total_paused_sec   DOUBLE NOT NULL,
			total_parts        INTEGER NOT NULL,
			defects            INTEGER NOT NULL,
			pause_records      VARCHAR NOT NULL,
			popup_interactions VARCHAR NOT NULL,
			submission_type    VARCHAR NOT NULL,
			total_active_sec   DOUBLE NOT NULL,
			total_inactive_sec DOUBLE NOT NULL,
			popup_wait_sec     DOUBLE NOT NULL,
			created_at         TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_locks (
			login_id    VARCHAR PRIMARY KEY,
			acquired_at TIMESTAMP NOT NULL,
			expires_at  TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// GetBuild returns models.ErrBuildNotFound for an unknown build number.
func (s *DuckStore) GetBuild(ctx context.Context, buildNumber string) (*models.Build, error) {
	var b models.Build
	err := s.db.QueryRowContext(ctx,
		`SELECT build_number, number_of_parts, time_per_part, created_at, updated_at
		 FROM builds WHERE build_number = ?`, buildNumber).
		Scan(&b.BuildNumber, &b.NumberOfParts, &b.TimePerPart, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBuildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying build: %w", err)
	}
	return &b, nil
}

func (s *DuckStore) ListBuilds(ctx context.Context) ([]models.Build, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_number, number_of_parts, time_per_part, created_at, updated_at
		 FROM builds ORDER BY build_number`)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var builds []models.Build
	for rows.Next() {
		var b models.Build
		if err := rows.Scan(&b.BuildNumber, &b.NumberOfParts, &b.TimePerPart, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

func (s *DuckStore) UpsertBuild(ctx context.Context, b models.Build) error {
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (build_number, number_of_parts, time_per_part, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (build_number) DO UPDATE SET
			number_of_parts = excluded.number_of_parts,
			time_per_part   = excluded.time_per_part,
			updated_at      = excluded.updated_at`,
		b.BuildNumber, b.NumberOfParts, b.TimePerPart, now, now)
	if err != nil {
		return fmt.Errorf("upserting build: %w", err)
	}
	return nil
}

func (s *DuckStore) ClearBuilds(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM builds`); err != nil {
		return fmt.Errorf("clearing builds: %w", err)
	}
	return nil
}

// SaveSession archives a submission. Pause records and popup
// interactions are stored as JSON columns; the aggregate queries only
// touch the numeric fields.
func (s *DuckStore) SaveSession(ctx context.Context, sub *models.SessionSubmission) (string, error) {
	pauses, err := json.Marshal(sub.PauseRecords)
	if err != nil {
		return "", fmt.Errorf("encoding pause records: %w", err)
	}
	interactions, err := json.Marshal(sub.PopupInteractions)
	if err != nil {
		return "", fmt.Errorf("encoding popup interactions: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (
			id, login_id, build_number, number_of_parts, time_per_part,
			start_time, end_time, total_paused_sec, total_parts, defects,
			pause_records, popup_interactions, submission_type,
			total_active_sec, total_inactive_sec, popup_wait_sec, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sub.LoginID, sub.BuildNumber, sub.NumberOfParts, sub.TimePerPart,
		sub.StartTime.UTC(), sub.EndTime.UTC(), sub.TotalPausedSec, sub.TotalParts, sub.Defects,
		string(pauses), string(interactions), string(sub.SubmissionType),
		sub.TotalActiveTimeSec, sub.TotalInactiveTimeSec, sub.PopupWaitAccumSec, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}
	return id, nil
}

func (s *DuckStore) BuildStats(ctx context.Context, buildNumber string) (*BuildStats, error) {
	stats := &BuildStats{BuildNumber: buildNumber}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
				COALESCE(AVG(total_active_sec), 0),
				COALESCE(AVG(total_paused_sec), 0),
				COALESCE(SUM(defects), 0),
				COALESCE(SUM(total_parts), 0)
		 FROM sessions WHERE build_number = ?`, buildNumber).
		Scan(&stats.Sessions, &stats.MeanActiveSec, &stats.MeanPausedSec,
			&stats.TotalDefects, &stats.TotalPartsMade)
	if err != nil {
		return nil, fmt.Errorf("aggregating sessions: %w", err)
	}
	return stats, nil
}

// AcquireLock takes the advisory lock for loginID, reaping an expired
// holder first. The check-then-insert runs in one transaction; the
// server is the lock's single writer.
func (s *DuckStore) AcquireLock(ctx context.Context, loginID string, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting lock transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_locks WHERE login_id = ? AND expires_at <= ?`, loginID, now); err != nil {
		return false, fmt.Errorf("reaping expired lock: %w", err)
	}

	var held int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_locks WHERE login_id = ?`, loginID).Scan(&held); err != nil {
		return false, fmt.Errorf("checking lock: %w", err)
	}
	if held > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_locks (login_id, acquired_at, expires_at) VALUES (?, ?, ?)`,
		loginID, now, now.Add(ttl)); err != nil {
		return false, fmt.Errorf("inserting lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing lock: %w", err)
	}
	return true, nil
}

func (s *DuckStore) ReleaseLock(ctx context.Context, loginID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_locks WHERE login_id = ?`, loginID); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

func (s *DuckStore) Close() error {
	return s.db.Close()
}
