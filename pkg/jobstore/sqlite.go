package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"media-pipeline-go/pkg/job"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	document   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_owner_created ON jobs (owner, created_at DESC);
`

// SQLiteStore keeps jobs in a SQLite table, the document column holding the JSON record
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens dsn and creates the schema
func NewSQLiteStore(ctx context.Context, dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: connection source is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open: %w", err)
	}
	// single writer keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	logger.Info("SQLite job store initialized", zap.String("dsn", dsn))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Save upserts the job row unless the stored row is already terminal
func (s *SQLiteStore) Save(ctx context.Context, j *job.Job) error {
	if err := validateID(j.ID); err != nil {
		return err
	}
	data, err := encode(j)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner, status, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			status = excluded.status,
			updated_at = excluded.updated_at,
			document = excluded.document
		WHERE jobs.status NOT IN (?, ?)`,
		j.ID, j.Owner, string(j.Status), j.CreatedAt.UnixNano(), j.UpdatedAt.UnixNano(), data,
		string(job.StatusCompleted), string(job.StatusFailed))
	if err != nil {
		return fmt.Errorf("sqlite: failed to save job %s: %w", j.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to save job %s: %w", j.ID, err)
	}
	if n == 0 {
		var status string
		if err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, j.ID).Scan(&status); err != nil {
			return fmt.Errorf("sqlite: failed to save job %s: %w", j.ID, err)
		}
		return finished(j.ID, job.Status(status))
	}
	return nil
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, id string) (*job.Job, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM jobs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("sqlite: failed to get job %s: %w", id, err)
	}
	return decode(data)
}

// Delete implements Store
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete job %s: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// List implements Store
func (s *SQLiteStore) List(ctx context.Context, owner string) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM jobs
		WHERE ? = '' OR owner = ?
		ORDER BY created_at DESC, id ASC`, owner, owner)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*job.Job, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan job: %w", err)
		}
		j, err := decode(data)
		if err != nil {
			s.logger.Warn("Skipping undecodable job row", zap.Error(err))
			continue
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to list jobs: %w", err)
	}
	return out, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
