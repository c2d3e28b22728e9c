package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// SQLiteStore persists statuses in a local SQLite database. All public
// methods are safe for concurrent use (SQLite serializes writes).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dbPath, creating the schema on
// first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS onboarding_status (
		student_id TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the stored status or [onboarding.ErrNotFound].
func (s *SQLiteStore) Load(ctx context.Context, studentID string) (onboarding.Status, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM onboarding_status WHERE student_id = ?`,
		studentID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", studentID, err)
	}
	return onboarding.UnmarshalStatus([]byte(raw))
}

// Save upserts the status document and refreshes updated_at.
func (s *SQLiteStore) Save(ctx context.Context, studentID string, status onboarding.Status) error {
	data, err := onboarding.MarshalStatus(status)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO onboarding_status (student_id, status, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (student_id) DO UPDATE
		 SET status = excluded.status, updated_at = excluded.updated_at`,
		studentID, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", studentID, err)
	}
	return nil
}

// List returns every stored status. Returns an empty (non-nil) map when
// nothing is stored.
func (s *SQLiteStore) List(ctx context.Context) (map[string]onboarding.Status, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, status FROM onboarding_status ORDER BY student_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	result := make(map[string]onboarding.Status)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		status, err := onboarding.UnmarshalStatus([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		result[id] = status
	}
	return result, rows.Err()
}
