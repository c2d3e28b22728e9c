package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// PostgresStore persists statuses as JSONB rows in PostgreSQL, for
// deployments where several API replicas share progress.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects with dsn, verifies the connection and
// creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS onboarding_status (
			student_id TEXT PRIMARY KEY,
			status     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Load returns the stored status or [onboarding.ErrNotFound].
func (s *PostgresStore) Load(ctx context.Context, studentID string) (onboarding.Status, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM onboarding_status WHERE student_id = $1`,
		studentID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", studentID, err)
	}
	return onboarding.UnmarshalStatus(raw)
}

// Save upserts the status document.
func (s *PostgresStore) Save(ctx context.Context, studentID string, status onboarding.Status) error {
	data, err := onboarding.MarshalStatus(status)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO onboarding_status (student_id, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (student_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, studentID, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", studentID, err)
	}
	return nil
}

// List returns every stored status.
func (s *PostgresStore) List(ctx context.Context) (map[string]onboarding.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id, status FROM onboarding_status`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	result := make(map[string]onboarding.Status)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		status, err := onboarding.UnmarshalStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		result[id] = status
	}
	return result, rows.Err()
}
