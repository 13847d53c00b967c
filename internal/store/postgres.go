package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Job Slots ---

func (s *PostgresStore) GetSlot(ctx context.Context, name string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM job_slots WHERE name = $1`, name,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job slot: %w", err)
	}
	return []byte(value), nil
}

func (s *PostgresStore) PutSlot(ctx context.Context, name string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_slots (name, value, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (name) DO UPDATE SET
		   value = EXCLUDED.value,
		   updated_at = NOW()`,
		name, string(value))
	if err != nil {
		return fmt.Errorf("put job slot: %w", err)
	}
	return nil
}

// DeleteSlot removes a slot. Deleting a missing slot is not an error.
func (s *PostgresStore) DeleteSlot(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM job_slots WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete job slot: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
