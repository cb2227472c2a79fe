package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id          BIGSERIAL PRIMARY KEY,
		session_id  UUID NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		rms_v       DOUBLE PRECISION NOT NULL,
		vpeak_v     DOUBLE PRECISION NOT NULL,
		freq_hz     DOUBLE PRECISION NOT NULL,
		current_a   DOUBLE PRECISION NOT NULL,
		power_w     DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS readings_session_idx ON readings (session_id, id)`,
	`CREATE TABLE IF NOT EXISTS advisory_messages (
		id         UUID PRIMARY KEY,
		role       TEXT NOT NULL CHECK (role IN ('user', 'model')),
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
