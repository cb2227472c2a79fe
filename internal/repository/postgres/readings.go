package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RMahshie/voltsense/internal/repository"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/google/uuid"
)

// PostgresReadingRepository implements ReadingRepository for PostgreSQL
type PostgresReadingRepository struct {
	db *sql.DB
}

// NewPostgresReadingRepository creates a new PostgreSQL reading repository
func NewPostgresReadingRepository(db *sql.DB) repository.ReadingRepository {
	return &PostgresReadingRepository{db: db}
}

// StoreReading inserts one calibrated sample
func (r *PostgresReadingRepository) StoreReading(ctx context.Context, sessionID string, sample *models.Sample) error {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	query := `
		INSERT INTO readings (session_id, recorded_at, rms_v, vpeak_v, freq_hz, current_a, power_w)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.db.ExecContext(ctx, query,
		sid,
		sample.Timestamp,
		sample.RMS,
		sample.VPeak,
		sample.Freq,
		sample.Current,
		sample.Power)

	return err
}

// ListReadings returns the most recent readings of a session, oldest first
func (r *PostgresReadingRepository) ListReadings(ctx context.Context, sessionID string, limit int) ([]*models.Sample, error) {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id: %w", err)
	}

	query := `
		SELECT recorded_at, rms_v, vpeak_v, freq_hz, current_a, power_w
		FROM (
			SELECT id, recorded_at, rms_v, vpeak_v, freq_hz, current_a, power_w
			FROM readings
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) latest
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, sid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.Timestamp, &s.RMS, &s.VPeak, &s.Freq, &s.Current, &s.Power); err != nil {
			return nil, err
		}
		samples = append(samples, &s)
	}

	return samples, rows.Err()
}

// ListSessions summarizes recorded sessions, newest first
func (r *PostgresReadingRepository) ListSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error) {
	query := `
		SELECT session_id, COUNT(*), MIN(recorded_at), MAX(recorded_at)
		FROM readings
		GROUP BY session_id
		ORDER BY MAX(recorded_at) DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.SessionSummary
	for rows.Next() {
		var s models.SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Readings, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
