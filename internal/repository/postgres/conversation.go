package postgres

import (
	"context"
	"database/sql"

	"github.com/RMahshie/voltsense/internal/repository"
	"github.com/RMahshie/voltsense/pkg/models"
)

// PostgresConversationRepository implements ConversationRepository for PostgreSQL
type PostgresConversationRepository struct {
	db *sql.DB
}

// NewPostgresConversationRepository creates a new PostgreSQL conversation repository
func NewPostgresConversationRepository(db *sql.DB) repository.ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// StoreMessage inserts a chat message
func (r *PostgresConversationRepository) StoreMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO advisory_messages (id, role, text, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.Role,
		msg.Text,
		msg.CreatedAt)

	return err
}

// ListMessages returns the latest messages, oldest first
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, role, text, created_at
		FROM (
			SELECT id, role, text, created_at
			FROM advisory_messages
			ORDER BY created_at DESC
			LIMIT $1
		) latest
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
