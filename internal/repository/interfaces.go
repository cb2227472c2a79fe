package repository

import (
	"context"

	"github.com/RMahshie/voltsense/pkg/models"
)

// ReadingRepository defines the interface for persisted sample operations
type ReadingRepository interface {
	StoreReading(ctx context.Context, sessionID string, sample *models.Sample) error
	ListReadings(ctx context.Context, sessionID string, limit int) ([]*models.Sample, error)
	ListSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error)
}

// ConversationRepository defines the interface for advisory chat operations
type ConversationRepository interface {
	StoreMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, limit int) ([]*models.ChatMessage, error)
}
