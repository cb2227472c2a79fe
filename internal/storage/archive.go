package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyHistory is returned when there is nothing to archive
var ErrEmptyHistory = errors.New("history is empty")

// HistorySource provides the data written into an archive
type HistorySource interface {
	SessionID() string
	History() []models.Sample
	Calibration() models.Calibration
}

// HistoryArchiver writes history snapshots to an archive store
type HistoryArchiver struct {
	store  ArchiveStore
	source HistorySource
	now    func() time.Time
}

// NewHistoryArchiver creates a new history archiver
func NewHistoryArchiver(store ArchiveStore, source HistorySource) *HistoryArchiver {
	return &HistoryArchiver{
		store:  store,
		source: source,
		now:    time.Now,
	}
}

// Archive uploads the current history and returns where to fetch it
func (a *HistoryArchiver) Archive(ctx context.Context) (*models.Archive, error) {
	samples := a.source.History()
	if len(samples) == 0 {
		return nil, ErrEmptyHistory
	}

	sessionID := a.source.SessionID()
	if sessionID == "" {
		sessionID = "unsessioned"
	}

	doc := models.ArchiveDocument{
		SessionID:   sessionID,
		CreatedAt:   a.now().UTC(),
		Calibration: a.source.Calibration(),
		Samples:     samples,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	key := fmt.Sprintf("history/%s/%s.json", sessionID, uuid.New())
	log.Info().Str("key", key).Int("samples", len(samples)).Msg("Uploading history archive")
	if err := a.store.Upload(ctx, key, data, "application/json"); err != nil {
		return nil, err
	}

	url, err := a.store.DownloadURL(ctx, key)
	if err != nil {
		return nil, err
	}

	return &models.Archive{
		Key:       key,
		URL:       url,
		Samples:   len(samples),
		ExpiresIn: int(DownloadURLExpiry.Seconds()),
	}, nil
}
