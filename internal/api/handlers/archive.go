package handlers

import (
	"context"
	"errors"

	"github.com/RMahshie/voltsense/internal/storage"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
)

// Archiver uploads the rolling history
type Archiver interface {
	Archive(ctx context.Context) (*models.Archive, error)
}

// ArchiveHandler handles history archive requests
type ArchiveHandler struct {
	archiver Archiver
}

// NewArchiveHandler creates a new archive handler. archiver is nil when no
// archive backend is configured.
func NewArchiveHandler(archiver Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

// ArchiveHistory uploads the current history and returns a download URL
func (h *ArchiveHandler) ArchiveHistory(ctx context.Context, req *struct{}) (*models.ArchiveResponse, error) {
	if h.archiver == nil {
		return nil, huma.Error503ServiceUnavailable("Archive backend is not configured")
	}

	archive, err := h.archiver.Archive(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyHistory) {
			return nil, huma.Error409Conflict("No samples to archive", err)
		}
		log.Error().Err(err).Msg("Failed to archive history")
		return nil, huma.Error500InternalServerError("Failed to archive history", err)
	}

	return &models.ArchiveResponse{Body: *archive}, nil
}
