package handlers

import (
	"context"
	"errors"

	"github.com/RMahshie/voltsense/internal/advisor"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/danielgtaylor/huma/v2"
)

// Assistant is the advisory chat used by AdviceHandler
type Assistant interface {
	Ask(ctx context.Context, question string) (models.ChatMessage, error)
	Messages() []models.ChatMessage
}

// AdviceHandler handles advisory chat requests
type AdviceHandler struct {
	assistant Assistant
}

// NewAdviceHandler creates a new advice handler
func NewAdviceHandler(assistant Assistant) *AdviceHandler {
	return &AdviceHandler{assistant: assistant}
}

// GetConversation returns the chat log
func (h *AdviceHandler) GetConversation(ctx context.Context, req *struct{}) (*models.ConversationResponse, error) {
	resp := &models.ConversationResponse{}
	resp.Body.Messages = h.assistant.Messages()
	return resp, nil
}

// AskQuestion forwards a question with the live readings. Advisor failures
// come back as the fallback answer, not as an error.
func (h *AdviceHandler) AskQuestion(ctx context.Context, req *models.AskQuestionRequest) (*models.AskQuestionResponse, error) {
	reply, err := h.assistant.Ask(ctx, req.Body.Question)
	if err != nil {
		if errors.Is(err, advisor.ErrEmptyQuestion) {
			return nil, huma.Error400BadRequest("Question must not be blank", err)
		}
		return nil, huma.Error500InternalServerError("Failed to ask question", err)
	}
	return &models.AskQuestionResponse{Body: reply}, nil
}
