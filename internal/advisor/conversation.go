package advisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RMahshie/voltsense/internal/repository"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FallbackMessage replaces the answer when the advisor call fails
const FallbackMessage = "AI context sync failed."

// GreetingMessage opens every conversation
const GreetingMessage = "System ready! Voltage, current and power readings are streamed from the serial device. Ask about calibration, power factor or circuit noise."

// ErrEmptyQuestion is returned for blank input
var ErrEmptyQuestion = errors.New("question is empty")

// StatsSource provides the readings attached to each question
type StatsSource interface {
	Stats() models.Stats
}

// Conversation keeps the advisory chat and forwards questions to the advisor
type Conversation struct {
	advisor  Advisor
	stats    StatsSource
	repo     repository.ConversationRepository
	hardware models.HardwareInfo
	now      func() time.Time

	// askMu keeps each question next to its answer
	askMu    sync.Mutex
	mu       sync.RWMutex
	messages []models.ChatMessage
}

// NewConversation creates a conversation seeded with the greeting. repo may
// be nil, in which case messages live in memory only.
func NewConversation(advisor Advisor, stats StatsSource, repo repository.ConversationRepository) *Conversation {
	c := &Conversation{
		advisor:  advisor,
		stats:    stats,
		repo:     repo,
		hardware: models.DefaultHardware,
		now:      time.Now,
	}
	c.messages = []models.ChatMessage{c.newMessage(models.RoleModel, GreetingMessage)}
	return c
}

// Load restores earlier messages from the repository after the greeting
func (c *Conversation) Load(ctx context.Context, limit int) error {
	if c.repo == nil {
		return nil
	}
	stored, err := c.repo.ListMessages(ctx, limit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range stored {
		c.messages = append(c.messages, *msg)
	}
	return nil
}

// Messages returns a copy of the conversation
func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Ask appends the question, queries the advisor with the live stats and
// appends the answer. Advisor failures become FallbackMessage and are never
// returned to the caller. Questions are answered one at a time.
func (c *Conversation) Ask(ctx context.Context, question string) (models.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.ChatMessage{}, ErrEmptyQuestion
	}

	c.askMu.Lock()
	defer c.askMu.Unlock()

	c.append(ctx, c.newMessage(models.RoleUser, question))

	adviceCtx := models.AdviceContext{
		Stats:    c.stats.Stats(),
		Hardware: c.hardware,
	}

	answer, err := c.advisor.Advise(ctx, question, adviceCtx)
	if err != nil {
		log.Error().Err(err).Msg("Advisor request failed")
		answer = FallbackMessage
	}

	reply := c.newMessage(models.RoleModel, answer)
	c.append(ctx, reply)
	return reply, nil
}

func (c *Conversation) append(ctx context.Context, msg models.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.repo != nil {
		if err := c.repo.StoreMessage(ctx, &msg); err != nil {
			log.Warn().Err(err).Str("role", msg.Role).Msg("Failed to persist chat message")
		}
	}
}

func (c *Conversation) newMessage(role, text string) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: c.now(),
	}
}
