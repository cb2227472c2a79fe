package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RMahshie/voltsense/pkg/models"
)

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("advisor API key not configured")

// Advisor answers free-text questions about the current readings
type Advisor interface {
	Advise(ctx context.Context, prompt string, adviceCtx models.AdviceContext) (string, error)
}

// ClientConfig holds configuration for the chat completion client
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	topP        float64
}

const systemPrompt = `The user is building an AC voltage meter using an Arduino Nano and an LM358 op-amp.
Provide technical, accurate, and safety-conscious advice. Focus on:
1. Hardware safety (isolation, high voltage precautions).
2. LM358 circuit configurations (differential amp, precision rectifier).
3. Arduino code optimization for ADC sampling.
4. Calibration math (RMS calculations).`

// NewClient creates a new chat completion client
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: 0.7,
		topP:        0.95,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Advise sends the question with the reading context and returns the reply
func (c *Client) Advise(ctx context.Context, prompt string, adviceCtx models.AdviceContext) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	contextJSON, err := json.Marshal(adviceCtx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Current Setup Context: %s\n\nUser Query: %s", contextJSON, prompt)},
		},
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read advisor response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse advisor response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("advisor returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("advisor returned %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errors.New("advisor returned no answer")
	}

	return parsed.Choices[0].Message.Content, nil
}
