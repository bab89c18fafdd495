// Package assistant proxies chat turns to a hosted chat-completion API.
package assistant

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

	"advisor-twin/internal/domain"
)

const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// ErrUnavailable is returned when no completion backend is configured.
var ErrUnavailable = errors.New("assistant is not configured")

type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	// MaxHistory caps how many prior turns are forwarded.
	MaxHistory int
}

// Client answers a message given the conversation so far.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Complete returns the assistant reply to msg.
func (c *Client) Complete(ctx context.Context, msg string, history []domain.ChatMessage) (string, error) {
	if !c.Configured() {
		return "", ErrUnavailable
	}

	payload := completionRequest{
		Model:     c.cfg.Model,
		Messages:  c.buildMessages(msg, history),
		MaxTokens: c.cfg.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("completion api returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no response generated")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) buildMessages(msg string, history []domain.ChatMessage) []message {
	if len(history) > c.cfg.MaxHistory {
		history = history[len(history)-c.cfg.MaxHistory:]
	}

	out := make([]message, 0, len(history)+2)
	if c.cfg.SystemPrompt != "" {
		out = append(out, message{Role: "system", Content: c.cfg.SystemPrompt})
	}
	for _, turn := range history {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		out = append(out, message{Role: role, Content: turn.Content})
	}
	return append(out, message{Role: "user", Content: msg})
}
