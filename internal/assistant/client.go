// Package assistant answers homework questions through the Anthropic
// Messages API, with the student's LaTeX file as context.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/texdesk/internal/stats"
)

const defaultBaseURL = "https://api.anthropic.com"

// ErrNoMessages is returned when a conversation has nothing to send.
var ErrNoMessages = errors.New("assistant: no messages")

// Part is one piece of a message in the parts format chat UIs send.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one conversation turn. Either Content or text Parts carry the
// text.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Text returns the message text, joining text parts when Content is empty.
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

type Options struct {
	APIKey    string
	Model     string
	BaseURL   string // defaults to the public API
	MaxTokens int    // reply ceiling, defaults to 4096
	Stats     *stats.Window
	Logger    *slog.Logger
}

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	stats      *stats.Window
	log        *slog.Logger
	backoff    func(attempt int) time.Duration
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		apiKey:    opts.APIKey,
		model:     opts.Model,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		maxTokens: opts.MaxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		stats:   opts.Stats,
		log:     opts.Logger,
		backoff: Backoff,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Reply sends the conversation and returns the assistant's answer.
// Transient failures are retried with backoff up to MaxRetries attempts.
func (c *Client) Reply(ctx context.Context, system string, messages []Message) (string, error) {
	msgs := normalize(messages)
	if len(msgs) == 0 {
		return "", ErrNoMessages
	}
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  msgs,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	defer func() { c.stats.SinceOutcome(start, stats.OutcomeOf(lastErr)) }()

	for attempt := range MaxRetries {
		var reply string
		reply, lastErr = c.send(ctx, body)
		if lastErr == nil {
			return reply, nil
		}
		if !IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		c.log.Warn("retryable assistant error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			return "", lastErr
		}
	}
	return "", lastErr
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return sb.String(), nil
}

// normalize keeps user and assistant turns with text and merges consecutive
// turns from the same role, which the API rejects. The conversation must
// start with a user turn.
func normalize(messages []Message) []anthropicMessage {
	var out []anthropicMessage
	for _, m := range messages {
		role := strings.ToLower(m.Role)
		text := strings.TrimSpace(m.Text())
		if (role != "user" && role != "assistant") || text == "" {
			continue
		}
		if len(out) == 0 && role != "user" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + text
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: text})
	}
	return out
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
