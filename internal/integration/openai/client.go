// Package openai calls the OpenAI chat completions API to generate dare
// text. The request carries a hard timeout and a bounded response read;
// failures surface as EXTERNAL_CALL_FAILED with the upstream status attached
// so callers can retry or fall back.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/H3nryK/Darely/internal/darely"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultModel   = "gpt-4o-mini"

	// dareMaxTokens keeps generated dares short.
	dareMaxTokens = 60

	// maxResponseBytes caps how much of the upstream body is read.
	maxResponseBytes = 2048

	defaultTimeout = 30 * time.Second

	temperature = 0.8
)

// KeySource supplies the stored API credential on each call, so a key
// refreshed at upgrade time is picked up without rebuilding the client.
type KeySource func() (string, error)

// Config defines the inputs for the generation client.
type Config struct {
	// Key supplies the API credential. Required.
	Key KeySource
	// BaseURL overrides the chat completions endpoint, used by tests.
	BaseURL string
	// Model overrides the default model.
	Model string
	// Timeout bounds one request/response cycle.
	Timeout time.Duration
	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
}

// Client generates dare text via chat completions.
type Client struct {
	key     KeySource
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
}

// New builds a generation client.
func New(cfg Config) (*Client, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("api key source is required")
	}
	c := &Client{
		key:     cfg.Key,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateDare asks the model for one dare of the given difficulty.
func (c *Client) GenerateDare(ctx context.Context, difficulty darely.Difficulty) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalCallFailed, "api key unavailable", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", apperrors.New(apperrors.CodeExternalCallFailed, "api key is not configured")
	}

	prompt := fmt.Sprintf(
		"You are an assistant generating dares for an online community bot. "+
			"Generate one short, fun, creative dare with '%s' difficulty. "+
			"The dare should be actionable online or briefly in real life. "+
			"IMPORTANT: Respond ONLY with the text of the dare itself, without any extra "+
			"formatting, quotation marks, or preamble like 'Here is a dare:'.",
		difficulty)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   dareMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalCallFailed, "chat completions call failed", err)
	}
	defer resp.Body.Close()

	limited, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalCallFailed, "read chat completions response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperrors.WithMetadata(apperrors.CodeExternalCallFailed,
			fmt.Sprintf("chat completions returned status %d", resp.StatusCode),
			map[string]string{"status": strconv.Itoa(resp.StatusCode)})
	}

	var parsed chatResponse
	if err := json.Unmarshal(limited, &parsed); err != nil {
		return "", apperrors.Wrap(apperrors.CodeExternalCallFailed, "parse chat completions response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeExternalCallFailed, "chat completions response contained no choices")
	}
	dare := strings.Trim(strings.TrimSpace(parsed.Choices[0].Message.Content), `"`)
	if dare == "" {
		return "", apperrors.New(apperrors.CodeExternalCallFailed, "model returned an empty dare")
	}
	return dare, nil
}
