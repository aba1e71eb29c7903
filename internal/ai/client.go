// Package ai wraps an OpenAI-compatible provider for chat completion and
// text embedding. All parsing failures and transport errors are surfaced
// as ErrAIService; nothing here retries.
package ai

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

	"paperchat/internal/config"
)

// ErrAIService marks provider-side failures (unreachable, bad status,
// malformed payload). Callers decide the retry policy.
var ErrAIService = errors.New("ai service error")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	embedDim   int
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		chatModel:  cfg.Model,
		embedModel: cfg.EmbeddingModel,
		embedDim:   cfg.EmbeddingDimension,
	}
}

// EmbeddingModel returns the configured embedding model name; the embedding
// cache keys and the fingerprint embedding version derive from it.
func (c *Client) EmbeddingModel() string {
	return c.embedModel
}

// Complete sends a chat completion request and returns the assistant text.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    c.chatModel,
		"messages": messages,
		"stream":   false,
	}
	raw, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse llm json failed: %v", ErrAIService, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty llm choices", ErrAIService)
	}
	return parsed.Choices[0].Message.Content, nil
}

// Invoke sends a single-prompt request; the explanation workflow calls the
// model exclusively through this operation.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []ChatMessage{{Role: "user", Content: prompt}})
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s failed: %v", ErrAIService, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed: %v", ErrAIService, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s status %d: %s", ErrAIService, path, resp.StatusCode, string(raw))
	}
	return raw, nil
}
