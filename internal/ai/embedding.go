package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrAIService)
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
// Callers are responsible for splitting large inputs into provider-sized
// batches; this issues exactly one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no non-empty texts for embedding")
	}

	reqBody := map[string]interface{}{
		"model": c.embedModel,
		"input": trimmed,
	}
	if c.embedDim > 0 {
		reqBody["dimensions"] = c.embedDim
	}
	raw, err := c.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %v", ErrAIService, err)
	}
	if len(parsed.Data) != len(trimmed) {
		return nil, fmt.Errorf("%w: embedding count mismatch: got %d for %d texts", ErrAIService, len(parsed.Data), len(trimmed))
	}
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if c.embedDim > 0 && len(parsed.Data[i].Embedding) != c.embedDim {
			return nil, fmt.Errorf("%w: embedding dimension mismatch: got %d, want %d",
				ErrAIService, len(parsed.Data[i].Embedding), c.embedDim)
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
