package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaClient speaks the Ollama /api/generate protocol: a single JSON
// request, answered either with one JSON object or a stream of
// newline-delimited chunks.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewOllamaClient(cfg Config) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.OllamaHost, "/"),
		model:   cfg.Model,
		http:    &http.Client{},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *OllamaClient) post(ctx context.Context, req generateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agent: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent: ollama request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("agent: ollama status %d", resp.StatusCode)
	}
	return resp, nil
}

// Generate runs a non-streaming completion and returns the full text.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out generateChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("agent: decode response: %w", err)
	}
	return out.Response, nil
}

// Stream runs a streaming completion, invoking emit once per non-empty
// chunk. An emit error aborts the stream (e.g. the client went away).
func (c *OllamaClient) Stream(ctx context.Context, prompt string, emit func(chunk string) error) error {
	resp, err := c.post(ctx, generateRequest{Model: c.model, Prompt: prompt, Stream: true})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("agent: decode stream chunk: %w", err)
		}
		if chunk.Response != "" {
			if err := emit(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("agent: read stream: %w", err)
	}
	return nil
}
