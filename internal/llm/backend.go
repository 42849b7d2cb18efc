package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// runtimeBackend talks to an OpenAI-compatible completion runtime
// (llama.cpp server, vLLM, text-generation-inference) over HTTP.
type runtimeBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

func newRuntimeBackend(baseURL, model string) *runtimeBackend {
	return &runtimeBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

type completionRequest struct {
	Model         string   `json:"model"`
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	TopK          int      `json:"top_k,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete runs a blocking completion request
func (b *runtimeBackend) Complete(ctx context.Context, prompt string, params GenParams) (string, error) {
	resp, err := b.post(ctx, prompt, params, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}
	return parsed.Choices[0].Text, nil
}

// Stream starts a streaming completion and returns a FragmentSource over
// the server-sent event stream.
func (b *runtimeBackend) Stream(ctx context.Context, prompt string, params GenParams) (FragmentSource, error) {
	resp, err := b.post(ctx, prompt, params, true)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &sseSource{body: resp.Body, scanner: scanner}, nil
}

func (b *runtimeBackend) post(ctx context.Context, prompt string, params GenParams, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(completionRequest{
		Model:         b.model,
		Prompt:        prompt,
		MaxTokens:     params.MaxTokens,
		Temperature:   params.Temperature,
		TopP:          params.TopP,
		TopK:          params.TopK,
		RepeatPenalty: params.RepeatPenalty,
		Stop:          params.Stop,
		Stream:        stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/v1/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request to %s failed: %w", b.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("completion runtime returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// sseSource reads "data: " framed completion chunks until the [DONE]
// sentinel or stream end.
type sseSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

func (s *sseSource) Next(ctx context.Context) (string, error) {
	if s.closed {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return "", io.EOF
		}

		var chunk completionResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Tolerate malformed keepalive frames
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		return chunk.Choices[0].Text, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
