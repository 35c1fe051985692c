package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
)

// chunk mirrors the OpenAI-compatible streaming payload emitted by
// cmd/mock-provider and real vendor gateways alike.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// HTTPAdaptor streams an OpenAI-compatible chat-completions SSE endpoint.
// It is the concrete adaptor both the real vendor gateways and
// cmd/mock-provider (used in integration tests) are driven through.
type HTTPAdaptor struct {
	Provider string
	BaseURL  string
	APIKey   string
	Client   *http.Client
}

func NewHTTPAdaptor(provider, baseURL, apiKey string, client *http.Client) *HTTPAdaptor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAdaptor{Provider: provider, BaseURL: baseURL, APIKey: apiKey, Client: client}
}

func (a *HTTPAdaptor) Stream(ctx context.Context, model, prompt string) <-chan Raw {
	out := make(chan Raw, 1)

	go func() {
		defer close(out)

		body := fmt.Sprintf(`{"model":%q,"stream":true,"messages":[{"role":"user","content":%q}]}`, model, prompt)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/chat/completions", strings.NewReader(body))
		if err != nil {
			out <- Raw{Err: &HTTPStatusError{Err: err}}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if a.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.APIKey)
		}

		resp, err := a.Client.Do(req)
		if err != nil {
			out <- Raw{Err: &HTTPStatusError{Err: err}}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			out <- Raw{Err: &HTTPStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("provider status %d", resp.StatusCode)}}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- Raw{Err: &HTTPStatusError{Err: ctx.Err()}}
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				out <- Raw{Done: true}
				return
			}

			var c chunk
			if err := json.Unmarshal([]byte(payload), &c); err != nil {
				out <- Raw{Err: &HTTPStatusError{Err: fmt.Errorf("malformed chunk: %w", err)}}
				return
			}
			if len(c.Choices) == 0 {
				continue
			}
			out <- Raw{Text: c.Choices[0].Delta.Content}
			if c.Choices[0].FinishReason != nil {
				out <- Raw{Done: true}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			out <- Raw{Err: &HTTPStatusError{Err: err}}
			return
		}
		out <- Raw{Done: true}
	}()

	return out
}

func (a *HTTPAdaptor) Classify(err error) corerr.Kind {
	return ClassifyHTTP(err)
}
