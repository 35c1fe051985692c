package provider

import (
	"context"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
)

// Script is one scripted stream for MockAdaptor: a slice of token texts
// optionally followed by an error partway through.
type Script struct {
	Tokens     []string
	FailAt     int // index at which to emit Err instead of the remaining tokens; -1 means never
	Err        error
	ClassifyAs corerr.Kind
}

// MockAdaptor replays a queue of Scripts, one per call to Stream, letting
// tests exercise retry, circuit-breaker, and fallback paths without a
// network. It is the in-repo analogue of cmd/mock-provider's HTTP
// failure-injection knobs, usable directly in unit tests.
type MockAdaptor struct {
	Provider string
	scripts  []Script
	calls    int
}

func NewMockAdaptor(provider string, scripts ...Script) *MockAdaptor {
	return &MockAdaptor{Provider: provider, scripts: scripts}
}

func (m *MockAdaptor) Calls() int { return m.calls }

func (m *MockAdaptor) Stream(ctx context.Context, model, prompt string) <-chan Raw {
	out := make(chan Raw, 1)

	idx := m.calls
	m.calls++
	if idx >= len(m.scripts) {
		go func() {
			defer close(out)
			out <- Raw{Err: &HTTPStatusError{StatusCode: 500}}
		}()
		return out
	}
	script := m.scripts[idx]

	go func() {
		defer close(out)
		for i, tok := range script.Tokens {
			if script.FailAt >= 0 && i == script.FailAt {
				out <- Raw{Err: script.Err}
				return
			}
			select {
			case <-ctx.Done():
				out <- Raw{Err: &HTTPStatusError{Err: ctx.Err()}}
				return
			case out <- Raw{Text: tok}:
			}
		}
		if script.FailAt >= 0 && script.FailAt >= len(script.Tokens) {
			out <- Raw{Err: script.Err}
			return
		}
		out <- Raw{Done: true}
	}()

	return out
}

func (m *MockAdaptor) Classify(err error) corerr.Kind {
	for _, s := range m.scripts {
		if s.Err == err && s.ClassifyAs != "" {
			return s.ClassifyAs
		}
	}
	return ClassifyHTTP(err)
}
