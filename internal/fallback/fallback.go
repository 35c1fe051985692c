// Package fallback implements the ordered alternate-model policy used
// when a model's attempt is exhausted or its provider is down.
package fallback

import (
	"context"
	"math/rand"
	"time"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

// DefaultChain is the fixed ordered list of alternate models used when
// the caller doesn't supply one.
var DefaultChain = []models.ModelChoice{
	{Provider: "openai", Model: "gpt-3.5-turbo"},
	{Provider: "anthropic", Model: "claude-haiku"},
	{Provider: "google", Model: "gemini-flash"},
	{Provider: "deepseek", Model: "deepseek-chat"},
}

// Policy selects the next untried model from an ordered chain.
type Policy struct {
	chain []models.ModelChoice
}

func New(chain []models.ModelChoice) *Policy {
	if len(chain) == 0 {
		chain = DefaultChain
	}
	return &Policy{chain: chain}
}

// Next returns the first chain entry not present in alreadyTried, or
// false if the chain is exhausted.
func (p *Policy) Next(alreadyTried []models.ModelChoice) (models.ModelChoice, bool) {
	tried := make(map[string]bool, len(alreadyTried))
	for _, m := range alreadyTried {
		tried[m.Provider+"/"+m.Model] = true
	}
	for _, m := range p.chain {
		if !tried[m.Provider+"/"+m.Model] {
			return m, true
		}
	}
	return models.ModelChoice{}, false
}

// Jitter blocks for a duration uniformly distributed in [1s, 3s] before
// the orchestrator re-enters with the fallback model, or returns early
// on ctx cancellation.
func Jitter(ctx context.Context) error {
	d := time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
