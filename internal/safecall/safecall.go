// Package safecall composes the circuit breaker, concurrency gate, and
// provider adaptor into a single "stream raw tokens from model M
// safely" call.
package safecall

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/breaker"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gate"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/provider"
)

const maxTries = 3

// Caller composes the breaker, gate, and provider adaptors for one
// provider registry.
type Caller struct {
	breaker    *breaker.Breaker
	gate       *gate.Gate
	adaptors   map[string]provider.Adaptor // keyed by provider name
	providerOf func(model string) string
}

func New(b *breaker.Breaker, g *gate.Gate, adaptors map[string]provider.Adaptor, providerOf func(model string) string) *Caller {
	return &Caller{breaker: b, gate: g, adaptors: adaptors, providerOf: providerOf}
}

// Token is one raw string yielded to the caller, or a terminal error.
type Token struct {
	Text string
	Err  error // ProviderDown | Fatal | GenerationExhausted | Cancelled, only on the final item
}

// Call streams raw tokens for model, applying circuit-breaker gating,
// concurrency admission, and up to 3 tries. The returned channel is
// closed after the terminal item (success end-of-stream, or one item
// carrying a non-nil Err).
func (c *Caller) Call(ctx context.Context, model, prompt string) <-chan Token {
	out := make(chan Token, 1)
	go c.run(ctx, model, prompt, out)
	return out
}

func (c *Caller) run(ctx context.Context, model, prompt string, out chan<- Token) {
	defer close(out)

	prov := c.providerOf(model)
	adaptor, ok := c.adaptors[prov]
	if !ok {
		out <- Token{Err: corerr.Fatal(nil)}
		return
	}

	permit, err := c.breaker.Gate(prov)
	if err != nil {
		out <- Token{Err: err}
		return
	}

	release, err := c.gate.Acquire(ctx, prov, permit.IsProbe())
	if err != nil {
		permit.RecordFailure(corerr.KindCancelled)
		out <- Token{Err: corerr.Cancelled(err)}
		return
	}
	defer release()

	if permit.IsProbe() {
		c.runProbe(ctx, adaptor, model, prompt, permit, out)
		return
	}

	for attempt := 1; attempt <= maxTries; attempt++ {
		yielded, kind, streamErr := c.tryOnce(ctx, adaptor, model, prompt, out)
		if streamErr == nil {
			permit.RecordSuccess()
			return
		}

		switch kind {
		case corerr.KindRateLimit, corerr.KindTimeout:
			permit.RecordFailure(kind)
			if yielded > 0 {
				// Tokens already reached the caller this try; resuming
				// would replay a second generation under the same
				// attempt and break index monotonicity. Surface the
				// error instead of retrying.
				out <- Token{Err: corerr.Exhausted(streamErr)}
				return
			}
			if attempt == maxTries {
				out <- Token{Err: corerr.Exhausted(streamErr)}
				return
			}
			backoff := time.Duration(math.Pow(1.5, float64(attempt)) * float64(time.Second))
			log.WithFields(log.Fields{
				"provider": prov,
				"attempt":  attempt,
				"backoff":  backoff,
			}).Warn("safecall: retryable error, backing off")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				out <- Token{Err: corerr.Cancelled(ctx.Err())}
				return
			}
			continue

		case corerr.KindProviderDown:
			permit.RecordFailure(kind)
			out <- Token{Err: corerr.ProviderDown(streamErr)}
			return

		case corerr.KindCancelled:
			permit.RecordFailure(kind)
			out <- Token{Err: corerr.Cancelled(streamErr)}
			return

		default:
			// Fatal or anything unclassified: no CB accounting, no retry.
			out <- Token{Err: corerr.Fatal(streamErr)}
			return
		}
	}
}

const probeTimeout = 5 * time.Second

// runProbe performs the single minimal completion required for a
// half-open probe: one try, no retries, bounded to 5s, never consuming
// a concurrency-gate permit.
func (c *Caller) runProbe(ctx context.Context, adaptor provider.Adaptor, model, prompt string, permit *breaker.Permit, out chan<- Token) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, kind, streamErr := c.tryOnce(probeCtx, adaptor, model, prompt, out)
	if streamErr == nil {
		permit.RecordSuccess()
		return
	}
	if kind == "" {
		kind = corerr.KindProviderDown
	}
	permit.RecordFailure(kind)
	out <- Token{Err: corerr.ProviderDown(streamErr)}
}

// tryOnce opens one fresh stream and forwards tokens until end-of-stream
// or error. Tokens yielded before a mid-stream failure are still
// delivered to the caller: the caller sees them on out before the
// terminal error.
func (c *Caller) tryOnce(ctx context.Context, adaptor provider.Adaptor, model, prompt string, out chan<- Token) (yielded int, kind corerr.Kind, err error) {
	raws := adaptor.Stream(ctx, model, prompt)
	for r := range raws {
		if r.Err != nil {
			return yielded, adaptor.Classify(r.Err), r.Err
		}
		if r.Done {
			return yielded, "", nil
		}
		select {
		case out <- Token{Text: r.Text}:
			yielded++
		case <-ctx.Done():
			return yielded, corerr.KindCancelled, ctx.Err()
		}
	}
	return yielded, "", nil
}
