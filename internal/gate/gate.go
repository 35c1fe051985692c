// Package gate implements per-provider bounded admission control on top
// of golang.org/x/sync/semaphore.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type providerGate struct {
	sem      *semaphore.Weighted
	inflight atomic.Int64
}

// Gate bounds the number of concurrent raw provider streams per
// provider. Acquisition never times out on its own; callers enforce
// deadlines through their context.
type Gate struct {
	mu    sync.Mutex
	gates map[string]*providerGate
	limit func(provider string) int
}

func New(limit func(provider string) int) *Gate {
	return &Gate{
		gates: make(map[string]*providerGate),
		limit: limit,
	}
}

func (g *Gate) gateFor(provider string) *providerGate {
	g.mu.Lock()
	defer g.mu.Unlock()
	pg, ok := g.gates[provider]
	if !ok {
		pg = &providerGate{sem: semaphore.NewWeighted(int64(g.limit(provider)))}
		g.gates[provider] = pg
	}
	return pg
}

// Release must be called on every exit path of a Permit scope, including
// cancellation and panics — callers should defer it immediately after
// Acquire succeeds.
type Release func()

// Acquire blocks until a permit for provider is free or ctx is done. It
// does not consume a permit for probe calls: callers pass isProbe=true
// to skip the gate entirely for circuit-breaker probes.
func (g *Gate) Acquire(ctx context.Context, provider string, isProbe bool) (Release, error) {
	if isProbe {
		return func() {}, nil
	}
	pg := g.gateFor(provider)
	if err := pg.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	pg.inflight.Add(1)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		pg.inflight.Add(-1)
		pg.sem.Release(1)
	}, nil
}

// Inflight reports the number of permits currently held for provider,
// for the status snapshot.
func (g *Gate) Inflight(provider string) int64 {
	return g.gateFor(provider).inflight.Load()
}
