// Package breaker implements a per-provider circuit breaker:
// closed/open/half-open, gating calls and absorbing qualifying
// failures.
package breaker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
)

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

type providerState struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	openUntil        time.Time
	lastFailure      time.Time
	lastProbe        time.Time
	probeInflight    bool
}

// Breaker holds one state machine per provider.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu        sync.RWMutex
	providers map[string]*providerState
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		providers: make(map[string]*providerState),
	}
}

func (b *Breaker) stateFor(provider string) *providerState {
	b.mu.RLock()
	ps, ok := b.providers[provider]
	b.mu.RUnlock()
	if ok {
		return ps
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ps, ok = b.providers[provider]; ok {
		return ps
	}
	ps = &providerState{state: Closed}
	b.providers[provider] = ps
	return ps
}

// Permit is returned by Gate on success. Unlike a one-shot token, a
// permit spans every try of one call: a caller that retries records one
// outcome per try (RecordFailure on each failed try, then RecordSuccess
// on an eventual success, or a final RecordFailure if it gives up), and
// every one of those calls is applied to the breaker's accounting - a
// later success still resets consecutiveFails even if an earlier try on
// the same permit recorded a failure.
type Permit struct {
	provider string
	isProbe  bool
	b        *Breaker
}

// Gate decides whether a call to provider may proceed. It returns
// corerr.ProviderDown when the breaker is open, or when it is half-open
// and a probe is already inflight.
func (b *Breaker) Gate(provider string) (*Permit, error) {
	ps := b.stateFor(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	switch ps.state {
	case Closed:
		return &Permit{provider: provider, b: b}, nil

	case Open:
		if time.Now().Before(ps.openUntil) {
			return nil, corerr.ProviderDown(nil)
		}
		ps.state = HalfOpen
		ps.probeInflight = true
		ps.lastProbe = time.Now()
		log.WithField("provider", provider).Info("circuit breaker: entering half-open, starting probe")
		return &Permit{provider: provider, isProbe: true, b: b}, nil

	case HalfOpen:
		if ps.probeInflight {
			return nil, corerr.ProviderDown(nil)
		}
		ps.probeInflight = true
		ps.lastProbe = time.Now()
		return &Permit{provider: provider, isProbe: true, b: b}, nil

	default:
		return &Permit{provider: provider, b: b}, nil
	}
}

// IsProbe reports whether this permit represents a half-open probe call,
// which must not consume a concurrency-gate slot.
func (p *Permit) IsProbe() bool { return p.isProbe }

// RecordSuccess reports a successful call. In half-open this closes the
// breaker and resets the failure count.
func (p *Permit) RecordSuccess() {
	ps := p.b.stateFor(p.provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if p.isProbe {
		ps.probeInflight = false
	}
	ps.consecutiveFails = 0
	if ps.state != Closed {
		log.WithField("provider", p.provider).Info("circuit breaker: closing after successful probe")
	}
	ps.state = Closed
}

// RecordFailure reports a failure. Only qualifying kinds move the
// breaker toward open; for any other kind (Fatal, Cancelled) it returns
// without changing the breaker's state.
func (p *Permit) RecordFailure(kind corerr.Kind) {
	if !kind.Qualifying() {
		return
	}

	ps := p.b.stateFor(p.provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.lastFailure = time.Now()

	if p.isProbe {
		ps.probeInflight = false
		ps.state = Open
		ps.openUntil = time.Now().Add(p.b.cooldown)
		ps.consecutiveFails = p.b.threshold
		log.WithField("provider", p.provider).Warn("circuit breaker: probe failed, reopening")
		return
	}

	ps.consecutiveFails++
	if ps.consecutiveFails >= p.b.threshold && ps.state == Closed {
		ps.state = Open
		ps.openUntil = time.Now().Add(p.b.cooldown)
		log.WithFields(log.Fields{
			"provider": p.provider,
			"fails":    ps.consecutiveFails,
		}).Warn("circuit breaker: opening after consecutive qualifying failures")
	}
}

// Snapshot is the read-only view exposed to the status surface.
type Snapshot struct {
	Provider         string
	State            State
	ConsecutiveFails int
	OpenUntil        time.Time
	LastFailure      time.Time
	LastProbe        time.Time
}

func (b *Breaker) Snapshot(provider string) Snapshot {
	ps := b.stateFor(provider)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return Snapshot{
		Provider:         provider,
		State:            ps.state,
		ConsecutiveFails: ps.consecutiveFails,
		OpenUntil:        ps.openUntil,
		LastFailure:      ps.lastFailure,
		LastProbe:        ps.lastProbe,
	}
}

func (b *Breaker) Providers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.providers))
	for p := range b.providers {
		names = append(names, p)
	}
	return names
}
