// Package buffer implements a bounded, single-attempt token accumulator:
// a small state machine (idle/buffering/flushing) guarding back-pressure
// with a readiness condition — Add suspends while a drain is in
// flight.
package buffer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
)

type state int

const (
	idle state = iota
	buffering
	flushing
)

// Drainer is the persistence contract the buffer flushes into; satisfied
// by *persistence.Service.
type Drainer interface {
	Persist(ctx context.Context, batch []models.Token) (persistence.Result, error)
}

// Buffer accumulates tokens for exactly one attempt and flushes them to
// a Drainer on a size or age trigger.
type Buffer struct {
	requestID  string
	attemptSeq int

	sizeTrigger int
	ageTrigger  time.Duration
	drainer     Drainer

	mu          sync.Mutex
	cond        *sync.Cond
	st          state
	tokens      []models.Token
	firstAt     time.Time
	flushSeq    int
	fatal       error
	lastFlushMs int64
	ageTimer    *time.Timer
	flushCtx    context.Context
}

func New(requestID string, attemptSeq int, sizeTrigger int, ageTrigger time.Duration, drainer Drainer) *Buffer {
	b := &Buffer{
		requestID:   requestID,
		attemptSeq:  attemptSeq,
		sizeTrigger: sizeTrigger,
		ageTrigger:  ageTrigger,
		drainer:     drainer,
		st:          idle,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Add appends t to the buffer, in token_index order, suspending while a
// drain is in progress. It flushes synchronously once the size or age
// trigger fires on an Add call; a background timer armed on the first
// buffered token also flushes on age alone, so a stalled stream that
// never calls Add again still meets the age bound.
func (b *Buffer) Add(ctx context.Context, t models.Token) error {
	b.mu.Lock()
	for b.st == flushing {
		if b.fatal != nil {
			err := b.fatal
			b.mu.Unlock()
			return err
		}
		if waitErr := b.condWaitCtx(ctx); waitErr != nil {
			b.mu.Unlock()
			return waitErr
		}
	}
	if b.fatal != nil {
		err := b.fatal
		b.mu.Unlock()
		return err
	}

	if len(b.tokens) == 0 {
		b.firstAt = time.Now()
		b.flushCtx = ctx
		b.armAgeTimerLocked()
	}
	b.tokens = append(b.tokens, t)
	b.st = buffering

	trigger := len(b.tokens) >= b.sizeTrigger || time.Since(b.firstAt) >= b.ageTrigger
	if !trigger {
		b.mu.Unlock()
		return nil
	}

	b.stopAgeTimerLocked()
	batch := b.tokens
	b.tokens = nil
	b.st = flushing
	b.flushSeq++
	b.mu.Unlock()

	return b.drain(ctx, batch)
}

// armAgeTimerLocked starts a background timer that flushes the buffer on
// its own once ageTrigger elapses, even if no further Add call ever
// arrives to notice the age. Called with mu held.
func (b *Buffer) armAgeTimerLocked() {
	b.ageTimer = time.AfterFunc(b.ageTrigger, b.onAgeTimer)
}

// stopAgeTimerLocked cancels any pending age timer. Called with mu held.
func (b *Buffer) stopAgeTimerLocked() {
	if b.ageTimer != nil {
		b.ageTimer.Stop()
		b.ageTimer = nil
	}
}

// onAgeTimer runs on its own goroutine when the age timer fires. It only
// acts if the buffer is still sitting on unflushed tokens; a manual
// flush or DrainAll between arming and firing makes this a no-op.
func (b *Buffer) onAgeTimer() {
	b.mu.Lock()
	if b.st != buffering || len(b.tokens) == 0 {
		b.mu.Unlock()
		return
	}

	ctx := b.flushCtx
	b.ageTimer = nil
	batch := b.tokens
	b.tokens = nil
	b.st = flushing
	b.flushSeq++
	b.mu.Unlock()

	if err := b.drain(ctx, batch); err != nil {
		log.WithError(err).Error("buffer: age-timer flush failed")
	}
}

// condWaitCtx waits on the readiness condition but still respects ctx
// cancellation; sync.Cond has no native context support, so a watcher
// goroutine broadcasts on cancellation.
func (b *Buffer) condWaitCtx(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.cond.Wait()

	select {
	case <-ctx.Done():
		return corerr.Cancelled(ctx.Err())
	default:
		return nil
	}
}

func (b *Buffer) drain(ctx context.Context, batch []models.Token) error {
	start := time.Now()
	result, err := b.drainer.Persist(ctx, batch)
	elapsed := time.Since(start)

	b.mu.Lock()
	b.lastFlushMs = elapsed.Milliseconds()
	switch result {
	case persistence.OK, persistence.Deferred:
		b.st = idle
		b.cond.Broadcast()
		b.mu.Unlock()
		return nil
	default:
		b.fatal = err
		b.cond.Broadcast()
		b.mu.Unlock()
		log.WithError(err).Error("buffer: fatal drain error, buffer poisoned")
		return err
	}
}

// DrainAll atomically flushes any buffered-but-not-yet-triggered tokens.
// Called on graceful shutdown and at the natural end of a stream.
func (b *Buffer) DrainAll(ctx context.Context) error {
	b.mu.Lock()
	for b.st == flushing {
		if b.fatal != nil {
			err := b.fatal
			b.mu.Unlock()
			return err
		}
		if waitErr := b.condWaitCtx(ctx); waitErr != nil {
			b.mu.Unlock()
			return waitErr
		}
	}
	if len(b.tokens) == 0 {
		b.mu.Unlock()
		return nil
	}
	b.stopAgeTimerLocked()
	batch := b.tokens
	b.tokens = nil
	b.st = flushing
	b.flushSeq++
	b.mu.Unlock()

	return b.drain(ctx, batch)
}

// Len reports the number of tokens currently buffered, for the status
// snapshot.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens)
}

// LastFlushMs reports the duration of the most recent drain in
// milliseconds, for the status snapshot.
func (b *Buffer) LastFlushMs() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFlushMs
}
