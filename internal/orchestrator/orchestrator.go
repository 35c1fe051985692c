// Package orchestrator wires one comparison attempt end to end: safe
// call -> token builder -> buffer manager, with fallback and
// cancellation.
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/buffer"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/builder"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/fallback"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/logging"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/safecall"
)

// StreamEvent is one item on the upstream streaming surface: either a
// raw token to forward to the client, or the request's terminal
// outcome.
type StreamEvent struct {
	Text    string
	Final   bool
	Outcome models.Outcome
}

// Orchestrator drives one comparison request end to end: it dispatches
// every requested model, wiring safecall -> builder -> buffer per
// attempt, and applies the fallback policy on provider-level failure.
type Orchestrator struct {
	caller   *safecall.Caller
	persist  *persistence.Service
	db       *dbwriter.Writer
	fallback *fallback.Policy

	bufferSize int
	bufferAge  time.Duration

	mu          sync.Mutex
	liveBuffers map[string]*buffer.Buffer // keyed by requestID/attemptSeq
}

func New(caller *safecall.Caller, persist *persistence.Service, db *dbwriter.Writer, fb *fallback.Policy, bufferSize int, bufferAge time.Duration) *Orchestrator {
	return &Orchestrator{
		caller:      caller,
		persist:     persist,
		db:          db,
		fallback:    fb,
		bufferSize:  bufferSize,
		bufferAge:   bufferAge,
		liveBuffers: make(map[string]*buffer.Buffer),
	}
}

// RunModel drives one attempt against a single {provider, model} choice
// and, on provider-down/exhausted failure, recurses into the fallback
// chain. It streams events to out.
func (o *Orchestrator) RunModel(ctx context.Context, req models.Request, choice models.ModelChoice, attemptSeq int, alreadyTried []models.ModelChoice, out chan<- StreamEvent) {
	logger := logging.WithAttempt(req.RequestID, attemptSeq, choice.Provider, choice.Model)

	attempt := models.Attempt{
		RequestID:  req.RequestID,
		AttemptSeq: attemptSeq,
		ModelID:    choice.Model,
		Provider:   choice.Provider,
		Status:     models.AttemptStreaming,
		StartedAt:  time.Now().UTC(),
	}
	if err := o.db.UpsertAttempt(ctx, attempt); err != nil {
		logger.WithError(err).Warn("orchestrator: failed to persist initial attempt row")
	}

	b := buffer.New(req.RequestID, attemptSeq, o.bufferSize, o.bufferAge, o.persist)
	key := bufferKey(req.RequestID, attemptSeq)
	o.mu.Lock()
	o.liveBuffers[key] = b
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.liveBuffers, key)
		o.mu.Unlock()
	}()

	build := builder.New(req.RequestID, attemptSeq, choice.Model)

	tokens := o.caller.Call(ctx, choice.Model, req.Prompt)

	var terminal *corerr.Error
	for tok := range tokens {
		if tok.Err != nil {
			if ce, ok := tok.Err.(*corerr.Error); ok {
				terminal = ce
			}
			break
		}
		built := build.Build(tok.Text)
		if err := b.Add(ctx, built); err != nil {
			logger.WithError(err).Error("orchestrator: buffer add failed, aborting attempt")
			terminal = corerr.PersistenceFatal(err)
			break
		}
		select {
		case out <- StreamEvent{Text: tok.Text}:
		case <-ctx.Done():
			terminal = corerr.Cancelled(ctx.Err())
		}
		if terminal != nil {
			break
		}
	}

	drainCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := b.DrainAll(drainCtx); err != nil {
		logger.WithError(err).Error("orchestrator: final drain failed")
		if terminal == nil {
			terminal = corerr.PersistenceFatal(err)
		}
	}

	if terminal == nil {
		attempt.Status = models.AttemptCompleted
		attempt.EndedAt = time.Now().UTC()
		_ = o.db.UpsertAttempt(ctx, attempt)
		out <- StreamEvent{Final: true, Outcome: models.OutcomeOK}
		return
	}

	attempt.Status = models.AttemptFailed
	attempt.EndedAt = time.Now().UTC()
	attempt.ErrorKind = string(terminal.Kind)
	if terminal.Kind == corerr.KindPersistenceFatal {
		attempt.ErrorKind = string(models.OutcomePersistenceFailed)
	}
	_ = o.db.UpsertAttempt(ctx, attempt)

	switch terminal.Kind {
	case corerr.KindProviderDown, corerr.KindGenerationExhausted:
		tried := append(append([]models.ModelChoice{}, alreadyTried...), choice)
		next, ok := o.fallback.Next(tried)
		if !ok {
			logger.Warn("orchestrator: fallback chain exhausted")
			out <- StreamEvent{Final: true, Outcome: outcomeFor(terminal.Kind)}
			return
		}
		logger.WithField("next_model", next.Model).Info("orchestrator: falling back")
		if err := fallback.Jitter(ctx); err != nil {
			out <- StreamEvent{Final: true, Outcome: models.OutcomeCancelled}
			return
		}
		o.RunModel(ctx, req, next, attemptSeq+1, tried, out)

	case corerr.KindCancelled:
		out <- StreamEvent{Final: true, Outcome: models.OutcomeCancelled}

	case corerr.KindPersistenceFatal:
		out <- StreamEvent{Final: true, Outcome: models.OutcomePersistenceFailed}

	default: // Fatal
		out <- StreamEvent{Final: true, Outcome: models.OutcomeFatal}
	}
}

func outcomeFor(kind corerr.Kind) models.Outcome {
	switch kind {
	case corerr.KindProviderDown:
		return models.OutcomeProviderDown
	case corerr.KindGenerationExhausted:
		return models.OutcomeExhausted
	default:
		return models.OutcomeFatal
	}
}

// RunRequest fans out one attempt per requested model concurrently,
// under a conc.WaitGroup so a panic in one attempt doesn't take down the
// process.
func (o *Orchestrator) RunRequest(ctx context.Context, req models.Request, out chan<- StreamEvent) {
	var wg conc.WaitGroup
	for i, choice := range req.Models {
		choice := choice
		attemptSeq := i + 1
		wg.Go(func() {
			o.RunModel(ctx, req, choice, attemptSeq, nil, out)
		})
	}
	wg.Wait()
	close(out)
}

// DrainAllLive flushes every currently live buffer, used by boot.Shutdown.
func (o *Orchestrator) DrainAllLive(ctx context.Context) {
	o.mu.Lock()
	buffers := make([]*buffer.Buffer, 0, len(o.liveBuffers))
	for _, b := range o.liveBuffers {
		buffers = append(buffers, b)
	}
	o.mu.Unlock()

	var wg conc.WaitGroup
	for _, b := range buffers {
		b := b
		wg.Go(func() {
			if err := b.DrainAll(ctx); err != nil {
				log.WithError(err).Error("boot: shutdown drain failed for a live buffer")
			}
		})
	}
	wg.Wait()
}

// LiveBufferSnapshot exposes buffer lengths for the status surface.
func (o *Orchestrator) LiveBufferSnapshot() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := make(map[string]int, len(o.liveBuffers))
	for k, b := range o.liveBuffers {
		snap[k] = b.Len()
	}
	return snap
}

func bufferKey(requestID string, attemptSeq int) string {
	return requestID + "#" + strconv.Itoa(attemptSeq)
}
