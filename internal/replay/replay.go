// Package replay implements the background WAL-to-DB drain, run on its
// own goroutine started from internal/boot.
package replay

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

const batchSize = 16

// Loop periodically drains the WAL into the database.
type Loop struct {
	persist  *persistence.Service
	db       *dbwriter.Writer
	wal      *wal.WAL
	interval time.Duration
	maxSize  int64

	stop chan struct{}
	done chan struct{}
}

func New(persist *persistence.Service, db *dbwriter.Writer, w *wal.WAL, interval time.Duration, maxSize int64) *Loop {
	return &Loop{
		persist:  persist,
		db:       db,
		wal:      w,
		interval: interval,
		maxSize:  maxSize,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop until Stop is called or ctx is cancelled. On
// shutdown it finishes its current batch and exits before truncating,
// leaving the remainder of the WAL for the next boot's replay.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				l.tick(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the in-flight tick to
// finish.
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Loop) tick(ctx context.Context) {
	if !l.persist.DbIsUp(ctx) {
		return
	}

	tokens, err := l.wal.ReadLines()
	if err != nil {
		log.WithError(err).Error("replay: failed to read wal")
		return
	}
	if len(tokens) == 0 {
		return
	}

	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			// Let the current batch's write finish; abort before
			// starting a new one rather than truncating mid-batch.
			return
		default:
		}

		outcome := l.db.CopyBatch(ctx, batch)
		if outcome != dbwriter.OK {
			log.WithField("outcome", outcome).Warn("replay: batch write failed, leaving wal intact for next tick")
			return
		}
	}

	if err := l.wal.Truncate(); err != nil {
		log.WithError(err).Error("replay: truncate failed after successful drain")
		return
	}
	if err := l.wal.RotateIfNeeded(l.maxSize); err != nil {
		log.WithError(err).Warn("replay: rotation check failed post-truncate")
	}
	log.WithField("tokens", len(tokens)).Info("replay: wal drained into db")
}
