// Package persistence implements the contract the buffer manager depends
// on: try the database first, fall back to the WAL, and surface a
// single ok/deferred/fatal outcome either way.
package persistence

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

// Result is the outcome Buffer Manager reacts to.
type Result int

const (
	OK Result = iota
	Deferred
	Fatal
)

type Service struct {
	db  *dbwriter.Writer
	wal *wal.WAL

	mu            sync.RWMutex
	lastDBWriteTs time.Time
	walMaxSize    int64
}

func New(db *dbwriter.Writer, w *wal.WAL, walMaxSize int64) *Service {
	return &Service{db: db, wal: w, walMaxSize: walMaxSize}
}

// Persist tries the database first, then falls back to the WAL.
func (s *Service) Persist(ctx context.Context, batch []models.Token) (Result, error) {
	outcome := s.db.CopyBatch(ctx, batch)

	switch outcome {
	case dbwriter.OK:
		s.mu.Lock()
		s.lastDBWriteTs = time.Now()
		s.mu.Unlock()
		return OK, nil

	case dbwriter.FatalDisk:
		return Fatal, corerr.PersistenceFatal(nil)

	case dbwriter.DbUnavailable, dbwriter.DbRetryable:
		log.WithField("batch_size", len(batch)).Warn("persistence: db unavailable, falling back to WAL")
		if err := s.wal.Append(batch); err != nil {
			return Fatal, corerr.PersistenceFatal(err)
		}
		if err := s.wal.RotateIfNeeded(s.walMaxSize); err != nil {
			log.WithError(err).Warn("persistence: wal rotation check failed")
		}
		return Deferred, corerr.PersistenceDeferred(nil)

	default:
		return Fatal, corerr.PersistenceFatal(nil)
	}
}

// DbIsUp is the cheap health check used by the replay loop.
func (s *Service) DbIsUp(ctx context.Context) bool {
	return s.db.Ping(ctx)
}

// LastDBWriteTs is exposed to the status snapshot.
func (s *Service) LastDBWriteTs() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDBWriteTs
}

func (s *Service) MarkDBWrite(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastDBWriteTs) {
		s.lastDBWriteTs = t
	}
}
