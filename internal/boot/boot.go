// Package boot implements the gap-detection boot sequence and graceful
// shutdown.
package boot

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/orchestrator"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/replay"
)

const defaultGapFindingsLimit = 10

// Boot runs the startup sequence and owns the pieces Shutdown needs to
// stop cleanly.
type Boot struct {
	db       *dbwriter.Writer
	replay   *replay.Loop
	orch     *orchestrator.Orchestrator
	grace    time.Duration
	tokenGap bool
	findings []dbwriter.GapFinding
}

func New(db *dbwriter.Writer, replayLoop *replay.Loop, orch *orchestrator.Orchestrator, grace time.Duration) *Boot {
	return &Boot{db: db, replay: replayLoop, orch: orch, grace: grace}
}

// Start runs the gap-detection scan and starts the replay loop. Schema
// migration already happened in dbwriter.Open; this only performs the
// gap query and reports it.
func (b *Boot) Start(ctx context.Context) error {
	findings, err := b.db.FindGaps(ctx, defaultGapFindingsLimit)
	if err != nil {
		return err
	}
	b.findings = findings
	b.tokenGap = len(findings) > 0

	if b.tokenGap {
		log.WithField("count", len(findings)).Warn("boot: token index gaps detected in persisted attempts")
		for _, f := range findings {
			log.WithFields(log.Fields{
				"request_id":  f.RequestID,
				"attempt_seq": f.AttemptSeq,
				"prev_index":  f.PrevIndex,
				"curr_index":  f.CurrIndex,
			}).Warn("boot: gap finding")
		}
	} else {
		log.Info("boot: no token index gaps found")
	}

	b.replay.Start(ctx)
	return nil
}

// TokenGap reports whether the boot-time scan found any gap, exposed on
// the status surface.
func (b *Boot) TokenGap() bool { return b.tokenGap }

// GapFindings exposes the raw findings for diagnostics.
func (b *Boot) GapFindings() []dbwriter.GapFinding { return b.findings }

// Shutdown flushes every live attempt buffer within the grace deadline,
// stops the replay loop, and closes the database. It does not itself
// refuse new attempts or wait for running attempts to finish; the
// caller's cmd/ entrypoint stops its HTTP server (which waits for
// in-flight requests) before calling Shutdown.
func (b *Boot) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, b.grace)
	defer cancel()

	b.orch.DrainAllLive(drainCtx)
	b.replay.Stop()

	return b.db.Close()
}
