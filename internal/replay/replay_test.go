package replay_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/replay"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

func newLoop(t *testing.T, interval time.Duration) (*replay.Loop, *dbwriter.Writer, *wal.WAL) {
	t.Helper()
	db, err := dbwriter.Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fs := afero.NewMemMapFs()
	w := wal.New(fs, "tokens.wal")
	persist := persistence.New(db, w, 1<<20)

	return replay.New(persist, db, w, interval, 1<<20), db, w
}

func TestLoopDrainsWALIntoDB(t *testing.T) {
	loop, db, w := newLoop(t, 5*time.Millisecond)

	require.NoError(t, w.Append([]models.Token{
		{RequestID: "req-1", AttemptSeq: 1, TokenIndex: 0, ModelID: "gpt-4", Text: "a", Ts: time.Now()},
		{RequestID: "req-1", AttemptSeq: 1, TokenIndex: 1, ModelID: "gpt-4", Text: "b", Ts: time.Now()},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	var findings int
	for time.Now().Before(deadline) {
		lines, err := w.ReadLines()
		require.NoError(t, err)
		if len(lines) == 0 {
			break
		}
		findings++
		time.Sleep(5 * time.Millisecond)
	}
	loop.Stop()

	lines, err := w.ReadLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	n, err := db.CountAttempts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	_ = findings
}

func TestStopWaitsForInFlightTick(t *testing.T) {
	loop, _, _ := newLoop(t, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Start(ctx)
	time.Sleep(3 * time.Millisecond)
	loop.Stop()
}
