package dbwriter_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

func openTestWriter(t *testing.T) *dbwriter.Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.db")
	w, err := dbwriter.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestUpsertAttemptThenCountAttempts(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.UpsertAttempt(ctx, models.Attempt{
		RequestID:  "req-1",
		AttemptSeq: 1,
		ModelID:    "gpt-4",
		Provider:   "openai",
		Status:     models.AttemptStreaming,
		StartedAt:  time.Now(),
	}))

	n, err := w.CountAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCopyBatchIsIdempotentUnderOverlap(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	batch := []models.Token{
		{RequestID: "req-1", AttemptSeq: 1, TokenIndex: 0, ModelID: "gpt-4", Text: "a", Ts: time.Now()},
		{RequestID: "req-1", AttemptSeq: 1, TokenIndex: 1, ModelID: "gpt-4", Text: "b", Ts: time.Now()},
	}

	assert.Equal(t, dbwriter.OK, w.CopyBatch(ctx, batch))
	assert.Equal(t, dbwriter.OK, w.CopyBatch(ctx, batch))

	rows, err := w.FindGaps(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindGapsDetectsMissingIndex(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	batch := []models.Token{
		{RequestID: "req-2", AttemptSeq: 1, TokenIndex: 0, ModelID: "gpt-4", Text: "a", Ts: time.Now()},
		{RequestID: "req-2", AttemptSeq: 1, TokenIndex: 2, ModelID: "gpt-4", Text: "c", Ts: time.Now()},
	}
	require.Equal(t, dbwriter.OK, w.CopyBatch(ctx, batch))

	findings, err := w.FindGaps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "req-2", findings[0].RequestID)
	assert.Equal(t, 0, findings[0].PrevIndex)
	assert.Equal(t, 2, findings[0].CurrIndex)
}

func TestUpsertRequestTwiceUpdatesExistingRow(t *testing.T) {
	w := openTestWriter(t)
	ctx := context.Background()

	require.NoError(t, w.UpsertRequest(ctx, models.Request{
		RequestID: "req-3",
		Prompt:    "hello",
		Status:    models.RequestRunning,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, w.UpsertRequest(ctx, models.Request{
		RequestID: "req-3",
		Prompt:    "hello",
		Status:    models.RequestCompleted,
		CreatedAt: time.Now(),
	}))
}

func TestPingReportsHealth(t *testing.T) {
	w := openTestWriter(t)
	assert.True(t, w.Ping(context.Background()))
}
