package persistence_test

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
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

func newService(t *testing.T) (*persistence.Service, *dbwriter.Writer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.db")
	db, err := dbwriter.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	w := wal.New(afero.NewMemMapFs(), "tokens.wal")
	return persistence.New(db, w, 1<<20), db
}

func TestPersistWritesToDBWhenHealthy(t *testing.T) {
	svc, db := newService(t)

	batch := []models.Token{{RequestID: "req-1", AttemptSeq: 1, TokenIndex: 0, ModelID: "gpt-4", Text: "hi", Ts: time.Now()}}
	result, err := svc.Persist(context.Background(), batch)

	require.NoError(t, err)
	assert.Equal(t, persistence.OK, result)
	assert.False(t, svc.LastDBWriteTs().IsZero())

	n, err := db.CountAttempts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersistFallsBackToWALWhenDBClosed(t *testing.T) {
	svc, db := newService(t)
	require.NoError(t, db.Close())

	batch := []models.Token{{RequestID: "req-2", AttemptSeq: 1, TokenIndex: 0, ModelID: "gpt-4", Text: "hi", Ts: time.Now()}}
	result, err := svc.Persist(context.Background(), batch)

	assert.Equal(t, persistence.Deferred, result)
	assert.Error(t, err)
}

func TestMarkDBWriteOnlyAdvances(t *testing.T) {
	svc, _ := newService(t)

	later := time.Now()
	earlier := later.Add(-time.Hour)

	svc.MarkDBWrite(later)
	svc.MarkDBWrite(earlier)

	assert.Equal(t, later, svc.LastDBWriteTs())
}
