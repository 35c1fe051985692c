package buffer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/buffer"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
)

type fakeDrainer struct {
	mu      sync.Mutex
	batches [][]models.Token
	result  persistence.Result
	err     error
}

func (d *fakeDrainer) Persist(ctx context.Context, batch []models.Token) (persistence.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]models.Token, len(batch))
	copy(cp, batch)
	d.batches = append(d.batches, cp)
	return d.result, d.err
}

func (d *fakeDrainer) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func tok(idx int) models.Token {
	return models.Token{RequestID: "req-1", AttemptSeq: 1, TokenIndex: idx, ModelID: "gpt-4", Text: "x"}
}

func TestAddFlushesOnSizeTrigger(t *testing.T) {
	d := &fakeDrainer{result: persistence.OK}
	b := buffer.New("req-1", 1, 2, time.Hour, d)

	require.NoError(t, b.Add(context.Background(), tok(0)))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 0, d.batchCount())

	require.NoError(t, b.Add(context.Background(), tok(1)))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, d.batchCount())
}

func TestAddFlushesOnAgeTrigger(t *testing.T) {
	d := &fakeDrainer{result: persistence.OK}
	b := buffer.New("req-1", 1, 100, 5*time.Millisecond, d)

	require.NoError(t, b.Add(context.Background(), tok(0)))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Add(context.Background(), tok(1)))

	assert.Equal(t, 1, d.batchCount())
}

func TestAgeTimerFlushesStaleSingleTokenWithoutFurtherAdd(t *testing.T) {
	d := &fakeDrainer{result: persistence.OK}
	b := buffer.New("req-1", 1, 100, 5*time.Millisecond, d)

	require.NoError(t, b.Add(context.Background(), tok(0)))
	assert.Equal(t, 1, b.Len())

	require.Eventually(t, func() bool {
		return d.batchCount() == 1
	}, 200*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, b.Len())
}

func TestDrainAllFlushesPartialBuffer(t *testing.T) {
	d := &fakeDrainer{result: persistence.OK}
	b := buffer.New("req-1", 1, 100, time.Hour, d)

	require.NoError(t, b.Add(context.Background(), tok(0)))
	require.NoError(t, b.DrainAll(context.Background()))

	assert.Equal(t, 1, d.batchCount())
	assert.Equal(t, 0, b.Len())
}

func TestFatalDrainPoisonsBuffer(t *testing.T) {
	d := &fakeDrainer{result: persistence.Fatal, err: errors.New("disk full")}
	b := buffer.New("req-1", 1, 1, time.Hour, d)

	err := b.Add(context.Background(), tok(0))
	require.Error(t, err)

	err = b.Add(context.Background(), tok(1))
	assert.Error(t, err)
}

func TestAddRespectsCancellationWhileSuspended(t *testing.T) {
	blocking := make(chan struct{})
	d := &blockingDrainer{release: blocking, entered: make(chan struct{}, 1), result: persistence.OK}
	b := buffer.New("req-1", 1, 1, time.Hour, d)

	firstDone := make(chan error, 1)
	go func() { firstDone <- b.Add(context.Background(), tok(0)) }()
	<-d.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := b.Add(ctx, tok(1))
	assert.Error(t, err)

	close(blocking)
	require.NoError(t, <-firstDone)
}

type blockingDrainer struct {
	release chan struct{}
	entered chan struct{}
	result  persistence.Result
}

func (d *blockingDrainer) Persist(ctx context.Context, batch []models.Token) (persistence.Result, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	<-d.release
	return d.result, nil
}
