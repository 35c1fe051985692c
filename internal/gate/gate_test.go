package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gate"
)

func TestConcurrencyBoundNeverExceeded(t *testing.T) {
	g := gate.New(func(string) int { return 3 })

	var active atomic.Int64
	var maxActive atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), "openai", false)
			require.NoError(t, err)
			defer release()

			cur := active.Add(1)
			for {
				m := maxActive.Load()
				if cur <= m || maxActive.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxActive.Load(), int64(3))
}

func TestProbeSkipsGate(t *testing.T) {
	g := gate.New(func(string) int { return 1 })

	release, err := g.Acquire(context.Background(), "openai", false)
	require.NoError(t, err)
	defer release()

	probeRelease, err := g.Acquire(context.Background(), "openai", true)
	require.NoError(t, err)
	probeRelease()

	assert.Equal(t, int64(1), g.Inflight("openai"))
}

func TestAcquireRespectsCancellation(t *testing.T) {
	g := gate.New(func(string) int { return 1 })
	release, err := g.Acquire(context.Background(), "openai", false)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "openai", false)
	require.Error(t, err)
}
