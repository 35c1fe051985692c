package fallback_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/fallback"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

func TestNextSkipsAlreadyTried(t *testing.T) {
	p := fallback.New(nil)

	first, ok := p.Next(nil)
	require.True(t, ok)
	assert.Equal(t, fallback.DefaultChain[0], first)

	second, ok := p.Next([]models.ModelChoice{first})
	require.True(t, ok)
	assert.Equal(t, fallback.DefaultChain[1], second)
}

func TestNextExhaustsChain(t *testing.T) {
	chain := []models.ModelChoice{{Provider: "openai", Model: "gpt-3.5-turbo"}}
	p := fallback.New(chain)

	_, ok := p.Next(chain)
	assert.False(t, ok)
}

func TestJitterRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := fallback.Jitter(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJitterCompletesWithinBound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	start := time.Now()
	err := fallback.Jitter(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.LessOrEqual(t, elapsed, 3500*time.Millisecond)
}
