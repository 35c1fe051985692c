package corerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := corerr.ProviderDown(cause)

	assert.True(t, corerr.Is(err, corerr.KindProviderDown))
	assert.False(t, corerr.Is(err, corerr.KindTimeout))
	assert.ErrorIs(t, err, cause)
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, corerr.Is(errors.New("boom"), corerr.KindFatal))
}

func TestQualifyingKinds(t *testing.T) {
	assert.True(t, corerr.KindTimeout.Qualifying())
	assert.True(t, corerr.KindRateLimit.Qualifying())
	assert.True(t, corerr.KindProviderDown.Qualifying())
	assert.False(t, corerr.KindFatal.Qualifying())
	assert.False(t, corerr.KindCancelled.Qualifying())
	assert.False(t, corerr.KindGenerationExhausted.Qualifying())
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := corerr.Timeout(errors.New("deadline exceeded"))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := corerr.Fatal(nil)
	assert.Equal(t, "fatal", err.Error())
}
