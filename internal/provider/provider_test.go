package provider_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/provider"
)

func TestClassifyHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   corerr.Kind
	}{
		{http.StatusTooManyRequests, corerr.KindRateLimit},
		{http.StatusRequestTimeout, corerr.KindTimeout},
		{http.StatusGatewayTimeout, corerr.KindTimeout},
		{http.StatusBadRequest, corerr.KindFatal},
		{http.StatusUnauthorized, corerr.KindFatal},
		{http.StatusInternalServerError, corerr.KindProviderDown},
		{http.StatusServiceUnavailable, corerr.KindProviderDown},
	}
	for _, tc := range cases {
		err := &provider.HTTPStatusError{StatusCode: tc.status}
		assert.Equal(t, tc.want, provider.ClassifyHTTP(err), "status %d", tc.status)
	}
}

func TestClassifyHTTPContextErrors(t *testing.T) {
	assert.Equal(t, corerr.KindTimeout, provider.ClassifyHTTP(context.DeadlineExceeded))
	assert.Equal(t, corerr.KindCancelled, provider.ClassifyHTTP(context.Canceled))
}

func TestClassifyHTTPNetError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.Equal(t, corerr.KindProviderDown, provider.ClassifyHTTP(err))
}

func TestClassifyHTTPNilIsFatal(t *testing.T) {
	assert.Equal(t, corerr.KindFatal, provider.ClassifyHTTP(nil))
}

func TestMockAdaptorStreamsScriptedTokens(t *testing.T) {
	m := provider.NewMockAdaptor("openai", provider.Script{Tokens: []string{"a", "b", "c"}, FailAt: -1})

	var got []string
	for r := range m.Stream(context.Background(), "gpt-4", "hi") {
		if r.Done {
			break
		}
		got = append(got, r.Text)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 1, m.Calls())
}

func TestMockAdaptorFailsMidStream(t *testing.T) {
	failErr := errors.New("boom")
	m := provider.NewMockAdaptor("openai", provider.Script{
		Tokens: []string{"a", "b"}, FailAt: 1, Err: failErr, ClassifyAs: corerr.KindProviderDown,
	})

	var got []string
	var streamErr error
	for r := range m.Stream(context.Background(), "gpt-4", "hi") {
		if r.Err != nil {
			streamErr = r.Err
			break
		}
		got = append(got, r.Text)
	}
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, failErr, streamErr)
	assert.Equal(t, corerr.KindProviderDown, m.Classify(streamErr))
}

func TestMockAdaptorExhaustedScriptsReturnProviderDown(t *testing.T) {
	m := provider.NewMockAdaptor("openai", provider.Script{Tokens: []string{"a"}, FailAt: -1})

	drain := func() {
		for r := range m.Stream(context.Background(), "gpt-4", "hi") {
			_ = r
		}
	}
	drain()

	var lastErr error
	for r := range m.Stream(context.Background(), "gpt-4", "hi") {
		if r.Err != nil {
			lastErr = r.Err
		}
	}
	assert.Error(t, lastErr)
	assert.Equal(t, corerr.KindProviderDown, m.Classify(lastErr))
}
