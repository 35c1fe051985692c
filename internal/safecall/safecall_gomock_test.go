package safecall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/breaker"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gate"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/provider"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/provider/providermock"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/safecall"
)

func streamOf(texts ...string) <-chan provider.Raw {
	ch := make(chan provider.Raw, len(texts)+1)
	for _, text := range texts {
		ch <- provider.Raw{Text: text}
	}
	ch <- provider.Raw{Done: true}
	close(ch)
	return ch
}

func TestCallStopsAtExactlyOneAdaptorInvocationOnSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	adaptor := providermock.NewMockAdaptor(ctrl)
	adaptor.EXPECT().
		Stream(gomock.Any(), "gpt-4", "hi").
		Return(streamOf("a", "b")).
		Times(1)

	c := safecall.New(breaker.New(3, time.Second), gate.New(func(string) int { return 2 }),
		map[string]provider.Adaptor{"openai": adaptor}, func(string) string { return "openai" })

	texts, err := drain(t, c.Call(context.Background(), "gpt-4", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, texts)
}

func TestCallRetriesExactlyTheExpectedNumberOfTimes(t *testing.T) {
	ctrl := gomock.NewController(t)
	adaptor := providermock.NewMockAdaptor(ctrl)
	rateLimitErr := &provider.HTTPStatusError{StatusCode: 429}

	first := make(chan provider.Raw, 1)
	first <- provider.Raw{Err: rateLimitErr}
	close(first)

	gomock.InOrder(
		adaptor.EXPECT().Stream(gomock.Any(), "gpt-4", "hi").Return((<-chan provider.Raw)(first)),
		adaptor.EXPECT().Stream(gomock.Any(), "gpt-4", "hi").Return(streamOf("ok")),
	)
	adaptor.EXPECT().Classify(rateLimitErr).Return(corerr.KindRateLimit).AnyTimes()

	c := safecall.New(breaker.New(3, time.Second), gate.New(func(string) int { return 2 }),
		map[string]provider.Adaptor{"openai": adaptor}, func(string) string { return "openai" })

	texts, err := drain(t, c.Call(context.Background(), "gpt-4", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, texts)
}
