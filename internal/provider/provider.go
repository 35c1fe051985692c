// Package provider adapts vendor-specific streaming completions behind a
// single contract: a lazy, finite sequence of raw token strings, plus a
// deterministic classification of whatever error ends the stream.
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/corerr"
)

// Raw is one token pulled off a provider stream, paired with a possible
// terminal error. A zero value with Err == nil and Done == true marks a
// clean end of stream.
type Raw struct {
	Text string
	Done bool
	Err  error
}

// Adaptor exposes a uniform, single-shot streaming contract per model.
// Implementations must not be restartable: retry is handled above them,
// in internal/safecall, by opening a fresh stream.
type Adaptor interface {
	// Stream begins a single-shot stream of raw tokens for prompt against
	// model. The returned channel is closed exactly once, after the
	// final Raw (which carries Done or a non-nil Err) has been sent; on
	// ctx cancellation that final Raw's Err wraps the context error.
	Stream(ctx context.Context, model, prompt string) <-chan Raw

	// Classify maps a vendor-specific error into the shared corerr.Kind
	// vocabulary.
	Classify(err error) corerr.Kind
}

// HTTPStatusError is the minimal vendor error shape adaptors normalise
// their transport errors into before classification; concrete vendor
// clients wrap their SDK errors into this.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "http status error"
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }

// ClassifyHTTP maps well-known HTTP statuses and transport failures to a
// corerr.Kind. Concrete adaptors call this from their Classify
// implementation after normalising their vendor error into an
// *HTTPStatusError or a raw net error.
func ClassifyHTTP(err error) corerr.Kind {
	if err == nil {
		return corerr.KindFatal
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode != 0 {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			return corerr.KindRateLimit
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return corerr.KindTimeout
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return corerr.KindFatal
		default:
			if statusErr.StatusCode >= 500 {
				return corerr.KindProviderDown
			}
			return corerr.KindFatal
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return corerr.KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return corerr.KindProviderDown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return corerr.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return corerr.KindCancelled
	}

	return corerr.KindProviderDown
}

// ProviderOf looks model up in the caller-supplied model -> provider
// table known, reporting false when the model is not in it. It does not
// consult fallback.DefaultChain or any Request itself; safecall takes
// its own providerOf function instead of calling this helper.
func ProviderOf(known map[string]string, model string) (string, bool) {
	p, ok := known[model]
	return p, ok
}
