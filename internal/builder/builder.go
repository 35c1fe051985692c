// Package builder implements the per-attempt token builder: a simple,
// non-blocking monotonic index stamp.
package builder

import (
	"time"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

// Builder holds the per-attempt counter. It is not safe for concurrent
// use by design: each attempt owns exactly one Builder, fed from its
// single stream-consuming goroutine.
type Builder struct {
	requestID  string
	attemptSeq int
	modelID    string
	next       int
}

func New(requestID string, attemptSeq int, modelID string) *Builder {
	return &Builder{requestID: requestID, attemptSeq: attemptSeq, modelID: modelID}
}

// Build stamps raw into a Token with the next monotonic index. It never
// blocks.
func (b *Builder) Build(raw string) models.Token {
	t := models.Token{
		RequestID:  b.requestID,
		AttemptSeq: b.attemptSeq,
		TokenIndex: b.next,
		ModelID:    b.modelID,
		Text:       raw,
		Ts:         time.Now().UTC(),
	}
	b.next++
	return t
}

// NextIndex exposes the counter for tests and invariant checks.
func (b *Builder) NextIndex() int { return b.next }
