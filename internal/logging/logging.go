// Package logging centralises the logrus setup used across every
// component.
package logging

import (
	log "github.com/sirupsen/logrus"
)

// Init configures the shared logrus instance. Call once from each
// cmd/ entrypoint.
func Init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// WithAttempt returns a logger pre-populated with the fields that
// identify one attempt, so every log line downstream of the orchestrator
// can be grepped by request_id/attempt_seq/provider.
func WithAttempt(requestID string, attemptSeq int, provider, modelID string) *log.Entry {
	return log.WithFields(log.Fields{
		"request_id":  requestID,
		"attempt_seq": attemptSeq,
		"provider":    provider,
		"model_id":    modelID,
	})
}
