package models

import "time"

// AttemptStatus is the lifecycle state of a single streaming session
// against one model for one request.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptStreaming AttemptStatus = "streaming"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptFallback  AttemptStatus = "fallback"
)

// RequestStatus is the lifecycle state of the overall comparison request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// ModelChoice names one provider/model pair the caller asked to compare.
type ModelChoice struct {
	Provider string `json:"provider"` // "openai", "anthropic", "google", "deepseek"
	Model    string `json:"model"`    // e.g. "gpt-4"
}

// Request is the persistent record created by intake before the first
// attempt. The core does not mutate it: no terminal status is written
// back to the Request row when its attempts end.
type Request struct {
	RequestID string        `json:"request_id"`
	Prompt    string        `json:"prompt"`
	Models    []ModelChoice `json:"models"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Attempt is the persistent record of one streaming session against a
// single model for one request. Every Token whose (RequestID,
// AttemptSeq) matches an Attempt row must have a matching row here.
type Attempt struct {
	RequestID  string        `json:"request_id"`
	AttemptSeq int           `json:"attempt_seq"`
	ModelID    string        `json:"model_id"`
	Provider   string        `json:"provider"`
	Status     AttemptStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
}

// Token is the value object streamed out of one provider attempt. The
// tuple (RequestID, AttemptSeq, TokenIndex) is the primary key in
// persistent storage; inserts are idempotent under that key.
type Token struct {
	RequestID  string    `json:"request_id"`
	AttemptSeq int       `json:"attempt_seq"`
	TokenIndex int       `json:"token_index"`
	ModelID    string    `json:"model_id"`
	Text       string    `json:"text"`
	Ts         time.Time `json:"ts"`
}

// Outcome is the trailing status marker a streaming request ends with,
// mirrored onto the persisted Attempt's ErrorKind field.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeProviderDown      Outcome = "provider_down"
	OutcomeExhausted         Outcome = "exhausted"
	OutcomeFatal             Outcome = "fatal"
	OutcomeCancelled         Outcome = "cancelled"
	OutcomePersistenceFailed Outcome = "persistence_failed"
)
