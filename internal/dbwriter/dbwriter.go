// Package dbwriter implements a batched, idempotent database writer on
// top of database/sql and mattn/go-sqlite3.
package dbwriter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

// Outcome classifies the result of a batch write.
type Outcome int

const (
	OK Outcome = iota
	DbRetryable
	DbUnavailable
	FatalDisk
)

// Writer owns the connection pool and schema.
type Writer struct {
	db *sql.DB
}

func Open(path string) (*Writer, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("dbwriter: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver: one writer connection avoids SQLITE_BUSY under our own concurrency
	w := &Writer{db: db}
	if err := w.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			request_id TEXT NOT NULL,
			attempt_seq INTEGER NOT NULL,
			model_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			error_kind TEXT,
			PRIMARY KEY (request_id, attempt_seq)
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			request_id TEXT NOT NULL,
			attempt_seq INTEGER NOT NULL,
			token_index INTEGER NOT NULL,
			model_id TEXT NOT NULL,
			text TEXT NOT NULL,
			ts TEXT NOT NULL,
			PRIMARY KEY (request_id, attempt_seq, token_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_ts ON tokens(ts)`,
	}
	for _, s := range stmts {
		if _, err := w.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("dbwriter: migrate: %w", err)
		}
	}
	return nil
}

func (w *Writer) Close() error { return w.db.Close() }

// Ping is the cheap health check backing Persistence.DbIsUp.
func (w *Writer) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return w.db.PingContext(ctx) == nil
}

// CopyBatch bulk-inserts batch using INSERT OR IGNORE so a replay batch
// overlapping a late live insert is idempotent. It retries transient
// serialization conflicts up to 3 times with an immediate re-attempt
// before giving up.
func (w *Writer) CopyBatch(ctx context.Context, batch []models.Token) Outcome {
	if len(batch) == 0 {
		return OK
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		outcome, err := w.tryCopyBatch(ctx, batch)
		if outcome != DbRetryable {
			return outcome
		}
		lastErr = err
		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("dbwriter: retrying serialization conflict")
	}
	log.WithError(lastErr).Warn("dbwriter: retry budget exhausted, treating as unavailable")
	return DbUnavailable
}

func (w *Writer) tryCopyBatch(ctx context.Context, batch []models.Token) (Outcome, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err), err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tokens
		(request_id, attempt_seq, token_index, model_id, text, ts) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return classify(err), err
	}
	defer stmt.Close()

	for _, t := range batch {
		if _, err := stmt.ExecContext(ctx, t.RequestID, t.AttemptSeq, t.TokenIndex, t.ModelID, t.Text, t.Ts.UTC().Format(time.RFC3339Nano)); err != nil {
			return classify(err), err
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err), err
	}
	return OK, nil
}

func classify(err error) Outcome {
	if err == nil {
		return OK
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return DbRetryable
	case strings.Contains(msg, "no space left"), strings.Contains(msg, "disk full"):
		return FatalDisk
	case strings.Contains(msg, "unable to open database"), strings.Contains(msg, "connection"),
		strings.Contains(msg, "closed"), errors.Is(err, sql.ErrConnDone):
		return DbUnavailable
	default:
		return DbUnavailable
	}
}

// UpsertAttempt persists the Attempt row, called by the orchestrator on
// every status transition in the attempt lifecycle.
func (w *Writer) UpsertAttempt(ctx context.Context, a models.Attempt) error {
	var ended interface{}
	if !a.EndedAt.IsZero() {
		ended = a.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	var errKind interface{}
	if a.ErrorKind != "" {
		errKind = a.ErrorKind
	}
	_, err := w.db.ExecContext(ctx, `INSERT INTO attempts
		(request_id, attempt_seq, model_id, provider, status, started_at, ended_at, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id, attempt_seq) DO UPDATE SET
			status=excluded.status, ended_at=excluded.ended_at, error_kind=excluded.error_kind`,
		a.RequestID, a.AttemptSeq, a.ModelID, a.Provider, a.Status,
		a.StartedAt.UTC().Format(time.RFC3339Nano), ended, errKind)
	return err
}

// UpsertRequest persists the Request row created by intake.
func (w *Writer) UpsertRequest(ctx context.Context, r models.Request) error {
	_, err := w.db.ExecContext(ctx, `INSERT INTO requests (request_id, prompt, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET status=excluded.status`,
		r.RequestID, r.Prompt, r.Status, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// CountAttempts backs the `attempts_total` field of the admin status
// snapshot (the persisted count, not the in-memory live count).
func (w *Writer) CountAttempts(ctx context.Context) (int64, error) {
	var n int64
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts`).Scan(&n)
	return n, err
}

// GapFinding is one (prev, curr) pair whose token_index sequence has a
// hole, surfaced by the boot-time gap scan.
type GapFinding struct {
	RequestID  string
	AttemptSeq int
	PrevIndex  int
	CurrIndex  int
}

// FindGaps scans tokens partitioned by (request_id, attempt_seq) for any
// pair of consecutive indices that are not exactly 1 apart, reporting
// the first limit findings.
func (w *Writer) FindGaps(ctx context.Context, limit int) ([]GapFinding, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT request_id, attempt_seq, token_index,
			LAG(token_index) OVER (PARTITION BY request_id, attempt_seq ORDER BY token_index) AS prev_index
		FROM tokens
		ORDER BY request_id, attempt_seq, token_index`)
	if err != nil {
		return nil, fmt.Errorf("dbwriter: gap scan: %w", err)
	}
	defer rows.Close()

	var findings []GapFinding
	for rows.Next() {
		var requestID string
		var attemptSeq, curr int
		var prev sql.NullInt64
		if err := rows.Scan(&requestID, &attemptSeq, &curr, &prev); err != nil {
			return nil, err
		}
		if !prev.Valid {
			continue
		}
		if curr != int(prev.Int64)+1 {
			findings = append(findings, GapFinding{
				RequestID:  requestID,
				AttemptSeq: attemptSeq,
				PrevIndex:  int(prev.Int64),
				CurrIndex:  curr,
			})
			if len(findings) >= limit {
				break
			}
		}
	}
	return findings, rows.Err()
}
