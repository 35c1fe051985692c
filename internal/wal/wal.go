// Package wal implements an append-only write-ahead log: the durable
// fallback medium used when the database is unreachable.
//
// File I/O goes through afero.Fs so tests can exercise rotation and
// truncation against an in-memory filesystem instead of touching disk.
package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/models"
)

// line is the compact on-disk representation of one token record.
type line struct {
	R  string `json:"r"`
	A  int    `json:"a"`
	I  int    `json:"i"`
	M  string `json:"m"`
	T  string `json:"t"`
	TS string `json:"ts"`
}

func toLine(t models.Token) line {
	return line{
		R:  t.RequestID,
		A:  t.AttemptSeq,
		I:  t.TokenIndex,
		M:  t.ModelID,
		T:  strings.ReplaceAll(t.Text, "\n", " "),
		TS: t.Ts.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func fromLine(l line) (models.Token, error) {
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", l.TS)
	if err != nil {
		return models.Token{}, fmt.Errorf("parse wal timestamp: %w", err)
	}
	return models.Token{
		RequestID:  l.R,
		AttemptSeq: l.A,
		TokenIndex: l.I,
		ModelID:    l.M,
		Text:       l.T,
		Ts:         ts,
	}, nil
}

// WAL is the process-wide append-only log. All writes are serialised
// under mu, keeping each write confined to a short critical section.
type WAL struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func New(fs afero.Fs, path string) *WAL {
	return &WAL{fs: fs, path: path}
}

// Append writes every token of batch as one line each, fsyncs, and
// returns only once the data has reached the filesystem.
func (w *WAL) Append(batch []models.Token) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.fs.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	for _, t := range batch {
		b, err := json.Marshal(toLine(t))
		if err != nil {
			return fmt.Errorf("wal: marshal: %w", err)
		}
		if _, err := bw.Write(b); err != nil {
			return fmt.Errorf("wal: write: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("wal: write newline: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("wal: fsync: %w", err)
		}
	}
	return nil
}

// ReadLines returns every token currently on disk, in append order. The
// result is a plain slice rather than a streaming iterator: WAL files
// are bounded by rotation, so holding one file's contents in memory
// during replay is acceptable.
func (w *WAL) ReadLines() ([]models.Token, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.fs.Open(w.path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: open for read: %w", err)
	}
	defer f.Close()

	var tokens []models.Token
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("wal: corrupt line: %w", err)
		}
		tok, err := fromLine(l)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wal: scan: %w", err)
	}
	return tokens, nil
}

// Truncate removes all WAL content. Only called after ReadLines has been
// fully drained into the database.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.fs.OpenFile(w.path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(0)
}

// Size reports the current WAL file size in bytes, used both by
// RotateIfNeeded and the status snapshot.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.fs.Stat(w.path)
	if err != nil {
		if isNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// RotateIfNeeded closes the current file, renames it to
// wal-YYYYMMDDHHMM.bak, and lets the next Append reopen a fresh file, if
// the current size is at or above limit.
func (w *WAL) RotateIfNeeded(limit int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.fs.Stat(w.path)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < limit {
		return nil
	}

	rotated := fmt.Sprintf("wal-%s.bak", time.Now().UTC().Format("200601021504"))
	return w.fs.Rename(w.path, rotated)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "file does not exist")
}
