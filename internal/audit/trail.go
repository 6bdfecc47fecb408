package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NotEclipsed/jira-dashboard/internal/logging"
)

const (
	filePrefix = "audit-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

type Config struct {
	Dir    string
	Secret []byte
	// Retention is how long daily files are kept before archiving. Zero keeps
	// files forever.
	Retention time.Duration
	// Archiver receives expired files before deletion. Nil deletes outright.
	Archiver Archiver
	// Sanitize masks sensitive substrings in string detail values.
	Sanitize func(string) string
	Logger   logging.Logger
	Now      func() time.Time
}

type Stats struct {
	Written  uint64
	Fallback uint64
}

// Trail is the file-backed Recorder. One writer at a time; the open file is
// swapped when the UTC day changes.
type Trail struct {
	cfg Config
	log logging.Logger

	mu   sync.Mutex
	file *os.File
	day  string

	written  atomic.Uint64
	fallback atomic.Uint64
}

func NewTrail(cfg Config) (*Trail, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("audit: HMAC secret is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("audit: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Trail{cfg: cfg, log: log.With("component", "audit")}, nil
}

// Record persists ev. Any failure diverts the entry to the fallback logger.
func (t *Trail) Record(ctx context.Context, ev Event) {
	entry := t.build(ctx, ev)

	line, err := t.seal(&entry)
	if err == nil {
		err = t.append(entry.Timestamp, line)
	}
	if err != nil {
		t.fallback.Add(1)
		t.log.Error(ctx, "audit write failed",
			"audit_fallback", true,
			"error", err.Error(),
			"id", entry.ID,
			"event_type", string(entry.EventType),
			"action", entry.Action,
			"result", string(entry.Result),
			"actor", entry.Actor.UserID,
			"session_id", entry.SessionID,
			"request_id", entry.RequestID,
			"details", entry.Details,
		)
		return
	}
	t.written.Add(1)
}

func (t *Trail) build(ctx context.Context, ev Event) Entry {
	meta, _ := MetaFromContext(ctx)
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: t.cfg.Now().UTC(),
		EventType: ev.Type,
		Action:    ev.Action,
		Result:    ev.Result,
		Actor:     ev.Actor,
		SessionID: firstNonEmpty(ev.SessionID, meta.SessionID),
		IPAddress: firstNonEmpty(ev.IPAddress, meta.IPAddress),
		UserAgent: firstNonEmpty(ev.UserAgent, meta.UserAgent),
		RequestID: firstNonEmpty(ev.RequestID, meta.RequestID),
		Details:   redactDetails(ev.Details, t.cfg.Sanitize),
	}
	if entry.Actor.UserID == "" {
		entry.Actor = meta.Actor
	}
	if entry.Actor.UserID == "" {
		entry.Actor = Actor{UserID: AnonymousActor}
	}
	return entry
}

func (t *Trail) seal(entry *Entry) ([]byte, error) {
	digest, err := computeDigest(t.cfg.Secret, *entry)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	entry.Digest = digest
	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return append(line, '\n'), nil
}

func (t *Trail) append(ts time.Time, line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := ts.UTC().Format(dayLayout)
	if t.file == nil || t.day != day {
		if t.file != nil {
			_ = t.file.Close()
			t.file = nil
		}
		f, err := os.OpenFile(t.pathFor(day), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		t.file = f
		t.day = day
	}
	if _, err := t.file.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Verify reports whether entry still carries the digest the trail computed
// when it was written.
func (t *Trail) Verify(entry Entry) bool {
	return verifyDigest(t.cfg.Secret, entry)
}

func (t *Trail) Stats() Stats {
	return Stats{Written: t.written.Load(), Fallback: t.fallback.Load()}
}

func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.day = ""
	return err
}

func (t *Trail) pathFor(day string) string {
	return filepath.Join(t.cfg.Dir, filePrefix+day+fileSuffix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
