package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const maxLineSize = 1 << 20

type Filter struct {
	Type    EventType
	ActorID string
	// Limit keeps the most recent N matching entries. Zero means no limit.
	Limit int
}

type VerifiedEntry struct {
	Entry
	Valid bool `json:"valid"`
}

// Read returns the entries of one UTC day, each checked against its digest.
// A missing file yields an empty result.
func (t *Trail) Read(ctx context.Context, day time.Time, filter Filter) ([]VerifiedEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.pathFor(day.UTC().Format(dayLayout)))
	if errors.Is(err, os.ErrNotExist) {
		return []VerifiedEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open day file: %w", err)
	}
	defer f.Close()

	out := []VerifiedEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry Entry
		dec := json.NewDecoder(bytes.NewReader(line))
		// Numbers stay as their literal text so the digest input is unchanged.
		dec.UseNumber()
		if err := dec.Decode(&entry); err != nil {
			if filter.Type == "" && filter.ActorID == "" {
				out = append(out, VerifiedEntry{Valid: false})
			}
			continue
		}
		if filter.Type != "" && entry.EventType != filter.Type {
			continue
		}
		if filter.ActorID != "" && entry.Actor.UserID != filter.ActorID {
			continue
		}
		out = append(out, VerifiedEntry{Entry: entry, Valid: t.Verify(entry)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read day file: %w", err)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}
