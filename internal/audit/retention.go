package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweep archives and removes day files older than the retention window. The
// file currently open for writing is never touched.
func (t *Trail) Sweep(ctx context.Context) (int, error) {
	if t.cfg.Retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(t.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("audit: list directory: %w", err)
	}

	cutoff := t.cfg.Now().UTC().Add(-t.cfg.Retention)
	removed := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		day, ok := parseDayFile(de.Name())
		if !ok || !day.Add(24*time.Hour).Before(cutoff) {
			continue
		}
		if t.isOpenDay(day) {
			continue
		}
		if err := t.expire(ctx, de.Name()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartRetention runs Sweep on every tick until ctx is cancelled.
func (t *Trail) StartRetention(ctx context.Context, interval time.Duration) {
	if t.cfg.Retention <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := t.Sweep(ctx)
				if err != nil {
					t.log.Error(ctx, "audit retention sweep failed", "error", err.Error())
					continue
				}
				if n > 0 {
					t.log.Info(ctx, "audit retention sweep", "archived", n)
				}
			}
		}
	}()
}

func (t *Trail) expire(ctx context.Context, name string) error {
	path := filepath.Join(t.cfg.Dir, name)
	if t.cfg.Archiver != nil {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("audit: open %s: %w", name, err)
		}
		err = t.cfg.Archiver.Archive(ctx, name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("audit: archive %s: %w", name, err)
		}
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("audit: remove %s: %w", name, err)
	}
	return nil
}

func (t *Trail) isOpenDay(day time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file != nil && t.day == day.Format(dayLayout)
}

func parseDayFile(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	day, err := time.Parse(dayLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
