package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/NotEclipsed/jira-dashboard/internal/logging"
)

// patternFile is the on-disk shape of extra detectors:
//
//	[[pattern]]
//	type   = "employee_id"
//	label  = "Employee ID"
//	regex  = 'EMP-\d{6}'
//	weight = 0.6
//	luhn   = false
type patternFile struct {
	Pattern []patternSpec `toml:"pattern"`
}

type patternSpec struct {
	Type   string  `toml:"type"`
	Label  string  `toml:"label"`
	Regex  string  `toml:"regex"`
	Weight float64 `toml:"weight"`
	Luhn   bool    `toml:"luhn"`
}

var typeName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// LoadPatternFile parses extra detectors from a TOML file. The whole file is
// rejected if any entry is invalid.
func LoadPatternFile(path string) ([]Detector, error) {
	var pf patternFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("scanner: parse %s: %w", path, err)
	}

	ds := make([]Detector, 0, len(pf.Pattern))
	for i, p := range pf.Pattern {
		if !typeName.MatchString(p.Type) {
			return nil, fmt.Errorf("scanner: pattern %d: type %q must be lower_snake_case", i, p.Type)
		}
		if p.Weight <= 0 || p.Weight > 1 {
			return nil, fmt.Errorf("scanner: pattern %d (%s): weight must be in (0, 1]", i, p.Type)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("scanner: pattern %d (%s): %w", i, p.Type, err)
		}
		if re.MatchString("") {
			return nil, fmt.Errorf("scanner: pattern %d (%s): regex matches empty text", i, p.Type)
		}
		label := p.Label
		if label == "" {
			label = strings.ReplaceAll(p.Type, "_", " ")
		}
		d := Detector{Type: p.Type, Label: label, Pattern: re, Weight: p.Weight}
		if p.Luhn {
			d.Validate = validCardNumber
		}
		ds = append(ds, d)
	}
	return ds, nil
}

const reloadDebounce = 200 * time.Millisecond

// WatchPatternFile loads path into s and reloads it whenever the file changes.
// A reload that fails to parse keeps the previous detectors. The watch stops
// when ctx is cancelled.
func WatchPatternFile(ctx context.Context, s *Scanner, path string, log logging.Logger) error {
	ds, err := LoadPatternFile(path)
	if err != nil {
		return err
	}
	s.SetExtra(ds)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scanner: watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("scanner: watch %s: %w", path, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				ds, err := LoadPatternFile(path)
				if err != nil {
					log.Warn(ctx, "pattern file reload rejected", "path", path, "error", err.Error())
					continue
				}
				s.SetExtra(ds)
				log.Info(ctx, "pattern file reloaded", "path", path, "patterns", len(ds))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn(ctx, "pattern file watcher error", "error", err.Error())
			}
		}
	}()
	return nil
}
