// Package scanner is a heuristic detector for personal and health data in
// free text and JSON payloads. It is a safety net, not a compliance control.
package scanner

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Finding locates one match. Offsets are byte offsets into the normalized
// text of Field.
type Finding struct {
	Type   string  `json:"type"`
	Label  string  `json:"label"`
	Field  string  `json:"field,omitempty"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Weight float64 `json:"weight"`
}

type Result struct {
	HasMatch   bool
	Findings   []Finding
	Confidence float64
}

// Types returns the distinct finding types, sorted.
func (r Result) Types() []string {
	seen := map[string]struct{}{}
	for _, f := range r.Findings {
		seen[f.Type] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Counts returns one {type, count} record per finding type, sorted by type.
func (r Result) Counts() []map[string]any {
	counts := map[string]int{}
	for _, f := range r.Findings {
		counts[f.Type]++
	}
	out := make([]map[string]any, 0, len(counts))
	for _, t := range r.Types() {
		out = append(out, map[string]any{"type": t, "count": counts[t]})
	}
	return out
}

// Fields returns the distinct field paths that matched, sorted.
func (r Result) Fields() []string {
	seen := map[string]struct{}{}
	for _, f := range r.Findings {
		if f.Field != "" {
			seen[f.Field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

var hintWords = []string{"medical", "patient", "clinical"}

const (
	repeatBonus = 0.1
	hintFactor  = 1.2
)

type Scanner struct {
	mu       sync.RWMutex
	builtins []Detector
	extra    []Detector
}

type Option func(*Scanner)

// WithEmail enables the low-weight email detector.
func WithEmail(enabled bool) Option {
	return func(s *Scanner) {
		s.builtins = DefaultDetectors(enabled)
	}
}

// WithDetectors appends custom detectors after the built-ins.
func WithDetectors(ds ...Detector) Option {
	return func(s *Scanner) {
		s.extra = append(s.extra, ds...)
	}
}

func New(opts ...Option) *Scanner {
	s := &Scanner{builtins: DefaultDetectors(false)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetExtra replaces the custom detectors, e.g. after a pattern file reload.
func (s *Scanner) SetExtra(ds []Detector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = append([]Detector(nil), ds...)
}

func (s *Scanner) detectors() []Detector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Detector, 0, len(s.builtins)+len(s.extra))
	out = append(out, s.builtins...)
	return append(out, s.extra...)
}

// Normalize applies NFKC so width and compatibility variants (for example
// full-width digits) match the ASCII patterns.
func Normalize(text string) string {
	return norm.NFKC.String(text)
}

// Scan inspects one string. A hint mentioning medical, patient or clinical
// context raises the confidence.
func (s *Scanner) Scan(text string, hints ...string) Result {
	findings := s.findings(Normalize(text), "")
	return newResult(findings, hasHint(hints))
}

func (s *Scanner) findings(normalized, field string) []Finding {
	var out []Finding
	for _, d := range s.detectors() {
		for _, loc := range d.Pattern.FindAllStringIndex(normalized, -1) {
			if d.Validate != nil && !d.Validate(normalized[loc[0]:loc[1]]) {
				continue
			}
			out = append(out, Finding{
				Type:   d.Type,
				Label:  d.Label,
				Field:  field,
				Start:  loc[0],
				End:    loc[1],
				Weight: d.Weight,
			})
		}
	}
	return out
}

func newResult(findings []Finding, hinted bool) Result {
	if len(findings) == 0 {
		return Result{}
	}
	return Result{HasMatch: true, Findings: findings, Confidence: confidence(findings, hinted)}
}

// confidence sums one weight per distinct type, adds a small bonus for each
// repeat of a type, and scales up for a domain hint. Capped at 1.
func confidence(findings []Finding, hinted bool) float64 {
	weights := map[string]float64{}
	counts := map[string]int{}
	for _, f := range findings {
		if f.Weight > weights[f.Type] {
			weights[f.Type] = f.Weight
		}
		counts[f.Type]++
	}
	score := 0.0
	for t, w := range weights {
		score += w + repeatBonus*float64(counts[t]-1)
	}
	if hinted {
		score *= hintFactor
	}
	if score > 1 {
		score = 1
	}
	return score
}

func hasHint(hints []string) bool {
	for _, h := range hints {
		lower := strings.ToLower(h)
		for _, w := range hintWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// ScanObject walks maps and slices decoded from JSON and scans every string,
// recording the path of each finding (for example "body.comment").
func (s *Scanner) ScanObject(v any, root string, hints ...string) Result {
	var findings []Finding
	walk(v, root, func(path, value string) {
		findings = append(findings, s.findings(Normalize(value), path)...)
	})
	return newResult(findings, hasHint(hints))
}

func walk(v any, path string, visit func(path, value string)) {
	switch val := v.(type) {
	case string:
		visit(path, val)
	case json.Number:
		visit(path, val.String())
	case map[string]any:
		for k, item := range val {
			walk(item, joinPath(path, k), visit)
		}
	case []any:
		for i, item := range val {
			walk(item, indexPath(path, i), visit)
		}
	case map[string]string:
		for k, item := range val {
			visit(joinPath(path, k), item)
		}
	case []string:
		for i, item := range val {
			visit(indexPath(path, i), item)
		}
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
