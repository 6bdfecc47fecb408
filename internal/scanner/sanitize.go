package scanner

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"
)

// MaskMode selects how matched spans are rewritten.
type MaskMode int

const (
	// MaskSameLength replaces every letter and digit in a span with '*' and
	// keeps separators, so the text keeps its shape.
	MaskSameLength MaskMode = iota
	// MaskToken replaces the whole span with [REDACTED:<TYPE>].
	MaskToken
)

func ParseMaskMode(s string) MaskMode {
	if strings.EqualFold(s, "token") {
		return MaskToken
	}
	return MaskSameLength
}

type span struct {
	start, end int
	typ        string
	weight     float64
}

// Sanitize masks every finding in text. Text without findings is returned
// unchanged; otherwise the NFKC-normalized text is rewritten.
func (s *Scanner) Sanitize(text string, mode MaskMode) string {
	normalized := Normalize(text)
	findings := s.findings(normalized, "")
	if len(findings) == 0 {
		return text
	}
	return applyMasks(normalized, mergeSpans(findings), mode)
}

// SanitizeObject returns a copy of v with every string value sanitized.
func (s *Scanner) SanitizeObject(v any, mode MaskMode) any {
	switch val := v.(type) {
	case string:
		return s.Sanitize(val, mode)
	case json.Number:
		// A masked number is no longer numeric, so it goes back as a string.
		if clean := s.Sanitize(val.String(), mode); clean != val.String() {
			return clean
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = s.SanitizeObject(item, mode)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.SanitizeObject(item, mode)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = s.Sanitize(item, mode)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = s.Sanitize(item, mode)
		}
		return out
	default:
		return v
	}
}

// mergeSpans sorts findings and folds overlapping ones together. A merged span
// keeps the type of its heaviest member.
func mergeSpans(findings []Finding) []span {
	spans := make([]span, 0, len(findings))
	for _, f := range findings {
		spans = append(spans, span{start: f.Start, end: f.End, typ: f.Type, weight: f.Weight})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start < last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			if sp.weight > last.weight {
				last.typ = sp.typ
				last.weight = sp.weight
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

func applyMasks(text string, spans []span, mode MaskMode) string {
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		switch mode {
		case MaskToken:
			b.WriteString("[REDACTED:")
			b.WriteString(strings.ToUpper(sp.typ))
			b.WriteString("]")
		default:
			for _, r := range text[sp.start:sp.end] {
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					b.WriteByte('*')
					continue
				}
				b.WriteRune(r)
			}
		}
		prev = sp.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
