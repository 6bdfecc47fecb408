package audit

import (
	"strings"
	"unicode"
)

const redacted = "[REDACTED]"

// sensitiveTokens match a single word of a detail key.
var sensitiveTokens = map[string]struct{}{
	"ssn": {}, "social": {}, "mrn": {}, "dob": {}, "birth": {}, "birthdate": {}, "birthday": {},
	"phone": {}, "mobile": {}, "telephone": {}, "email": {}, "address": {}, "street": {},
	"zip": {}, "zipcode": {}, "postal": {}, "insurance": {}, "patient": {}, "diagnosis": {},
	"condition": {}, "treatment": {}, "medication": {}, "password": {}, "secret": {},
	"token": {}, "authorization": {}, "cookie": {}, "cvv": {}, "card": {}, "name": {},
	"policy": {},
}

// sensitivePhrases match adjacent words of a detail key.
var sensitivePhrases = []string{
	"date_of_birth", "member_id", "account_number", "medical_record", "record_number",
	"policy_number", "social_security",
}

// operationalKeys are never redacted by name.
var operationalKeys = map[string]struct{}{
	"reason": {}, "user_agent": {}, "finding_types": {}, "token_type": {},
	"session_id": {}, "request_id": {},
}

// keyWords splits a detail key on '_', '-', '.', spaces and camelCase.
func keyWords(key string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// IsSensitiveKey reports whether a detail key names personal or secret data.
func IsSensitiveKey(key string) bool {
	words := keyWords(key)
	joined := strings.Join(words, "_")
	if _, ok := operationalKeys[joined]; ok {
		return false
	}
	for _, w := range words {
		if _, ok := sensitiveTokens[w]; ok {
			return true
		}
	}
	for _, phrase := range sensitivePhrases {
		if joined == phrase || strings.HasPrefix(joined, phrase+"_") ||
			strings.HasSuffix(joined, "_"+phrase) || strings.Contains(joined, "_"+phrase+"_") {
			return true
		}
	}
	return false
}

// redactDetails returns a deep copy of details with sensitive keys masked and
// string values passed through sanitize.
func redactDetails(details map[string]any, sanitize func(string) string) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if IsSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = redactValue(v, sanitize)
	}
	return out
}

func redactValue(v any, sanitize func(string) string) any {
	switch val := v.(type) {
	case string:
		if sanitize != nil {
			return sanitize(val)
		}
		return val
	case map[string]any:
		return redactDetails(val, sanitize)
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = redactDetails(m, sanitize)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item, sanitize)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = redactValue(s, sanitize)
		}
		return out
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return redactDetails(m, sanitize)
	default:
		return v
	}
}
