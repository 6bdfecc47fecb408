package ticket

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

const (
	MaxCommentLength  = 2000
	MaxJQLLength      = 500
	MaxSearchResults  = 100
	DefaultMaxResults = 50
	MaxTransitionID   = 9999
)

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[1-9][0-9]*$`)

func ValidateIssueKey(key string) error {
	if !issueKeyPattern.MatchString(key) {
		return autherror.ValidationField("key", "must look like PROJ-123")
	}
	return nil
}

// ValidateComment trims the body and checks its length in characters. Control
// characters other than newline, carriage return and tab are rejected.
func ValidateComment(body string) (string, error) {
	body = strings.TrimSpace(body)
	n := utf8.RuneCountInString(body)
	if n == 0 {
		return "", autherror.ValidationField("comment", "must not be empty")
	}
	if n > MaxCommentLength {
		return "", autherror.ValidationField("comment", "must be at most 2000 characters")
	}
	for _, r := range body {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return "", autherror.ValidationField("comment", "must not contain control characters")
		}
	}
	return body, nil
}

// ValidateTransitionID accepts a JSON number or a numeric string.
func ValidateTransitionID(raw any) (int, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return 0, autherror.ValidationField("transitionId", "is required")
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		if v != float64(int(v)) {
			return 0, autherror.ValidationField("transitionId", "must be an integer")
		}
		s = strconv.Itoa(int(v))
	default:
		return 0, autherror.ValidationField("transitionId", "must be an integer")
	}
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, autherror.ValidationField("transitionId", "must be an integer")
	}
	if id < 1 || id > MaxTransitionID {
		return 0, autherror.ValidationField("transitionId", "must be between 1 and 9999")
	}
	return id, nil
}

// ValidateSearch checks the JQL length and parses maxResults, defaulting to 50.
func ValidateSearch(jql, maxResults string) (string, int, error) {
	jql = strings.TrimSpace(jql)
	if jql == "" {
		return "", 0, autherror.ValidationField("jql", "is required")
	}
	if utf8.RuneCountInString(jql) > MaxJQLLength {
		return "", 0, autherror.ValidationField("jql", "must be at most 500 characters")
	}
	if maxResults == "" {
		return jql, DefaultMaxResults, nil
	}
	n, err := strconv.Atoi(maxResults)
	if err != nil || n < 1 || n > MaxSearchResults {
		return "", 0, autherror.ValidationField("maxResults", "must be between 1 and 100")
	}
	return jql, n, nil
}
