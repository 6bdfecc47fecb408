package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

type passwordRule struct {
	problem string
	ok      func(string) bool
}

var passwordRules = []passwordRule{
	{"at least 8 characters", func(p string) bool { return len([]rune(p)) >= minPasswordLength }},
	{"at most 72 bytes", func(p string) bool { return len(p) <= maxPasswordBytes }},
	{"a lowercase letter", func(p string) bool { return strings.IndexFunc(p, unicode.IsLower) >= 0 }},
	{"an uppercase letter", func(p string) bool { return strings.IndexFunc(p, unicode.IsUpper) >= 0 }},
	{"a digit", func(p string) bool { return strings.IndexFunc(p, unicode.IsDigit) >= 0 }},
	{"a symbol", func(p string) bool {
		return strings.IndexFunc(p, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }) >= 0
	}},
}

// PasswordProblems lists the strength rules password fails; empty means it
// is acceptable.
func PasswordProblems(password string) []string {
	var problems []string
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			problems = append(problems, rule.problem)
		}
	}
	return problems
}

func checkPassword(field, password string) error {
	problems := PasswordProblems(password)
	if len(problems) == 0 {
		return nil
	}
	err := autherror.ValidationField(field, "must contain "+strings.Join(problems, ", "))
	err.Err = autherror.ErrWeakPassword
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return autherror.ValidationField("email", "must be a valid email address")
	}
	return nil
}

func checkUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return autherror.ValidationField("username", "must be 3-32 letters, digits, '.', '_' or '-'")
	}
	return nil
}

func checkRole(role string) error {
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return autherror.ValidationField("role", "must be admin or user")
	}
	return nil
}
