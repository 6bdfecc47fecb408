package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"ssn", true},
		{"patientName", true},
		{"first_name", true},
		{"DateOfBirth", true},
		{"date-of-birth", true},
		{"memberId", true},
		{"account_number", true},
		{"Authorization", true},
		{"new_password", true},
		{"username", false},
		{"reason", false},
		{"user_agent", false},
		{"finding_types", false},
		{"token_type", false},
		{"route", false},
		{"durationSeconds", false},
		{"confidence", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSensitiveKey(tt.key))
		})
	}
}

func TestRedactDetails_LeavesInputUntouched(t *testing.T) {
	in := map[string]any{"email": "a@b.c", "list": []any{"x", map[string]any{"token": "t"}}}

	out := redactDetails(in, nil)

	assert.Equal(t, "a@b.c", in["email"])
	assert.Equal(t, redacted, out["email"])
	nested := out["list"].([]any)[1].(map[string]any)
	assert.Equal(t, redacted, nested["token"])
	assert.Nil(t, redactDetails(nil, nil))
}
