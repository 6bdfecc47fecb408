package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_Scan_BuiltInDetectors(t *testing.T) {
	s := New(WithEmail(true))

	tests := []struct {
		name string
		text string
		want string
	}{
		{"ssn", "ssn is 123-45-6789", TypeSSN},
		{"phone", "call me at 555-123-4567", TypePhone},
		{"phone with parens", "office (555) 123-4567", TypePhone},
		{"mrn", "MRN: 00123456", TypeMRN},
		{"dob", "DOB: 04/12/1980", TypeDOB},
		{"address", "lives at 42 Wallaby Way", TypeAddress},
		{"insurance", "Member ID: XJH-99812", TypeInsuranceID},
		{"patient id", "Patient ID 77-1204", TypePatientID},
		{"credit card", "card 4111 1111 1111 1111", TypeCreditCard},
		{"email", "mail jane@example.org", TypeEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Scan(tt.text)
			require.True(t, res.HasMatch, "expected a finding in %q", tt.text)
			assert.Contains(t, res.Types(), tt.want)
		})
	}
}

func TestScanner_Scan_NoFalsePositivesOnTicketText(t *testing.T) {
	s := New()

	for _, text := range []string{
		"PROJ-123 is blocked by PROJ2-45",
		"Deployed build 2024.11.3 to staging",
		"Please review the patch before Friday",
		"ssn 000-12-3456 is not a real number",
		"order 4111 1111 1111 1112 failed Luhn",
	} {
		res := s.Scan(text)
		assert.False(t, res.HasMatch, "unexpected finding in %q: %+v", text, res.Findings)
	}
}

func TestScanner_Scan_EmailDisabledByDefault(t *testing.T) {
	assert.False(t, New().Scan("jane@example.org").HasMatch)
}

func TestScanner_Scan_NormalizesFullWidthDigits(t *testing.T) {
	res := New().Scan("call ５５５-１２３-４５６７")
	require.True(t, res.HasMatch)
	assert.Equal(t, []string{TypePhone}, res.Types())
}

func TestScanner_Confidence(t *testing.T) {
	s := New()

	phone := s.Scan("555-123-4567")
	assert.InDelta(t, 0.5, phone.Confidence, 1e-9)

	twoPhones := s.Scan("555-123-4567 or 555-987-6543")
	assert.InDelta(t, 0.6, twoPhones.Confidence, 1e-9)

	hinted := s.Scan("555-123-4567", "patient intake")
	assert.InDelta(t, 0.6, hinted.Confidence, 1e-9)

	capped := s.Scan("ssn 123-45-6789, MRN: 00123456")
	assert.Equal(t, 1.0, capped.Confidence)
}

func TestScanner_ScanObject_TracksPaths(t *testing.T) {
	s := New()
	payload := map[string]any{
		"body": map[string]any{
			"comment": "call me at 555-123-4567",
			"tags":    []any{"ok", "ssn 123-45-6789"},
		},
		"query": map[string]string{"jql": "project = PROJ"},
	}

	res := s.ScanObject(payload, "")

	require.True(t, res.HasMatch)
	assert.Equal(t, []string{"body.comment", "body.tags[1]"}, res.Fields())
	assert.Equal(t, []map[string]any{
		{"type": TypePhone, "count": 1},
		{"type": TypeSSN, "count": 1},
	}, res.Counts())
}

func TestLuhn(t *testing.T) {
	assert.True(t, Luhn("4111111111111111"))
	assert.True(t, Luhn("4111-1111-1111-1111"))
	assert.False(t, Luhn("4111111111111112"))
	assert.False(t, Luhn(""))
	assert.False(t, validCardNumber("4242"))
}

func TestValidSSN(t *testing.T) {
	assert.True(t, validSSN("123-45-6789"))
	assert.False(t, validSSN("666-45-6789"))
	assert.False(t, validSSN("912-45-6789"))
	assert.False(t, validSSN("123-00-6789"))
	assert.False(t, validSSN("123-45-0000"))
}
