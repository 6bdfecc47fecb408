package scanner

import (
	"regexp"
)

// Detector is one pluggable rule: a pattern, an optional validator for the
// matched text, and the weight the match contributes to confidence.
type Detector struct {
	Type     string
	Label    string
	Pattern  *regexp.Regexp
	Validate func(match string) bool
	Weight   float64
}

const (
	TypeSSN         = "ssn"
	TypeMRN         = "mrn"
	TypePhone       = "phone"
	TypeEmail       = "email"
	TypeDOB         = "dob"
	TypeAddress     = "address"
	TypeInsuranceID = "insurance_id"
	TypePatientID   = "patient_id"
	TypeCreditCard  = "credit_card"
)

var (
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	mrnPattern        = regexp.MustCompile(`(?i)\b(?:MRN|medical\s+record\s*(?:number|no\.?|#)?)\s*[:#]?\s*[A-Z]{0,3}\d{5,12}\b`)
	phonePattern      = regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	dobPattern        = regexp.MustCompile(`(?i)\b(?:DOB|date\s+of\s+birth|birth\s*date|born(?:\s+on)?)\s*[:\-]?\s*\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}\b`)
	addressPattern    = regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9.]+\s+){1,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b\.?`)
	insurancePattern  = regexp.MustCompile(`(?i)\b(?:insurance|policy|member)\s*(?:id|#|no\.?|number)\s*[:#]?\s*[A-Z0-9][A-Z0-9-]{4,19}\b`)
	patientIDPattern  = regexp.MustCompile(`(?i)\bpatient\s*(?:id|#|no\.?|number)\s*[:#]?\s*[A-Z0-9][A-Z0-9-]{3,19}\b`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
)

// DefaultDetectors returns the built-in rule set. Email detection is only
// included when withEmail is set, since addresses are routine in ticket text.
func DefaultDetectors(withEmail bool) []Detector {
	ds := []Detector{
		{Type: TypeSSN, Label: "Social Security number", Pattern: ssnPattern, Validate: validSSN, Weight: 0.9},
		{Type: TypeMRN, Label: "Medical record number", Pattern: mrnPattern, Weight: 0.85},
		{Type: TypePhone, Label: "Phone number", Pattern: phonePattern, Weight: 0.5},
		{Type: TypeDOB, Label: "Date of birth", Pattern: dobPattern, Weight: 0.8},
		{Type: TypeAddress, Label: "Street address", Pattern: addressPattern, Weight: 0.3},
		{Type: TypeInsuranceID, Label: "Insurance identifier", Pattern: insurancePattern, Weight: 0.8},
		{Type: TypePatientID, Label: "Patient identifier", Pattern: patientIDPattern, Weight: 0.85},
		{Type: TypeCreditCard, Label: "Payment card number", Pattern: creditCardPattern, Validate: validCardNumber, Weight: 0.9},
	}
	if withEmail {
		ds = append(ds, Detector{Type: TypeEmail, Label: "Email address", Pattern: emailPattern, Weight: 0.2})
	}
	return ds
}
