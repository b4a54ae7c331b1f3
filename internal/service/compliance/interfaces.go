package compliance

import (
	"context"
	"regexp"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
)

// Checker verifies one phone number against one upstream compliance source.
// Implementations return a tri-state result and never propagate transport
// errors as Go errors: an upstream failure is data (an indeterminate verdict),
// not control flow.
type Checker interface {
	Name() string
	Check(ctx context.Context, phone string, opts Options) compliance.CheckResult
}

// Options carries optional per-check context
type Options struct {
	ContactName string
}

// DNCStore is the persistence surface the internal DNC checker needs
type DNCStore interface {
	FindActiveEntry(ctx context.Context, phoneDigits string) (*DNCEntry, error)
}

// DNCEntry is an internal do-not-call record
type DNCEntry struct {
	PhoneNumber string
	Reason      string
	Source      string
	Status      string
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizePhone strips formatting and enforces the 10-15 digit bounds every
// vendor shares. A local rejection is an explicit non-compliance verdict, not
// an indeterminate one, and costs no network call.
func normalizePhone(phone string) (string, bool) {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}

// invalidFormatResult is the shared local-rejection result
func invalidFormatResult(source string) compliance.CheckResult {
	return compliance.CheckResult{
		Source:    source,
		Compliant: compliance.VerdictFail,
		Reasons:   []string{"Invalid phone number format"},
	}
}
