package compliance

import (
	"encoding/json"
	"time"
)

// Verdict is the tri-state outcome of a compliance check. Indeterminate means
// the checker could not determine an answer (transport, auth, or parse
// failure) and must never be conflated with an explicit Fail: an error is not
// evidence of non-compliance.
type Verdict int

const (
	VerdictIndeterminate Verdict = iota
	VerdictPass
	VerdictFail
)

// IsPass reports a determined compliant verdict. Indeterminate is not a pass:
// callers that gate on IsPass treat unresolved checks as not-yet-sellable.
func (v Verdict) IsPass() bool {
	return v == VerdictPass
}

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "compliant"
	case VerdictFail:
		return "non_compliant"
	default:
		return "indeterminate"
	}
}

// MarshalJSON renders the verdict as the API's nullable boolean:
// true, false, or null for indeterminate.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case VerdictPass:
		return json.Marshal(true)
	case VerdictFail:
		return json.Marshal(false)
	default:
		return json.Marshal(nil)
	}
}

// UnmarshalJSON parses the nullable-boolean form
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	switch {
	case b == nil:
		*v = VerdictIndeterminate
	case *b:
		*v = VerdictPass
	default:
		*v = VerdictFail
	}
	return nil
}

// CheckResult is one checker's outcome for one phone number
type CheckResult struct {
	Source      string      `json:"source"`
	Compliant   Verdict     `json:"compliant"`
	Reasons     []string    `json:"reasons"`
	RawResponse interface{} `json:"raw_response,omitempty"`
	Err         string      `json:"error,omitempty"`
}

// Summary aggregates all checker results for one phone number. It is
// ephemeral: produced per check, never persisted.
type Summary struct {
	PhoneNumber      string        `json:"phone_number"`
	OverallCompliant Verdict       `json:"overall_compliant"`
	CheckResults     []CheckResult `json:"check_results"`
	Totals           Totals        `json:"summary"`
	Timestamp        time.Time     `json:"timestamp"`
}

type Totals struct {
	TotalChecks   int      `json:"total_checks"`
	FailedChecks  []string `json:"failed_checks"`
	FailedReasons []string `json:"failed_reasons"`
}

// Aggregate combines per-checker results into an overall verdict. The rule is
// a deliberate fail-safe-by-ambiguity policy, not "any fail means fail":
//
//	no indeterminate results            -> determined: pass iff no explicit fail
//	only passes and indeterminates      -> determined: pass (nothing failed)
//	explicit fail AND indeterminate     -> indeterminate
//
// The last row is the point of the rule. With an erroring checker alongside a
// failing one, the engine refuses to assert compliance (the erroring checker
// might also have failed) and equally refuses to assert non-compliance while
// one source is unverifiable.
func Aggregate(phone string, results []CheckResult) Summary {
	hasErrors := false
	var failed []CheckResult
	for _, r := range results {
		if r.Compliant == VerdictIndeterminate {
			hasErrors = true
		}
		if r.Compliant == VerdictFail {
			failed = append(failed, r)
		}
	}

	overall := VerdictIndeterminate
	if !hasErrors || len(failed) == 0 {
		if len(failed) == 0 {
			overall = VerdictPass
		} else {
			overall = VerdictFail
		}
	}

	totals := Totals{
		TotalChecks:   len(results),
		FailedChecks:  make([]string, 0, len(failed)),
		FailedReasons: make([]string, 0),
	}
	for _, f := range failed {
		totals.FailedChecks = append(totals.FailedChecks, f.Source)
		totals.FailedReasons = append(totals.FailedReasons, f.Reasons...)
	}

	return Summary{
		PhoneNumber:      phone,
		OverallCompliant: overall,
		CheckResults:     results,
		Totals:           totals,
		Timestamp:        time.Now().UTC(),
	}
}
