package compliance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
)

const internalDNCCheckerName = "Internal DNC List"

// InternalDNCChecker consults our own opt-out table. DNC checkers fail
// closed: if the store cannot answer, the number is treated as on the list.
// Dialing someone who opted out is a worse failure mode than skipping a
// dialable lead, which is the opposite trade from the rest of the engine.
type InternalDNCChecker struct {
	store  DNCStore
	logger *zap.Logger
}

func NewInternalDNCChecker(store DNCStore, logger *zap.Logger) *InternalDNCChecker {
	return &InternalDNCChecker{store: store, logger: logger}
}

func (c *InternalDNCChecker) Name() string { return internalDNCCheckerName }

func (c *InternalDNCChecker) Check(ctx context.Context, phone string, opts Options) compliance.CheckResult {
	digits, ok := normalizePhone(phone)
	if !ok {
		return invalidFormatResult(internalDNCCheckerName)
	}

	entry, err := c.store.FindActiveEntry(ctx, digits)
	if err != nil {
		c.logger.Error("internal dnc lookup failed, blocking number",
			zap.String("phone", digits),
			zap.Error(err))
		return compliance.CheckResult{
			Source:    internalDNCCheckerName,
			Compliant: compliance.VerdictFail,
			Reasons:   []string{"DNC lookup failed - number blocked for safety"},
			Err:       err.Error(),
		}
	}

	if entry == nil {
		return compliance.CheckResult{
			Source:    internalDNCCheckerName,
			Compliant: compliance.VerdictPass,
			Reasons:   []string{},
		}
	}

	reason := entry.Reason
	if reason == "" {
		reason = "Number on internal do-not-call list"
	}
	return compliance.CheckResult{
		Source:      internalDNCCheckerName,
		Compliant:   compliance.VerdictFail,
		Reasons:     []string{fmt.Sprintf("%s (source: %s)", reason, entry.Source)},
		RawResponse: entry,
	}
}
