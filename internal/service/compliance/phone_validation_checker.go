package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

const phoneValidationCheckerName = "Phone Validation"

// Statuses the line validator rejects outright
var rejectedStatuses = []string{
	"disconnected",
	"disconnected-70",
	"unreachable",
	"invalid phone",
	"restricted",
	"ERROR",
	"ERROR bad phone number",
	"ERROR missing token",
	"unauthorized",
	"invalid-format",
	"invalid-phone",
	"bad-zip-code",
	"busy",
}

type phoneValidationResponse struct {
	Status    string `json:"status"`
	ErrorText string `json:"error_text"`
	PhoneType string `json:"phone_type"`
}

// PhoneValidationChecker classifies line status and type through the
// RealPhoneValidation Turbo API. A VoIP classification always forces
// non-compliance regardless of the upstream's own status field: VoIP lines
// are categorically disallowed independent of whether they are "connected".
type PhoneValidationChecker struct {
	cfg    config.PhoneValidationConfig
	client *http.Client
	logger *zap.Logger
}

func NewPhoneValidationChecker(cfg config.PhoneValidationConfig, client *http.Client, logger *zap.Logger) *PhoneValidationChecker {
	return &PhoneValidationChecker{cfg: cfg, client: client, logger: logger}
}

func (c *PhoneValidationChecker) Name() string { return phoneValidationCheckerName }

func (c *PhoneValidationChecker) Check(ctx context.Context, phone string, opts Options) compliance.CheckResult {
	digits, ok := normalizePhone(phone)
	if !ok {
		return invalidFormatResult(phoneValidationCheckerName)
	}

	endpoint := fmt.Sprintf("%s?phone=%s&token=%s&output=json",
		c.cfg.URL, url.QueryEscape(digits), url.QueryEscape(c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return indeterminate(phoneValidationCheckerName, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("phone validation failed", zap.String("phone", digits), zap.Error(err))
		return indeterminate(phoneValidationCheckerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return indeterminate(phoneValidationCheckerName, fmt.Errorf("request failed with status %d", resp.StatusCode))
	}

	var data phoneValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return indeterminate(phoneValidationCheckerName, fmt.Errorf("parsing response: %w", err))
	}

	return c.interpret(data)
}

func (c *PhoneValidationChecker) interpret(data phoneValidationResponse) compliance.CheckResult {
	isVoIP := strings.EqualFold(data.PhoneType, "voip")
	statusRejected := false
	for _, rejected := range rejectedStatuses {
		if strings.EqualFold(data.Status, rejected) ||
			(data.ErrorText != "" && strings.Contains(strings.ToLower(data.ErrorText), strings.ToLower(rejected))) {
			statusRejected = true
			break
		}
	}

	// VoIP is checked before status: "connected" never rescues a VoIP line
	var reasons []string
	switch {
	case isVoIP:
		reasons = []string{"VoIP numbers are not allowed"}
	case statusRejected:
		reasons = []string{fmt.Sprintf("Rejected status: %s", data.Status)}
	}

	if len(reasons) > 0 {
		return compliance.CheckResult{
			Source:      phoneValidationCheckerName,
			Compliant:   compliance.VerdictFail,
			Reasons:     reasons,
			RawResponse: data,
		}
	}

	return compliance.CheckResult{
		Source:      phoneValidationCheckerName,
		Compliant:   compliance.VerdictPass,
		Reasons:     []string{},
		RawResponse: data,
	}
}
