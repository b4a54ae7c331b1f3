package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

const synergyDNCCheckerName = "Synergy DNC"

type synergyPingRequest struct {
	CallerID string `json:"caller_id"`
}

type synergyPingResponse struct {
	OnDNC           bool   `json:"on_dnc"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// SynergyDNCChecker pings the partner's real-time-bidding endpoint to ask
// whether a caller id sits on their DNC list. Like the internal DNC checker,
// it fails closed on upstream errors.
type SynergyDNCChecker struct {
	cfg    config.SynergyDNCConfig
	client *http.Client
	logger *zap.Logger
}

func NewSynergyDNCChecker(cfg config.SynergyDNCConfig, client *http.Client, logger *zap.Logger) *SynergyDNCChecker {
	return &SynergyDNCChecker{cfg: cfg, client: client, logger: logger}
}

func (c *SynergyDNCChecker) Name() string { return synergyDNCCheckerName }

func (c *SynergyDNCChecker) Check(ctx context.Context, phone string, opts Options) compliance.CheckResult {
	digits, ok := normalizePhone(phone)
	if !ok {
		return invalidFormatResult(synergyDNCCheckerName)
	}

	body, err := json.Marshal(synergyPingRequest{CallerID: digits})
	if err != nil {
		return c.failClosed(digits, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PingURL, bytes.NewReader(body))
	if err != nil {
		return c.failClosed(digits, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.failClosed(digits, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.failClosed(digits, fmt.Errorf("ping returned status %d", resp.StatusCode))
	}

	var data synergyPingResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return c.failClosed(digits, fmt.Errorf("parsing response: %w", err))
	}

	onDNC := data.OnDNC || data.RejectionReason == "internal_dnc"
	if onDNC {
		return compliance.CheckResult{
			Source:      synergyDNCCheckerName,
			Compliant:   compliance.VerdictFail,
			Reasons:     []string{"Number found on Synergy DNC list"},
			RawResponse: data,
		}
	}

	return compliance.CheckResult{
		Source:      synergyDNCCheckerName,
		Compliant:   compliance.VerdictPass,
		Reasons:     []string{},
		RawResponse: data,
	}
}

func (c *SynergyDNCChecker) failClosed(digits string, err error) compliance.CheckResult {
	c.logger.Error("synergy dnc check failed, blocking number",
		zap.String("phone", digits),
		zap.Error(err))
	return compliance.CheckResult{
		Source:    synergyDNCCheckerName,
		Compliant: compliance.VerdictFail,
		Reasons:   []string{"DNC lookup failed - number blocked for safety"},
		Err:       err.Error(),
	}
}
