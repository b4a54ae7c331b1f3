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

const blacklistCheckerName = "Blacklist Alliance"

type blacklistResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Phone   string `json:"phone"`
	Results int    `json:"results"`
	Scrubs  bool   `json:"scrubs"`
	Carrier *struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		State    string `json:"state"`
		Wireless string `json:"wireless"`
	} `json:"carrier,omitempty"`
}

// BlacklistChecker looks numbers up in the Blacklist Alliance litigator
// database. Upstream failure is indeterminate, never non-compliance.
type BlacklistChecker struct {
	cfg    config.BlacklistConfig
	client *http.Client
	logger *zap.Logger
}

func NewBlacklistChecker(cfg config.BlacklistConfig, client *http.Client, logger *zap.Logger) *BlacklistChecker {
	return &BlacklistChecker{cfg: cfg, client: client, logger: logger}
}

func (c *BlacklistChecker) Name() string { return blacklistCheckerName }

func (c *BlacklistChecker) Check(ctx context.Context, phone string, opts Options) compliance.CheckResult {
	digits, ok := normalizePhone(phone)
	if !ok {
		return invalidFormatResult(blacklistCheckerName)
	}

	endpoint := fmt.Sprintf("%s/lookup?phone=%s&key=%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), url.QueryEscape(digits), url.QueryEscape(c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return indeterminate(blacklistCheckerName, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("blacklist lookup failed", zap.String("phone", digits), zap.Error(err))
		return indeterminate(blacklistCheckerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return indeterminate(blacklistCheckerName, fmt.Errorf("request failed with status %d", resp.StatusCode))
	}

	var data blacklistResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return indeterminate(blacklistCheckerName, fmt.Errorf("parsing response: %w", err))
	}

	blacklisted := data.Scrubs || data.Message == "Blacklisted"
	if !blacklisted {
		return compliance.CheckResult{
			Source:      blacklistCheckerName,
			Compliant:   compliance.VerdictPass,
			Reasons:     []string{},
			RawResponse: data,
		}
	}

	reason := data.Message
	if data.Code != "" {
		reason = fmt.Sprintf("%s (%s)", data.Message, data.Code)
	}
	return compliance.CheckResult{
		Source:      blacklistCheckerName,
		Compliant:   compliance.VerdictFail,
		Reasons:     []string{reason},
		RawResponse: data,
	}
}

// indeterminate is the shared transport/parse failure result for checkers
// that preserve ambiguity rather than failing closed
func indeterminate(source string, err error) compliance.CheckResult {
	return compliance.CheckResult{
		Source:    source,
		Compliant: compliance.VerdictIndeterminate,
		Reasons:   []string{},
		Err:       err.Error(),
	}
}
