package compliance

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
)

const tcpaCheckerName = "TCPA Litigator List"

// tcpaResponse mirrors the scrub endpoint's payload. Clean numbers come back
// with clean=1 and no status_array at all; dirty numbers carry the reasons.
type tcpaResponse struct {
	Results *struct {
		Clean       int      `json:"clean"`
		IsBadNumber bool     `json:"is_bad_number"`
		StatusArray []string `json:"status_array"`
		PhoneNumber string   `json:"phone_number"`
	} `json:"results"`
}

// TCPAChecker scrubs numbers against the TCPA litigation and DNC history
// service. It is the only checker with a retry policy: the vendor rate-limits
// aggressively, so 429s are retried on an exponential backoff schedule
// (honoring a server-supplied Retry-After when present). 401 is a fatal
// credential problem and parse failures are not transient, so neither is
// ever retried.
type TCPAChecker struct {
	cfg     config.TCPAConfig
	client  *http.Client
	auth    string
	logger  *zap.Logger
	metrics *metrics.Registry

	// sleep is injectable so retry tests need no wall clock
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTCPAChecker(cfg config.TCPAConfig, client *http.Client, m *metrics.Registry, logger *zap.Logger) *TCPAChecker {
	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &TCPAChecker{
		cfg:     cfg,
		client:  client,
		auth:    "Basic " + credentials,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
	}
}

func (c *TCPAChecker) Name() string { return tcpaCheckerName }

func (c *TCPAChecker) Check(ctx context.Context, phone string, opts Options) compliance.CheckResult {
	digits, ok := normalizePhone(phone)
	if !ok {
		return invalidFormatResult(tcpaCheckerName)
	}

	form := url.Values{}
	form.Set("type", `["tcpa","dnc"]`)
	form.Set("phone_number", digits)
	if opts.ContactName != "" {
		form.Set("contact_name", opts.ContactName)
	}

	data, err := c.requestWithRetry(ctx, form)
	if err != nil {
		c.logger.Warn("tcpa check indeterminate",
			zap.String("phone", digits),
			zap.Error(err))
		return compliance.CheckResult{
			Source:    tcpaCheckerName,
			Compliant: compliance.VerdictIndeterminate,
			Reasons:   []string{},
			Err:       err.Error(),
		}
	}

	if data.Results == nil {
		return compliance.CheckResult{
			Source:    tcpaCheckerName,
			Compliant: compliance.VerdictIndeterminate,
			Reasons:   []string{},
			Err:       "unexpected response structure",
		}
	}

	verdict := compliance.VerdictFail
	reasons := data.Results.StatusArray
	if data.Results.Clean == 1 {
		verdict = compliance.VerdictPass
		reasons = nil
	}

	return compliance.CheckResult{
		Source:      tcpaCheckerName,
		Compliant:   verdict,
		Reasons:     reasons,
		RawResponse: data,
	}
}

// requestWithRetry runs the scrub call under the backoff schedule: base delay
// doubling up to the cap, bounded attempt count.
func (c *TCPAChecker) requestWithRetry(ctx context.Context, form url.Values) (*tcpaResponse, error) {
	delay := c.cfg.InitialRetryDelay
	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/scrub/phone/"

	for attempt := 0; ; attempt++ {
		data, retryAfter, err := c.doRequest(ctx, endpoint, form)
		if err == nil {
			return data, nil
		}
		if !errRetryable(err) {
			return nil, err
		}
		if attempt >= c.cfg.MaxRetries {
			if isRateLimited(err) {
				return nil, fmt.Errorf("rate limit exceeded, maximum retries reached")
			}
			return nil, err
		}

		wait := delay
		if retryAfter > 0 {
			wait = retryAfter
		}
		if c.metrics != nil {
			c.metrics.CheckerRetries.WithLabelValues(tcpaCheckerName).Inc()
		}
		c.logger.Debug("retrying tcpa request",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > c.cfg.MaxRetryDelay {
			delay = c.cfg.MaxRetryDelay
		}
	}
}

// doRequest performs one attempt. The returned duration is a server-supplied
// Retry-After hint, zero when absent.
func (c *TCPAChecker) doRequest(ctx context.Context, endpoint string, form url.Values) (*tcpaResponse, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, nonRetryableError{err}
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, retryableError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Bad credentials never get better on retry
		return nil, 0, nonRetryableError{fmt.Errorf("authentication failed, check API credentials")}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), rateLimitError{fmt.Errorf("rate limited (429)")}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, 0, retryableError{fmt.Errorf("request failed with status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, retryableError{err}
	}

	var data tcpaResponse
	if err := json.Unmarshal(body, &data); err != nil {
		// A malformed body is a contract problem, not a transient fault
		return nil, 0, nonRetryableError{fmt.Errorf("parsing response: %w", err)}
	}
	return &data, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// Error classification for the retry loop
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type rateLimitError struct{ err error }

func (e rateLimitError) Error() string { return e.err.Error() }
func (e rateLimitError) Unwrap() error { return e.err }

type nonRetryableError struct{ err error }

func (e nonRetryableError) Error() string { return e.err.Error() }
func (e nonRetryableError) Unwrap() error { return e.err }

func errRetryable(err error) bool {
	switch err.(type) {
	case retryableError, rateLimitError:
		return true
	default:
		return false
	}
}

func isRateLimited(err error) bool {
	_, ok := err.(rateLimitError)
	return ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
