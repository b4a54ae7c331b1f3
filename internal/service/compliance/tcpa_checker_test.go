package compliance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

func tcpaConfig(baseURL string) config.TCPAConfig {
	return config.TCPAConfig{
		Username:          "user",
		Password:          "pass",
		BaseURL:           baseURL,
		MaxRetries:        3,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     8 * time.Millisecond,
	}
}

// recordedSleep replaces the backoff sleep so tests observe the schedule
// without waiting it out
type recordedSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func newTestTCPAChecker(t *testing.T, baseURL string) (*TCPAChecker, *recordedSleep) {
	t.Helper()
	checker := NewTCPAChecker(tcpaConfig(baseURL), &http.Client{Timeout: time.Second}, nil, zaptest.NewLogger(t))
	rec := &recordedSleep{}
	checker.sleep = rec.sleep
	return checker, rec
}

func TestTCPAChecker_CleanNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5125551234", r.PostForm.Get("phone_number"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"results":{"clean":1,"is_bad_number":false,"phone_number":"5125551234"}}`))
	}))
	defer srv.Close()

	checker, _ := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "(512) 555-1234", Options{})

	assert.Equal(t, domain.VerdictPass, result.Compliant)
	assert.Empty(t, result.Reasons)
	assert.Empty(t, result.Err)
}

func TestTCPAChecker_DirtyNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"clean":0,"is_bad_number":true,"status_array":["tcpa_troll","dnc_complainers"],"phone_number":"5125551234"}}`))
	}))
	defer srv.Close()

	checker, _ := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"tcpa_troll", "dnc_complainers"}, result.Reasons)
}

func TestTCPAChecker_LocalFormatRejection(t *testing.T) {
	// Must not reach the network at all
	checker, _ := newTestTCPAChecker(t, "http://127.0.0.1:1")
	result := checker.Check(context.Background(), "555-1234", Options{})

	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"Invalid phone number format"}, result.Reasons)
}

func TestTCPAChecker_UnauthorizedNeverRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	checker, rec := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.Contains(t, result.Err, "authentication failed")
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestTCPAChecker_RateLimitRetriesWithBackoff(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results":{"clean":1}}`))
	}))
	defer srv.Close()

	checker, rec := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictPass, result.Compliant)
	assert.Equal(t, 3, calls)
	// No Retry-After header: the doubling schedule applies
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, rec.waits)
}

func TestTCPAChecker_RateLimitHonorsRetryAfter(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results":{"clean":1}}`))
	}))
	defer srv.Close()

	checker, rec := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictPass, result.Compliant)
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 7*time.Second, rec.waits[0], "server hint wins over the backoff schedule")
}

func TestTCPAChecker_RateLimitBudgetExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := tcpaConfig(srv.URL)
	cfg.MaxRetryDelay = 3 * time.Millisecond
	checker := NewTCPAChecker(cfg, &http.Client{Timeout: time.Second}, nil, zaptest.NewLogger(t))
	rec := &recordedSleep{}
	checker.sleep = rec.sleep

	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.Contains(t, result.Err, "rate limit exceeded")
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	// Doubling capped at the max delay
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, rec.waits)
}

func TestTCPAChecker_ParseFailureNeverRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	checker, rec := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.Contains(t, result.Err, "parsing response")
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestTCPAChecker_ServerErrorRetriedThenIndeterminate(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	checker, _ := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.Equal(t, 4, calls)
}

func TestTCPAChecker_MissingResultsObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	checker, _ := newTestTCPAChecker(t, srv.URL)
	result := checker.Check(context.Background(), "5125551234", Options{})

	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.Contains(t, result.Err, "unexpected response structure")
}
