package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
)

func testClient() *http.Client {
	return &http.Client{Timeout: time.Second}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare ten digits", "5125551234", "5125551234", true},
		{"formatted", "(512) 555-1234", "5125551234", true},
		{"with country code", "+1 512 555 1234", "15125551234", true},
		{"too short", "555-1234", "", false},
		{"too long", "1234567890123456", "", false},
		{"empty", "", "", false},
		{"letters only", "not-a-phone", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizePhone(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// --- Blacklist Alliance ---

func blacklistTestChecker(t *testing.T, baseURL string) *BlacklistChecker {
	t.Helper()
	return NewBlacklistChecker(config.BlacklistConfig{APIKey: "test-key", BaseURL: baseURL}, testClient(), zaptest.NewLogger(t))
}

func TestBlacklistChecker_CleanNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5125551234", r.URL.Query().Get("phone"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		json.NewEncoder(w).Encode(blacklistResponse{Status: "success", Message: "Good", Results: 0, Scrubs: false})
	}))
	defer srv.Close()

	result := blacklistTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictPass, result.Compliant)
	assert.Empty(t, result.Reasons)
}

func TestBlacklistChecker_ScrubbedNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(blacklistResponse{Status: "success", Message: "Blacklisted", Code: "LIT-4", Results: 1, Scrubs: true})
	}))
	defer srv.Close()

	result := blacklistTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"Blacklisted (LIT-4)"}, result.Reasons)
}

func TestBlacklistChecker_MessageWithoutScrubsFlag(t *testing.T) {
	// Some responses carry scrubs=false but the message still says blacklisted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(blacklistResponse{Message: "Blacklisted", Scrubs: false})
	}))
	defer srv.Close()

	result := blacklistTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"Blacklisted"}, result.Reasons)
}

func TestBlacklistChecker_UpstreamErrorIsIndeterminate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := blacklistTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.NotEmpty(t, result.Err)
}

func TestBlacklistChecker_InvalidFormatFailsLocally(t *testing.T) {
	result := blacklistTestChecker(t, "http://127.0.0.1:1").Check(context.Background(), "123", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"Invalid phone number format"}, result.Reasons)
}

// --- Internal DNC ---

type stubDNCStore struct {
	entry *DNCEntry
	err   error
	calls []string
}

func (s *stubDNCStore) FindActiveEntry(ctx context.Context, phoneDigits string) (*DNCEntry, error) {
	s.calls = append(s.calls, phoneDigits)
	return s.entry, s.err
}

func TestInternalDNCChecker_NotListed(t *testing.T) {
	store := &stubDNCStore{}
	checker := NewInternalDNCChecker(store, zaptest.NewLogger(t))

	result := checker.Check(context.Background(), "(512) 555-1234", Options{})
	assert.Equal(t, domain.VerdictPass, result.Compliant)
	assert.Equal(t, []string{"5125551234"}, store.calls, "lookup uses normalized digits")
}

func TestInternalDNCChecker_Listed(t *testing.T) {
	store := &stubDNCStore{entry: &DNCEntry{PhoneNumber: "5125551234", Reason: "consumer request", Source: "web form", Status: "active"}}
	checker := NewInternalDNCChecker(store, zaptest.NewLogger(t))

	result := checker.Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"consumer request (source: web form)"}, result.Reasons)
}

func TestInternalDNCChecker_StoreErrorFailsClosed(t *testing.T) {
	store := &stubDNCStore{err: errors.New("connection refused")}
	checker := NewInternalDNCChecker(store, zaptest.NewLogger(t))

	result := checker.Check(context.Background(), "5125551234", Options{})
	// An unreadable DNC list blocks the number rather than risking a call
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"DNC lookup failed - number blocked for safety"}, result.Reasons)
	assert.Contains(t, result.Err, "connection refused")
}

// --- Synergy DNC ---

func TestSynergyDNCChecker_NotOnList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "5125551234", payload["caller_id"])
		w.Write([]byte(`{"accepted":true,"on_dnc":false}`))
	}))
	defer srv.Close()

	checker := NewSynergyDNCChecker(config.SynergyDNCConfig{PingURL: srv.URL}, testClient(), zaptest.NewLogger(t))
	result := checker.Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictPass, result.Compliant)
}

func TestSynergyDNCChecker_OnList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accepted":false,"on_dnc":true}`))
	}))
	defer srv.Close()

	checker := NewSynergyDNCChecker(config.SynergyDNCConfig{PingURL: srv.URL}, testClient(), zaptest.NewLogger(t))
	result := checker.Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"Number found on Synergy DNC list"}, result.Reasons)
}

func TestSynergyDNCChecker_RejectionReasonImpliesDNC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accepted":false,"on_dnc":false,"rejection_reason":"internal_dnc"}`))
	}))
	defer srv.Close()

	checker := NewSynergyDNCChecker(config.SynergyDNCConfig{PingURL: srv.URL}, testClient(), zaptest.NewLogger(t))
	result := checker.Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
}

func TestSynergyDNCChecker_UpstreamErrorFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	checker := NewSynergyDNCChecker(config.SynergyDNCConfig{PingURL: srv.URL}, testClient(), zaptest.NewLogger(t))
	result := checker.Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"DNC lookup failed - number blocked for safety"}, result.Reasons)
	assert.NotEmpty(t, result.Err)
}

// --- Phone validation ---

func phoneValidationTestChecker(t *testing.T, baseURL string) *PhoneValidationChecker {
	t.Helper()
	return NewPhoneValidationChecker(config.PhoneValidationConfig{APIKey: "pv-token", URL: baseURL}, testClient(), zaptest.NewLogger(t))
}

func TestPhoneValidationChecker_Connected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5125551234", r.URL.Query().Get("phone"))
		assert.Equal(t, "pv-token", r.URL.Query().Get("token"))
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		w.Write([]byte(`{"status":"connected","phone_type":"landline"}`))
	}))
	defer srv.Close()

	result := phoneValidationTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictPass, result.Compliant)
}

func TestPhoneValidationChecker_VoIPAlwaysRejected(t *testing.T) {
	// VoIP overrides even a connected status
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"connected","phone_type":"VoIP"}`))
	}))
	defer srv.Close()

	result := phoneValidationTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictFail, result.Compliant)
	assert.Equal(t, []string{"VoIP numbers are not allowed"}, result.Reasons)
}

func TestPhoneValidationChecker_RejectedStatuses(t *testing.T) {
	for _, status := range []string{"disconnected", "disconnected-70", "unreachable", "invalid phone", "restricted", "ERROR", "unauthorized", "busy"} {
		t.Run(status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": status, "phone_type": "landline"})
			}))
			defer srv.Close()

			result := phoneValidationTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
			assert.Equal(t, domain.VerdictFail, result.Compliant)
			assert.Equal(t, []string{"Rejected status: " + status}, result.Reasons)
		})
	}
}

func TestPhoneValidationChecker_UpstreamErrorIsIndeterminate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := phoneValidationTestChecker(t, srv.URL).Check(context.Background(), "5125551234", Options{})
	assert.Equal(t, domain.VerdictIndeterminate, result.Compliant)
	assert.NotEmpty(t, result.Err)
}

func TestNewDNCCheckers_OnlyTheDNCPair(t *testing.T) {
	cfg := &config.Config{}
	cfg.Checkers.CheckTimeout = time.Second

	checkers := NewDNCCheckers(cfg, &stubDNCStore{}, zaptest.NewLogger(t))

	require.Len(t, checkers, 2)
	names := []string{checkers[0].Name(), checkers[1].Name()}
	assert.Equal(t, []string{internalDNCCheckerName, synergyDNCCheckerName}, names,
		"the export scrub pair is the internal list plus Synergy, nothing else")
}
