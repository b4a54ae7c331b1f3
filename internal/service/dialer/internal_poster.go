package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
)

const internalPosterName = "internal"

// internalPayload is the lead-postback body the internal dialer expects.
// The routing identifiers ride both in the body and as query parameters;
// the dialer reads the query string for auth and list resolution and the
// body for the contact record.
type internalPayload struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Address            string `json:"address"`
	City               string `json:"city"`
	State              string `json:"state"`
	ZipCode            string `json:"zip_code"`
	Source             string `json:"source"`
	TrustedFormCertURL string `json:"trusted_form_cert_url"`

	CustomFields map[string]interface{} `json:"custom_fields"`

	ListID     string `json:"list_id"`
	CampaignID string `json:"campaign_id"`
	CadenceID  string `json:"cadence_id"`

	// Enables postback tracking on the dialer side
	ComplianceLeadID string `json:"compliance_lead_id"`
}

// InternalPoster delivers leads to our own dialer's lead-postback webhook
type InternalPoster struct {
	cfg     config.InternalDialerConfig
	client  *http.Client
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewInternalPoster(cfg config.InternalDialerConfig, client *http.Client, m *metrics.Registry, logger *zap.Logger) *InternalPoster {
	return &InternalPoster{cfg: cfg, client: client, metrics: m, logger: logger}
}

func (p *InternalPoster) Name() string { return internalPosterName }

func (p *InternalPoster) Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) PostResult {
	// Routing config wins over whatever the lead row carries; the repair
	// engine relies on this when re-posting with corrected identifiers
	campaignID, cadenceID, listID := l.CampaignID, l.CadenceID, l.ListID
	token := p.cfg.DefaultToken
	if cfg != nil {
		if cfg.CampaignID != "" {
			campaignID = cfg.CampaignID
		}
		if cfg.CadenceID != "" {
			cadenceID = cfg.CadenceID
		}
		if cfg.ListID != "" {
			listID = cfg.ListID
		}
		if cfg.Token != "" {
			token = cfg.Token
		}
	}

	customFields := make(map[string]interface{}, len(l.CustomFields)+1)
	for k, v := range l.CustomFields {
		customFields[k] = v
	}
	customFields["compliance_lead_id"] = l.ID.String()

	payload := internalPayload{
		FirstName:          l.FirstName,
		LastName:           l.LastName,
		Email:              l.Email,
		Phone:              l.Phone.Dialer(),
		Address:            l.Address,
		City:               l.City,
		State:              l.State,
		ZipCode:            l.ZipCode,
		Source:             l.Source,
		TrustedFormCertURL: l.TrustedFormCertURL,
		CustomFields:       customFields,
		ListID:             listID,
		CampaignID:         campaignID,
		CadenceID:          cadenceID,
		ComplianceLeadID:   l.ID.String(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}

	query := url.Values{}
	query.Set("list_id", listID)
	query.Set("campaign_id", campaignID)
	query.Set("cadence_id", cadenceID)
	query.Set("token", token)
	endpoint := p.cfg.PostbackURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if p.metrics != nil {
		p.metrics.DialerPostLatency.WithLabelValues(internalPosterName).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.Warn("internal dialer post failed",
			zap.String("lead_id", l.ID.String()),
			zap.Error(err))
		p.countPost(false)
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	p.countPost(success)

	result := PostResult{
		LeadID:     l.ID,
		Success:    success,
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
	}
	if !success {
		result.Err = fmt.Sprintf("dialer returned status %d", resp.StatusCode)
	}
	return result
}

func (p *InternalPoster) countPost(success bool) {
	if p.metrics == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	p.metrics.DialerPosts.WithLabelValues(internalPosterName, outcome).Inc()
}
