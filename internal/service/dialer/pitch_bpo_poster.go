package dialer

import (
	"context"
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

const pitchBPOPosterName = "pitch_bpo"

// maximum of the opaque vendor response we keep around
const pitchBPOResponseLimit = 100

// PitchBPOPoster injects leads into the Pitch BPO dialer. The vendor API is
// a GET with everything in the query string and a free-text response body,
// so only the status code is interpreted.
type PitchBPOPoster struct {
	cfg     config.PitchBPOConfig
	client  *http.Client
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewPitchBPOPoster(cfg config.PitchBPOConfig, client *http.Client, m *metrics.Registry, logger *zap.Logger) *PitchBPOPoster {
	return &PitchBPOPoster{cfg: cfg, client: client, metrics: m, logger: logger}
}

func (p *PitchBPOPoster) Name() string { return pitchBPOPosterName }

func (p *PitchBPOPoster) Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) PostResult {
	listID := l.ListID
	if cfg != nil && cfg.ListID != "" {
		listID = cfg.ListID
	}

	query := url.Values{}
	query.Set("token", p.cfg.Token)
	query.Set("accid", p.cfg.AccountID)
	query.Set("Campaign", p.cfg.Campaign)
	query.Set("Subcampaign", p.cfg.Subcampaign)

	// The vendor's SubID slots carry our routing identity back on reports
	query.Set("adv_SubID", listID)
	if subID := l.SubID(); subID != "" {
		query.Set("adv_SubID2", subID)
	}

	query.Set("PrimaryPhone", l.Phone.Digits())
	query.Set("FirstName", l.FirstName)
	query.Set("LastName", l.LastName)
	query.Set("email", l.Email)
	query.Set("ZipCode", l.ZipCode)
	query.Set("State", l.State)
	query.Set("ClientId", l.ID.String())
	query.Set("Notes", "Lead from Compliance Engine")

	query.Set("ImportOnly", "0")
	query.Set("DuplicatesCheck", "1")
	query.Set("AllowDialingDups", "1")

	endpoint := p.cfg.InjectURL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}
	req.Header.Set("Accept", "*/*")

	start := time.Now()
	resp, err := p.client.Do(req)
	if p.metrics != nil {
		p.metrics.DialerPostLatency.WithLabelValues(pitchBPOPosterName).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.Warn("pitch bpo inject failed",
			zap.String("lead_id", l.ID.String()),
			zap.Error(err))
		p.countPost(false)
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, pitchBPOResponseLimit))
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

func (p *PitchBPOPoster) countPost(success bool) {
	if p.metrics == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	p.metrics.DialerPosts.WithLabelValues(pitchBPOPosterName, outcome).Inc()
}
