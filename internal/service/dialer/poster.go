package dialer

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
)

// PostResult is the outcome of delivering one lead to one destination.
// Dialer responses are treated as opaque beyond the status code: success is
// a 2xx, everything else is captured for the operator and left alone.
type PostResult struct {
	LeadID     uuid.UUID `json:"lead_id"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status,omitempty"`
	Response   string    `json:"response,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Poster delivers a lead to one downstream dialer. A failed delivery is data
// in the result, never an abort: sibling leads in the same batch must keep
// flowing.
type Poster interface {
	Name() string
	Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) PostResult
}

// Dispatcher routes leads to the poster matching their assigned destination
type Dispatcher struct {
	internal Poster
	pitchBPO Poster
}

// NewDispatcher wires the production posters. The shared client carries the
// per-post timeout, so a slow dialer never stalls a whole wave.
func NewDispatcher(cfg config.DialersConfig, m *metrics.Registry, logger *zap.Logger) *Dispatcher {
	client := &http.Client{Timeout: cfg.PostTimeout}
	return &Dispatcher{
		internal: NewInternalPoster(cfg.Internal, client, m, logger),
		pitchBPO: NewPitchBPOPoster(cfg.PitchBPO, client, m, logger),
	}
}

// NewDispatcherWithPosters builds a dispatcher over explicit posters
func NewDispatcherWithPosters(internal, pitchBPO Poster) *Dispatcher {
	return &Dispatcher{internal: internal, pitchBPO: pitchBPO}
}

// PosterFor resolves the adapter for a destination type
func (d *Dispatcher) PosterFor(dest lead.DestinationType) (Poster, error) {
	switch dest {
	case lead.DestinationInternal:
		return d.internal, nil
	case lead.DestinationPitchBPO:
		return d.pitchBPO, nil
	default:
		return nil, errors.NewValidationError("UNKNOWN_DESTINATION",
			"no dialer adapter for destination "+dest.String())
	}
}

// Post delivers one lead to its assigned destination
func (d *Dispatcher) Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) PostResult {
	poster, err := d.PosterFor(l.AssignedDestination)
	if err != nil {
		return PostResult{LeadID: l.ID, Success: false, Err: err.Error()}
	}
	return poster.Post(ctx, l, cfg)
}
