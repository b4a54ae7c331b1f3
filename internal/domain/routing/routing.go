package routing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
)

// Config holds the currently active destination identifiers for one list.
// At most one active Config exists per list ID; a persisted lead whose
// campaign ID differs from the active Config's is a repairable mismatch,
// not a hard constraint.
type Config struct {
	ID          uuid.UUID            `json:"id"`
	ListID      string               `json:"list_id"`
	CampaignID  string               `json:"campaign_id"`
	CadenceID   string               `json:"cadence_id"`
	Token       string               `json:"token"`
	Destination lead.DestinationType `json:"dialer_type"`
	Bid         decimal.Decimal      `json:"bid"`
	Description string               `json:"description"`
	Vertical    string               `json:"vertical,omitempty"`
	Active      bool                 `json:"active"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Allocation is a transient request to carve a fixed number of leads out of a
// batch for one destination. Consumed once per batch.
type Allocation struct {
	RoutingID   uuid.UUID       `json:"routing_id"`
	ListID      string          `json:"list_id"`
	CostPerLead decimal.Decimal `json:"cost_per_lead"`
	LeadCount   int             `json:"lead_count"`
}
