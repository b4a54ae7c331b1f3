package lead

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/values"
)

type Lead struct {
	ID        uuid.UUID          `json:"id"`
	Phone     values.PhoneNumber `json:"phone"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Email     string             `json:"email"`
	Address   string             `json:"address"`
	City      string             `json:"city"`
	State     string             `json:"state"`
	ZipCode   string             `json:"zip_code"`
	Source    string             `json:"source"`

	// Routing identity. CampaignID and AssignedDestination are written at
	// creation by the allocator and later only by the repair engine.
	ListID              string          `json:"list_id"`
	CampaignID          string          `json:"campaign_id"`
	CadenceID           string          `json:"cadence_id"`
	AssignedDestination DestinationType `json:"assigned_dialer_type"`

	TrustedFormCertURL string                 `json:"trusted_form_cert_url,omitempty"`
	CustomFields       map[string]interface{} `json:"custom_fields,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusNew Status = iota
	StatusPosted
	StatusPostFailed
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPosted:
		return "posted"
	case StatusPostFailed:
		return "post_failed"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseStatus maps the persisted status name back to its enum value
func ParseStatus(s string) (Status, error) {
	switch s {
	case "new":
		return StatusNew, nil
	case "posted":
		return StatusPosted, nil
	case "post_failed":
		return StatusPostFailed, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return StatusNew, fmt.Errorf("unknown lead status: %q", s)
	}
}

// DestinationType identifies which downstream dialer a lead belongs to.
// The numeric values are persisted, so they must stay stable.
type DestinationType int

const (
	DestinationUnassigned DestinationType = 0
	DestinationInternal   DestinationType = 1
	DestinationPitchBPO   DestinationType = 2
)

func (d DestinationType) String() string {
	switch d {
	case DestinationInternal:
		return "internal"
	case DestinationPitchBPO:
		return "pitch_bpo"
	default:
		return "unassigned"
	}
}

// ParseDestinationType maps the wire names used by the batch API
func ParseDestinationType(s string) (DestinationType, error) {
	switch s {
	case "internal":
		return DestinationInternal, nil
	case "pitch_bpo":
		return DestinationPitchBPO, nil
	default:
		return DestinationUnassigned, fmt.Errorf("unknown destination type: %q", s)
	}
}

// NewLead creates a lead with a fresh identity. Contact fields are taken as-is;
// phone validation happens in the value object.
func NewLead(phone values.PhoneNumber, firstName, lastName, email, listID string) (*Lead, error) {
	if phone.IsEmpty() {
		return nil, fmt.Errorf("phone is required")
	}
	if listID == "" {
		return nil, fmt.Errorf("list_id is required")
	}

	now := time.Now()
	return &Lead{
		ID:        uuid.New(),
		Phone:     phone,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		ListID:    listID,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PagerID exposes the lead's id as the keyset pagination cursor
func (l *Lead) PagerID() string {
	return l.ID.String()
}

// SubID extracts the optional per-lead sub-identifier from custom fields,
// used by the Pitch BPO adapter as adv_SubID2.
func (l *Lead) SubID() string {
	if l.CustomFields == nil {
		return ""
	}
	if v, ok := l.CustomFields["subid"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AssignRouting stamps the lead with its destination identifiers. Only the
// allocator (at creation) and the repair engine call this.
func (l *Lead) AssignRouting(campaignID, cadenceID string, dest DestinationType) {
	l.CampaignID = campaignID
	l.CadenceID = cadenceID
	l.AssignedDestination = dest
	l.UpdatedAt = time.Now()
}
