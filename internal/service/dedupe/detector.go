package dedupe

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/cache"
)

// CheckType records which strategy produced a result
type CheckType string

const (
	CheckTypeVertical CheckType = "vertical-specific"
	CheckTypeGlobal   CheckType = "global"
	CheckTypeFallback CheckType = "fallback"
)

// PriorLead is the slim projection of a lead the detector needs
type PriorLead struct {
	CreatedAt time.Time
	ListID    string
}

// LeadLookup is the persistence surface for prior-submission queries. Results
// come back most recent first.
type LeadLookup interface {
	FindRecentByPhone(ctx context.Context, phoneDigits string, since time.Time) ([]PriorLead, error)
}

// RoutingLookup resolves the vertical assigned to a list id. An empty string
// with nil error means no active routing carries the list.
type RoutingLookup interface {
	ActiveVerticalForList(ctx context.Context, listID string) (string, error)
}

// Result reports whether a phone number was already submitted inside the
// trailing window. Err carries a lookup failure: the detector fails open, so
// IsDuplicate stays false but callers can see the check was degraded.
type Result struct {
	IsDuplicate bool
	CheckType   CheckType
	// Populated when a duplicate is found
	OriginalSubmission time.Time
	DaysAgo            int
	Vertical           string
	ListID             string

	Err string
}

// Detector finds repeat submissions of the same phone number within a
// trailing window. Unlike the DNC checkers it fails open: a broken duplicate
// check should never stop a lead from being sold, it just forfeits the
// dedupe protection for that one lead.
type Detector struct {
	leads    LeadLookup
	routings RoutingLookup
	cache    *cache.VerticalCache
	window   time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// NewDetector builds a detector over a windowDays trailing window. cache may
// be nil, in which case every vertical resolution hits the routing store.
func NewDetector(leads LeadLookup, routings RoutingLookup, verticalCache *cache.VerticalCache, windowDays int, logger *zap.Logger) *Detector {
	return &Detector{
		leads:    leads,
		routings: routings,
		cache:    verticalCache,
		window:   time.Duration(windowDays) * 24 * time.Hour,
		logger:   logger,
		now:      time.Now,
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// Check runs the global duplicate check: any prior lead with the same phone
// inside the window, regardless of vertical. The window boundary is
// inclusive: a submission exactly windowDays old still counts.
func (d *Detector) Check(ctx context.Context, phone string) Result {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 10 {
		return Result{IsDuplicate: false, CheckType: CheckTypeGlobal}
	}

	since := d.now().Add(-d.window)
	prior, err := d.leads.FindRecentByPhone(ctx, digits, since)
	if err != nil {
		d.logger.Error("duplicate check failed, allowing lead through",
			zap.String("phone", digits),
			zap.Error(err))
		return Result{IsDuplicate: false, CheckType: CheckTypeGlobal, Err: err.Error()}
	}
	if len(prior) == 0 {
		return Result{IsDuplicate: false, CheckType: CheckTypeGlobal}
	}

	return d.duplicateResult(prior[0], CheckTypeGlobal, "")
}

// CheckInVertical restricts the duplicate check to leads sharing the
// vertical of the given list id. When the vertical cannot be resolved, or
// the lead query fails, it falls back to the global check rather than
// reporting a bogus answer.
func (d *Detector) CheckInVertical(ctx context.Context, phone, listID string) Result {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 10 {
		return Result{IsDuplicate: false, CheckType: CheckTypeVertical}
	}
	if listID == "" {
		return d.Check(ctx, phone)
	}

	vertical := d.resolveVertical(ctx, listID)
	if vertical == "" {
		d.logger.Warn("vertical unresolved, falling back to global duplicate check",
			zap.String("list_id", listID))
		result := d.Check(ctx, phone)
		result.CheckType = CheckTypeFallback
		result.ListID = listID
		return result
	}

	since := d.now().Add(-d.window)
	prior, err := d.leads.FindRecentByPhone(ctx, digits, since)
	if err != nil {
		d.logger.Error("vertical duplicate check failed, falling back to global",
			zap.String("phone", digits),
			zap.Error(err))
		result := d.Check(ctx, phone)
		result.CheckType = CheckTypeFallback
		result.ListID = listID
		return result
	}

	// The most recent prior lead in the same vertical wins
	for _, lead := range prior {
		if lead.ListID == "" {
			continue
		}
		if d.resolveVertical(ctx, lead.ListID) == vertical {
			return d.duplicateResult(lead, CheckTypeVertical, vertical)
		}
	}

	return Result{IsDuplicate: false, CheckType: CheckTypeVertical, Vertical: vertical, ListID: listID}
}

func (d *Detector) duplicateResult(lead PriorLead, checkType CheckType, vertical string) Result {
	return Result{
		IsDuplicate:        true,
		CheckType:          checkType,
		OriginalSubmission: lead.CreatedAt,
		DaysAgo:            int(d.now().Sub(lead.CreatedAt).Hours() / 24),
		Vertical:           vertical,
		ListID:             lead.ListID,
	}
}

// resolveVertical consults the cache first, including cached failures, and
// records both outcomes. Empty means unresolved.
func (d *Detector) resolveVertical(ctx context.Context, listID string) string {
	if d.cache != nil {
		if vertical, found := d.cache.Get(ctx, listID); found {
			return vertical
		}
	}

	vertical, err := d.routings.ActiveVerticalForList(ctx, listID)
	if err != nil || vertical == "" {
		if err != nil {
			d.logger.Warn("vertical lookup failed",
				zap.String("list_id", listID),
				zap.Error(err))
		}
		if d.cache != nil {
			d.cache.SetFailed(ctx, listID)
		}
		return ""
	}

	if d.cache != nil {
		d.cache.Set(ctx, listID, vertical)
	}
	return vertical
}
