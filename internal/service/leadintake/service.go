package leadintake

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	domaincompliance "github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dedupe"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dialer"
)

// LeadStore persists leads. InsertBatch writes one allocation group with its
// per-lead cost; UpdateStatus records post outcomes afterwards.
type LeadStore interface {
	InsertBatch(ctx context.Context, leads []*lead.Lead, costPerLead decimal.Decimal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status lead.Status) error
}

// RoutingSource resolves active routing configurations
type RoutingSource interface {
	ActiveForList(ctx context.Context, listID string) (*routing.Config, error)
}

// Rejection explains why one lead did not survive intake
type Rejection struct {
	Phone   string   `json:"phone"`
	Reason  string   `json:"reason"`
	Details []string `json:"details,omitempty"`
}

// RoutingOutcome summarizes one allocation's share of the batch
type RoutingOutcome struct {
	RoutingID   uuid.UUID           `json:"routing_id"`
	ListID      string              `json:"list_id"`
	Assigned    int                 `json:"assigned"`
	Posted      int                 `json:"posted"`
	PostResults []dialer.PostResult `json:"post_results,omitempty"`
}

// BatchResult is the full accounting of one SubmitBatch call
type BatchResult struct {
	Submitted  int              `json:"submitted"`
	Compliant  int              `json:"compliant"`
	Rejections []Rejection      `json:"rejections,omitempty"`
	Routed     []RoutingOutcome `json:"routed"`
	Unassigned int              `json:"unassigned"`
}

// SubmitResult is the single-lead intake outcome
type SubmitResult struct {
	Lead       *lead.Lead               `json:"lead"`
	Summary    domaincompliance.Summary `json:"compliance"`
	Duplicate  dedupe.Result            `json:"duplicate_check"`
	PostResult *dialer.PostResult       `json:"post_result,omitempty"`
}

// Service is the intake pipeline: scrub, dedupe, allocate, persist, post.
// Per-lead failures downstream of persistence never abort the batch; the
// caller gets an itemized accounting instead.
type Service struct {
	engine   *compliance.Engine
	detector *dedupe.Detector
	store    LeadStore
	routings RoutingSource
	poster   Poster
	runner   *batch.Runner[*lead.Lead, dialer.PostResult]
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// Poster is the dialer surface the intake needs
type Poster interface {
	Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) dialer.PostResult
}

func NewService(
	engine *compliance.Engine,
	detector *dedupe.Detector,
	store LeadStore,
	routings RoutingSource,
	poster Poster,
	waveSize int,
	pacer batch.Pacer,
	m *metrics.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		engine:   engine,
		detector: detector,
		store:    store,
		routings: routings,
		poster:   poster,
		runner:   batch.NewRunner[*lead.Lead, dialer.PostResult](waveSize, pacer, logger),
		metrics:  m,
		logger:   logger,
	}
}

// SubmitBatch scrubs every lead, drops non-compliant and duplicate ones,
// distributes the survivors across the allocations, persists each group with
// its cost, and posts each lead to its destination.
func (s *Service) SubmitBatch(ctx context.Context, leads []*lead.Lead, allocations []routing.Allocation) (*BatchResult, error) {
	if len(leads) == 0 {
		return nil, errors.NewValidationError("EMPTY_BATCH", "at least one lead is required")
	}
	if len(allocations) == 0 {
		return nil, errors.NewValidationError("NO_ALLOCATIONS", "at least one allocation is required")
	}

	result := &BatchResult{Submitted: len(leads)}

	survivors := s.screen(ctx, leads, result)
	result.Compliant = len(survivors)

	distribution := routing.Distribute(survivors, allocations)
	assigned := make(map[uuid.UUID]bool)

	for _, alloc := range allocations {
		group := distribution[alloc.RoutingID]
		if len(group) == 0 {
			continue
		}
		for _, l := range group {
			assigned[l.ID] = true
		}

		outcome, err := s.routeGroup(ctx, alloc, group)
		if err != nil {
			return nil, err
		}
		result.Routed = append(result.Routed, *outcome)
	}

	// Leftovers are persisted unassigned so they are not lost; a later
	// allocation run can pick them up
	var leftovers []*lead.Lead
	for _, l := range survivors {
		if !assigned[l.ID] {
			leftovers = append(leftovers, l)
		}
	}
	if len(leftovers) > 0 {
		if err := s.store.InsertBatch(ctx, leftovers, decimal.Zero); err != nil {
			return nil, errors.Wrap(err, "persisting unassigned leads")
		}
		result.Unassigned = len(leftovers)
	}

	if s.metrics != nil {
		s.metrics.LeadsSubmitted.Add(float64(result.Compliant))
	}
	return result, nil
}

// screen runs compliance and dedupe over the batch and returns the survivors
// in input order
func (s *Service) screen(ctx context.Context, leads []*lead.Lead, result *BatchResult) []*lead.Lead {
	var survivors []*lead.Lead
	for _, l := range leads {
		summary := s.engine.CheckCompliance(ctx, l.Phone.Digits(), compliance.Options{
			ContactName: l.FirstName + " " + l.LastName,
		})
		if !summary.OverallCompliant.IsPass() {
			l.Status = lead.StatusRejected
			result.Rejections = append(result.Rejections, Rejection{
				Phone:   l.Phone.Digits(),
				Reason:  "compliance",
				Details: summary.Totals.FailedReasons,
			})
			s.countRejection("compliance")
			continue
		}

		dup := s.detector.CheckInVertical(ctx, l.Phone.Digits(), l.ListID)
		if dup.IsDuplicate {
			l.Status = lead.StatusRejected
			result.Rejections = append(result.Rejections, Rejection{
				Phone:  l.Phone.Digits(),
				Reason: "duplicate",
				Details: []string{fmt.Sprintf("submitted %d days ago (%s check)",
					dup.DaysAgo, dup.CheckType)},
			})
			s.countRejection("duplicate")
			continue
		}

		survivors = append(survivors, l)
	}
	return survivors
}

// routeGroup persists one allocation's leads and posts them in waves
func (s *Service) routeGroup(ctx context.Context, alloc routing.Allocation, group []*lead.Lead) (*RoutingOutcome, error) {
	cfg, err := s.routings.ActiveForList(ctx, alloc.ListID)
	if err != nil {
		return nil, errors.Wrap(err, "loading routing for list "+alloc.ListID)
	}
	if cfg == nil {
		return nil, errors.NewRoutingNotFoundError(alloc.ListID)
	}

	for _, l := range group {
		l.ListID = cfg.ListID
		l.AssignRouting(cfg.CampaignID, cfg.CadenceID, cfg.Destination)
	}
	if err := s.store.InsertBatch(ctx, group, alloc.CostPerLead); err != nil {
		return nil, errors.Wrap(err, "persisting leads for list "+alloc.ListID)
	}

	results, err := s.runner.Run(ctx, group, func(ctx context.Context, l *lead.Lead) (dialer.PostResult, error) {
		return s.poster.Post(ctx, l, cfg), nil
	})
	if err != nil {
		return nil, err
	}

	outcome := &RoutingOutcome{
		RoutingID: alloc.RoutingID,
		ListID:    alloc.ListID,
		Assigned:  len(group),
	}
	for i, res := range results {
		post := res.Value
		if res.Err != nil {
			post = dialer.PostResult{LeadID: group[i].ID, Success: false, Err: res.Err.Error()}
		}
		outcome.PostResults = append(outcome.PostResults, post)

		status := lead.StatusPostFailed
		if post.Success {
			status = lead.StatusPosted
			outcome.Posted++
		}
		if err := s.store.UpdateStatus(ctx, group[i].ID, status); err != nil {
			s.logger.Warn("lead status update failed",
				zap.String("lead_id", group[i].ID.String()),
				zap.Error(err))
		}
	}
	return outcome, nil
}

// Submit runs the single-lead intake path: scrub, dedupe, route to the
// list's active config, persist, post.
func (s *Service) Submit(ctx context.Context, l *lead.Lead) (*SubmitResult, error) {
	summary := s.engine.CheckCompliance(ctx, l.Phone.Digits(), compliance.Options{
		ContactName: l.FirstName + " " + l.LastName,
	})
	if !summary.OverallCompliant.IsPass() {
		s.countRejection("compliance")
		l.Status = lead.StatusRejected
		return &SubmitResult{Lead: l, Summary: summary},
			errors.NewValidationError("LEAD_NOT_COMPLIANT", "lead failed compliance checks")
	}

	dup := s.detector.CheckInVertical(ctx, l.Phone.Digits(), l.ListID)
	if dup.IsDuplicate {
		s.countRejection("duplicate")
		l.Status = lead.StatusRejected
		return &SubmitResult{Lead: l, Summary: summary, Duplicate: dup},
			errors.NewValidationError("DUPLICATE_LEAD",
				fmt.Sprintf("phone submitted %d days ago", dup.DaysAgo))
	}

	cfg, err := s.routings.ActiveForList(ctx, l.ListID)
	if err != nil {
		return nil, errors.Wrap(err, "loading routing for list "+l.ListID)
	}
	if cfg == nil {
		return nil, errors.NewRoutingNotFoundError(l.ListID)
	}

	l.AssignRouting(cfg.CampaignID, cfg.CadenceID, cfg.Destination)
	if err := s.store.InsertBatch(ctx, []*lead.Lead{l}, cfg.Bid); err != nil {
		return nil, errors.Wrap(err, "persisting lead")
	}

	post := s.poster.Post(ctx, l, cfg)
	status := lead.StatusPostFailed
	if post.Success {
		status = lead.StatusPosted
	}
	l.Status = status
	if err := s.store.UpdateStatus(ctx, l.ID, status); err != nil {
		s.logger.Warn("lead status update failed",
			zap.String("lead_id", l.ID.String()),
			zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.LeadsSubmitted.Inc()
	}
	return &SubmitResult{Lead: l, Summary: summary, Duplicate: dup, PostResult: &post}, nil
}

func (s *Service) countRejection(reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.LeadsRejected.WithLabelValues(reason).Inc()
}
