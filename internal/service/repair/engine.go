package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/database"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dialer"
)

// LeadSource is the persistence surface the repair engine reads and writes.
// A mismatched lead is an internal-dialer lead whose campaign id differs from
// the list's active routing.
type LeadSource interface {
	CountMismatched(ctx context.Context, listID, activeCampaignID string) (int, error)
	FetchMismatchedBatch(ctx context.Context, listID, activeCampaignID, afterID string, limit int) ([]*lead.Lead, error)
	UpdateCampaign(ctx context.Context, leadIDs []uuid.UUID, campaignID, cadenceID string) error
	CountByList(ctx context.Context, listID string) (int, error)
}

// RoutingSource resolves active routing configurations
type RoutingSource interface {
	ActiveForList(ctx context.Context, listID string) (*routing.Config, error)
	AllActive(ctx context.Context) ([]*routing.Config, error)
}

// Poster is the slice of the dialer dispatcher the engine needs
type Poster interface {
	Post(ctx context.Context, l *lead.Lead, cfg *routing.Config) dialer.PostResult
}

// ListReport is one row of the detection-only scan
type ListReport struct {
	ListID             string `json:"list_id"`
	Description        string `json:"description"`
	ActiveCampaignID   string `json:"active_campaign_id"`
	TotalLeads         int    `json:"total_leads"`
	MismatchedLeads    int    `json:"needs_repost"`
	MismatchPercentage int    `json:"mismatch_percentage"`
}

// Engine finds internal-dialer leads whose persisted campaign id drifted away
// from the list's active routing and re-posts them with corrected
// identifiers. Repair is idempotent: repaired leads no longer match the
// mismatch predicate, and failed leads are left untouched for the next run.
type Engine struct {
	leads    LeadSource
	routings RoutingSource
	poster   Poster
	jobs     job.Store
	runner   *batch.Runner[*lead.Lead, dialer.PostResult]
	pager    *database.KeysetPager[*lead.Lead]
	metrics  *metrics.Registry
	logger   *zap.Logger

	now func() time.Time
}

func NewEngine(
	leads LeadSource,
	routings RoutingSource,
	poster Poster,
	jobs job.Store,
	waveSize int,
	pacer batch.Pacer,
	pageSize, maxBatches int,
	m *metrics.Registry,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		leads:    leads,
		routings: routings,
		poster:   poster,
		jobs:     jobs,
		runner:   batch.NewRunner[*lead.Lead, dialer.PostResult](waveSize, pacer, logger),
		pager:    database.NewKeysetPager[*lead.Lead](pageSize, maxBatches, logger),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// StartRepair creates a pending job for the list and launches the repair in
// the background. The returned job id is immediately pollable.
func (e *Engine) StartRepair(ctx context.Context, listID string) (*job.Job, error) {
	if listID == "" {
		return nil, errors.NewValidationError("MISSING_LIST_ID", "list_id is required")
	}

	j := job.New(job.KindRepair)
	if err := e.jobs.Create(ctx, j); err != nil {
		return nil, errors.Wrap(err, "creating repair job")
	}

	// The job outlives the request that started it
	go e.run(context.WithoutCancel(ctx), j, listID)

	return j, nil
}

func (e *Engine) run(ctx context.Context, j *job.Job, listID string) {
	if err := j.Start(); err != nil {
		e.logger.Error("repair job start rejected", zap.Error(err))
		return
	}
	e.update(ctx, j)

	if err := e.repair(ctx, j, listID); err != nil {
		e.logger.Error("repair job failed",
			zap.String("job_id", j.ID.String()),
			zap.String("list_id", listID),
			zap.Error(err))
		if failErr := j.Fail(err.Error()); failErr == nil {
			e.update(ctx, j)
		}
		return
	}

	if err := j.Complete(); err == nil {
		e.update(ctx, j)
	}
	e.logger.Info("repair job completed",
		zap.String("job_id", j.ID.String()),
		zap.String("list_id", listID),
		zap.Int("successful", j.Successful),
		zap.Int("failed", j.Failed))
}

func (e *Engine) repair(ctx context.Context, j *job.Job, listID string) error {
	active, err := e.routings.ActiveForList(ctx, listID)
	if err != nil {
		return errors.Wrap(err, "loading active routing")
	}
	if active == nil {
		return errors.NewRoutingNotFoundError(listID)
	}

	total, err := e.leads.CountMismatched(ctx, listID, active.CampaignID)
	if err != nil {
		return errors.Wrap(err, "counting mismatched leads")
	}
	j.Total = total
	e.update(ctx, j)

	if total == 0 {
		return nil
	}

	started := e.now()
	fetch := func(ctx context.Context, afterID string, limit int) ([]*lead.Lead, error) {
		return e.leads.FetchMismatchedBatch(ctx, listID, active.CampaignID, afterID, limit)
	}

	truncated, err := e.pager.ForEachBatch(ctx, fetch, func(leads []*lead.Lead) error {
		return e.repairBatch(ctx, j, active, leads, started)
	})
	if err != nil {
		return err
	}
	if truncated {
		j.RecordError("safety stop: not all mismatched leads were enumerated")
	}

	if e.metrics != nil {
		e.metrics.RepairedLeads.Add(float64(j.Successful))
	}
	return nil
}

// repairBatch re-posts one page of mismatched leads in waves and then bulk
// updates the campaign ids of the leads whose re-post succeeded. Failed leads
// keep their stale campaign id so the next run picks them up again.
func (e *Engine) repairBatch(ctx context.Context, j *job.Job, active *routing.Config, leads []*lead.Lead, started time.Time) error {
	results, err := e.runner.Run(ctx, leads, func(ctx context.Context, l *lead.Lead) (dialer.PostResult, error) {
		// Stamp the corrected identifiers before delivery
		l.AssignRouting(active.CampaignID, active.CadenceID, active.Destination)
		return e.poster.Post(ctx, l, active), nil
	})
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RepairWaves.Inc()
	}

	var repaired []uuid.UUID
	for i, res := range results {
		switch {
		case res.Err != nil:
			j.Failed++
			j.RecordError(fmt.Sprintf("lead %s: %v", leads[i].ID, res.Err))
		case !res.Value.Success:
			j.Failed++
			j.RecordError(fmt.Sprintf("lead %s: %s", leads[i].ID, res.Value.Err))
		default:
			j.Successful++
			repaired = append(repaired, leads[i].ID)
		}
	}
	j.Processed += len(leads)

	if len(repaired) > 0 {
		if err := e.leads.UpdateCampaign(ctx, repaired, active.CampaignID, active.CadenceID); err != nil {
			// The dialer already has these leads; surface the drift rather
			// than failing the whole job
			j.RecordError(fmt.Sprintf("campaign update failed for %d leads: %v", len(repaired), err))
		}
	}

	e.refreshProgress(j, started)
	e.update(ctx, j)
	return nil
}

// refreshProgress recomputes percentage and the ETA from the running average
func (e *Engine) refreshProgress(j *job.Job, started time.Time) {
	if j.Total <= 0 || j.Processed <= 0 {
		return
	}
	j.Progress = j.Processed * 100 / j.Total
	elapsed := e.now().Sub(started)
	avgPerLead := elapsed / time.Duration(j.Processed)
	remaining := time.Duration(j.Total-j.Processed) * avgPerLead
	j.ETA = fmt.Sprintf("%ds", int(remaining.Round(time.Second).Seconds()))
}

// ListAll runs the detection-only scan: per-list mismatch counts against the
// active routing, no writes.
func (e *Engine) ListAll(ctx context.Context) ([]ListReport, error) {
	configs, err := e.routings.AllActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading active routings")
	}

	reports := make([]ListReport, 0, len(configs))
	totalMismatched := 0
	for _, cfg := range configs {
		if cfg.Destination != lead.DestinationInternal {
			continue
		}

		total, err := e.leads.CountByList(ctx, cfg.ListID)
		if err != nil {
			return nil, errors.Wrap(err, "counting leads for list "+cfg.ListID)
		}
		mismatched, err := e.leads.CountMismatched(ctx, cfg.ListID, cfg.CampaignID)
		if err != nil {
			return nil, errors.Wrap(err, "counting mismatches for list "+cfg.ListID)
		}

		report := ListReport{
			ListID:           cfg.ListID,
			Description:      cfg.Description,
			ActiveCampaignID: cfg.CampaignID,
			TotalLeads:       total,
			MismatchedLeads:  mismatched,
		}
		if total > 0 {
			report.MismatchPercentage = mismatched * 100 / total
		}
		totalMismatched += mismatched
		reports = append(reports, report)
	}

	if e.metrics != nil {
		e.metrics.MismatchedLeads.Set(float64(totalMismatched))
	}
	return reports, nil
}

func (e *Engine) update(ctx context.Context, j *job.Job) {
	if err := e.jobs.Update(ctx, j); err != nil {
		e.logger.Warn("job update failed",
			zap.String("job_id", j.ID.String()),
			zap.Error(err))
	}
}
