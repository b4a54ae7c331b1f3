package dncexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	domaincompliance "github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/errors"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/database"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
)

// Record is one list's scrub result for one month, upserted on
// (list_id, year, month) so re-running an export refreshes the row.
type Record struct {
	ListID      string    `json:"list_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	TotalLeads  int       `json:"total_leads"`
	DNCMatches  int       `json:"dnc_matches"`
	DNCRate     string    `json:"dnc_rate"`
	CSVData     string    `json:"csv_data"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LeadSource reads the month's leads. Both queries paginate by keyset cursor;
// the month window is [first of month, first of next month).
type LeadSource interface {
	FetchMonthBatch(ctx context.Context, year, month int, listIDs []string, afterID string, limit int) ([]*lead.Lead, error)
	FetchListMonthBatch(ctx context.Context, listID string, year, month int, afterID string, limit int) ([]*lead.Lead, error)
}

// ExportStore persists finished per-list records
type ExportStore interface {
	Upsert(ctx context.Context, rec *Record) error
}

// scrubOutcome is one lead's DNC status
type scrubOutcome struct {
	isDNC  bool
	reason string
}

// Exporter runs the monthly DNC export: enumerate the month's lists, scrub
// every lead against the DNC checkers, and store a per-list CSV summary.
// Scrub errors count as DNC matches; an export that understates suppressions
// is worse than one that overstates them.
type Exporter struct {
	leads    LeadSource
	exports  ExportStore
	checkers []compliance.Checker
	jobs     job.Store
	runner   *batch.Runner[*lead.Lead, scrubOutcome]
	pager    *database.KeysetPager[*lead.Lead]
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// NewExporter builds an exporter. checkers should be the DNC subset of the
// compliance engine's set (internal + Synergy), not the full scrub stack.
func NewExporter(
	leads LeadSource,
	exports ExportStore,
	checkers []compliance.Checker,
	jobs job.Store,
	waveSize int,
	pacer batch.Pacer,
	pageSize, maxBatches int,
	m *metrics.Registry,
	logger *zap.Logger,
) *Exporter {
	return &Exporter{
		leads:    leads,
		exports:  exports,
		checkers: checkers,
		jobs:     jobs,
		runner:   batch.NewRunner[*lead.Lead, scrubOutcome](waveSize, pacer, logger),
		pager:    database.NewKeysetPager[*lead.Lead](pageSize, maxBatches, logger),
		metrics:  m,
		logger:   logger,
	}
}

// StartExport creates the job and runs the export in the background. An
// empty listIDs means every list with leads in the month.
func (e *Exporter) StartExport(ctx context.Context, year, month int, listIDs []string) (*job.Job, error) {
	if year < 2000 || year > 2100 {
		return nil, errors.NewValidationError("INVALID_YEAR", "year is out of range")
	}
	if month < 1 || month > 12 {
		return nil, errors.NewValidationError("INVALID_MONTH", "month must be 1-12")
	}

	j := job.New(job.KindDNCExport)
	if err := e.jobs.Create(ctx, j); err != nil {
		return nil, errors.Wrap(err, "creating export job")
	}

	go e.run(context.WithoutCancel(ctx), j, year, month, listIDs)

	return j, nil
}

func (e *Exporter) run(ctx context.Context, j *job.Job, year, month int, listIDs []string) {
	if err := j.Start(); err != nil {
		e.logger.Error("export job start rejected", zap.Error(err))
		return
	}
	j.Progress = 5
	e.update(ctx, j)

	if err := e.export(ctx, j, year, month, listIDs); err != nil {
		e.logger.Error("dnc export job failed",
			zap.String("job_id", j.ID.String()),
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Error(err))
		if failErr := j.Fail(err.Error()); failErr == nil {
			e.update(ctx, j)
		}
		return
	}

	if err := j.Complete(); err == nil {
		e.update(ctx, j)
	}
	e.logger.Info("dnc export job completed",
		zap.String("job_id", j.ID.String()),
		zap.Int("lists", j.ListsProcessed),
		zap.Int("leads", j.LeadsFound),
		zap.Int("dnc_matches", j.DNCMatches))
}

func (e *Exporter) export(ctx context.Context, j *job.Job, year, month int, listIDs []string) error {
	uniqueLists, err := e.uniqueListIDs(ctx, year, month, listIDs)
	if err != nil {
		return errors.Wrap(err, "collecting list ids")
	}
	j.Progress = 10
	e.update(ctx, j)

	records := make([]*Record, 0, len(uniqueLists))
	for i, listID := range uniqueLists {
		rec, err := e.processList(ctx, listID, year, month)
		if err != nil {
			// One broken list must not sink the month's export
			j.RecordError(fmt.Sprintf("list %s: %v", listID, err))
			e.logger.Warn("list export failed, continuing",
				zap.String("list_id", listID),
				zap.Error(err))
			continue
		}
		records = append(records, rec)

		j.ListsProcessed = i + 1
		j.Progress = min(90, 10+(i+1)*80/len(uniqueLists))
		e.update(ctx, j)
	}

	for _, rec := range records {
		if err := e.exports.Upsert(ctx, rec); err != nil {
			return errors.Wrap(err, "saving export for list "+rec.ListID)
		}
	}
	j.Progress = 95
	e.update(ctx, j)

	j.ListsProcessed = len(records)
	for _, rec := range records {
		j.LeadsFound += rec.TotalLeads
		j.DNCMatches += rec.DNCMatches
	}
	if e.metrics != nil {
		e.metrics.ExportDNCMatches.Add(float64(j.DNCMatches))
	}
	return nil
}

// uniqueListIDs walks the month's leads once and collects distinct list ids,
// preserving first-seen order so runs are reproducible.
func (e *Exporter) uniqueListIDs(ctx context.Context, year, month int, listIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var ordered []string

	fetch := func(ctx context.Context, afterID string, limit int) ([]*lead.Lead, error) {
		return e.leads.FetchMonthBatch(ctx, year, month, listIDs, afterID, limit)
	}
	_, err := e.pager.ForEachBatch(ctx, fetch, func(leads []*lead.Lead) error {
		for _, l := range leads {
			if l.ListID != "" && !seen[l.ListID] {
				seen[l.ListID] = true
				ordered = append(ordered, l.ListID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ordered, nil
}

// processList gathers all of one list's leads for the month, scrubs them
// against the DNC checkers in waves, and assembles the CSV.
func (e *Exporter) processList(ctx context.Context, listID string, year, month int) (*Record, error) {
	fetch := func(ctx context.Context, afterID string, limit int) ([]*lead.Lead, error) {
		return e.leads.FetchListMonthBatch(ctx, listID, year, month, afterID, limit)
	}
	leads, truncated, err := e.pager.FetchAll(ctx, fetch)
	if err != nil {
		return nil, err
	}
	if truncated {
		e.logger.Warn("list enumeration hit the safety stop",
			zap.String("list_id", listID))
	}

	outcomes, err := e.scrub(ctx, leads)
	if err != nil {
		return nil, err
	}

	matches := 0
	for _, o := range outcomes {
		if o.isDNC {
			matches++
		}
	}

	rate := "0.00%"
	if len(leads) > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(matches)*100/float64(len(leads)))
	}

	return &Record{
		ListID:      listID,
		Year:        year,
		Month:       month,
		TotalLeads:  len(leads),
		DNCMatches:  matches,
		DNCRate:     rate,
		CSVData:     buildCSV(leads, outcomes),
		ProcessedAt: time.Now().UTC(),
	}, nil
}

// scrub runs the DNC checkers over the leads under the wave runner. Any
// explicit failure from any checker marks the lead DNC; the DNC checkers
// already fail closed on their own errors.
func (e *Exporter) scrub(ctx context.Context, leads []*lead.Lead) ([]scrubOutcome, error) {
	results, err := e.runner.Run(ctx, leads, func(ctx context.Context, l *lead.Lead) (scrubOutcome, error) {
		for _, checker := range e.checkers {
			result := checker.Check(ctx, l.Phone.Digits(), compliance.Options{})
			if result.Compliant == domaincompliance.VerdictFail {
				reason := checker.Name()
				if len(result.Reasons) > 0 {
					reason = result.Reasons[0]
				}
				return scrubOutcome{isDNC: true, reason: reason}, nil
			}
		}
		return scrubOutcome{}, nil
	})
	if err != nil {
		return nil, err
	}

	outcomes := make([]scrubOutcome, len(results))
	for i, res := range results {
		if res.Err != nil {
			// A panicked scrub fails closed like everything else DNC
			outcomes[i] = scrubOutcome{isDNC: true, reason: "scrub error"}
			continue
		}
		outcomes[i] = res.Value
	}
	return outcomes, nil
}

var csvHeader = []string{"Lead ID", "Phone", "First Name", "Last Name", "Email", "List ID", "Created At", "DNC Status", "DNC Reason"}

func buildCSV(leads []*lead.Lead, outcomes []scrubOutcome) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write(csvHeader)
	for i, l := range leads {
		status, reason := "Clean", ""
		if outcomes[i].isDNC {
			status, reason = "DNC", outcomes[i].reason
		}
		w.Write([]string{
			l.ID.String(),
			l.Phone.Digits(),
			l.FirstName,
			l.LastName,
			l.Email,
			l.ListID,
			l.CreatedAt.UTC().Format(time.RFC3339),
			status,
			reason,
		})
	}
	w.Flush()
	return sb.String()
}

func (e *Exporter) update(ctx context.Context, j *job.Job) {
	if err := e.jobs.Update(ctx, j); err != nil {
		e.logger.Warn("job update failed",
			zap.String("job_id", j.ID.String()),
			zap.Error(err))
	}
}
