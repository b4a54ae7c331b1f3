package compliance

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/batch"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/infrastructure/config"
	"github.com/juicedmedia/lead-compliance-backend/internal/metrics"
)

// Engine runs the full checker set against a phone number and aggregates the
// tri-state results into one summary. Checkers are independent, so they run
// concurrently with no ordering guarantee.
type Engine struct {
	checkers []Checker
	runner   *batch.Runner[string, compliance.Summary]
	logger   *zap.Logger
	metrics  *metrics.Registry
}

// NewEngine builds an engine over an explicit checker set
func NewEngine(checkers []Checker, waveSize int, pacer batch.Pacer, m *metrics.Registry, logger *zap.Logger) *Engine {
	e := &Engine{
		checkers: checkers,
		logger:   logger,
		metrics:  m,
	}
	e.runner = batch.NewRunner[string, compliance.Summary](waveSize, pacer, logger)
	return e
}

// NewDefaultEngine wires the production checker set from configuration
func NewDefaultEngine(cfg *config.Config, dncStore DNCStore, m *metrics.Registry, logger *zap.Logger) *Engine {
	client := &http.Client{Timeout: cfg.Checkers.CheckTimeout}
	checkers := []Checker{
		NewTCPAChecker(cfg.Checkers.TCPA, client, m, logger),
		NewBlacklistChecker(cfg.Checkers.Blacklist, client, logger),
		NewInternalDNCChecker(dncStore, logger),
		NewSynergyDNCChecker(cfg.Checkers.SynergyDNC, client, logger),
		NewPhoneValidationChecker(cfg.Checkers.PhoneValidation, client, logger),
	}
	return NewEngine(checkers, cfg.Batch.WaveSize, batch.NewRatePacer(cfg.Batch.WaveDelay), m, logger)
}

// NewDNCCheckers wires only the do-not-call pair: the internal suppression
// list and Synergy. The monthly export scrubs against these; running the
// wider stack there would suppress numbers for blacklist or line-type
// reasons that are not DNC.
func NewDNCCheckers(cfg *config.Config, dncStore DNCStore, logger *zap.Logger) []Checker {
	client := &http.Client{Timeout: cfg.Checkers.CheckTimeout}
	return []Checker{
		NewInternalDNCChecker(dncStore, logger),
		NewSynergyDNCChecker(cfg.Checkers.SynergyDNC, client, logger),
	}
}


// CheckCompliance runs every checker against one phone number and aggregates
// the results. A checker that panics contributes an indeterminate result; the
// summary is always complete.
func (e *Engine) CheckCompliance(ctx context.Context, phone string, opts Options) compliance.Summary {
	results := make([]compliance.CheckResult, len(e.checkers))

	var wg sync.WaitGroup
	for i, checker := range e.checkers {
		wg.Add(1)
		go func(idx int, ch Checker) {
			defer wg.Done()
			results[idx] = e.runChecker(ctx, ch, phone, opts)
		}(i, checker)
	}
	wg.Wait()

	summary := compliance.Aggregate(phone, results)

	e.logger.Info("compliance check completed",
		zap.String("phone", phone),
		zap.String("verdict", summary.OverallCompliant.String()),
		zap.Strings("failed_checks", summary.Totals.FailedChecks))

	return summary
}

// CheckBatch scrubs many numbers under the wave runner so bulk checks stay
// inside upstream rate limits. Results match input order.
func (e *Engine) CheckBatch(ctx context.Context, phones []string, opts Options) ([]compliance.Summary, error) {
	results, err := e.runner.Run(ctx, phones, func(ctx context.Context, phone string) (compliance.Summary, error) {
		return e.CheckCompliance(ctx, phone, opts), nil
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]compliance.Summary, len(results))
	for i, res := range results {
		summaries[i] = res.Value
	}
	return summaries, nil
}

func (e *Engine) runChecker(ctx context.Context, ch Checker, phone string, opts Options) (result compliance.CheckResult) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("checker panicked",
				zap.String("source", ch.Name()),
				zap.Any("panic", p))
			result = compliance.CheckResult{
				Source:    ch.Name(),
				Compliant: compliance.VerdictIndeterminate,
				Reasons:   []string{},
				Err:       "checker panicked",
			}
		}
	}()

	start := time.Now()
	result = ch.Check(ctx, phone, opts)

	if e.metrics != nil {
		e.metrics.ComplianceCheckDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
		e.metrics.ComplianceVerdicts.WithLabelValues(ch.Name(), result.Compliant.String()).Inc()
	}
	return result
}
