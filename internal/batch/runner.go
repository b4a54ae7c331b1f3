// Package batch drives large external-API workloads in fixed-size waves so
// bulk operations stay under upstream rate limits. Concurrency is bounded by
// the wave size; waves run strictly sequentially with a pause between them.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result carries one worker outcome, positioned at the item's input index
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Worker processes one item. Failures must come back as the error value;
// the runner additionally converts panics into error results so a single bad
// item can never abort its wave.
type Worker[T, R any] func(ctx context.Context, item T) (R, error)

// Pacer gates the start of each wave after the first. Production uses the
// token-bucket RatePacer; tests inject Nop to avoid wall-clock sleeps.
type Pacer interface {
	Pace(ctx context.Context) error
}

// RatePacer paces waves with a token bucket refilled once per interval
type RatePacer struct {
	limiter *rate.Limiter
}

func NewRatePacer(interval time.Duration) *RatePacer {
	if interval <= 0 {
		interval = time.Nanosecond
	}
	// Burst of one with the initial token spent: Run only paces between
	// waves, and every one of those pauses must wait out a full interval.
	// A fresh limiter would hand the first pause its token for free.
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow()
	return &RatePacer{limiter: limiter}
}

func (p *RatePacer) Pace(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Nop is a Pacer that never waits
type Nop struct{}

func (Nop) Pace(context.Context) error { return nil }

// Runner executes workloads in bounded waves
type Runner[T, R any] struct {
	waveSize int
	pacer    Pacer
	logger   *zap.Logger
}

func NewRunner[T, R any](waveSize int, pacer Pacer, logger *zap.Logger) *Runner[T, R] {
	if waveSize <= 0 {
		waveSize = 1
	}
	if pacer == nil {
		pacer = Nop{}
	}
	return &Runner[T, R]{waveSize: waveSize, pacer: pacer, logger: logger}
}

// Run processes items in consecutive waves of waveSize. Within a wave all
// workers run concurrently with no ordering guarantee; across waves strict
// sequencing holds. The returned slice matches the input order. Run only
// errors when the context ends; per-item failures live in the results.
func (r *Runner[T, R]) Run(ctx context.Context, items []T, worker Worker[T, R]) ([]Result[R], error) {
	results := make([]Result[R], len(items))

	for start := 0; start < len(items); start += r.waveSize {
		if start > 0 {
			if err := r.pacer.Pace(ctx); err != nil {
				return results, err
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + r.waveSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = r.runOne(ctx, idx, items[idx], worker)
			}(i)
		}
		wg.Wait()

		if r.logger != nil {
			r.logger.Debug("wave completed",
				zap.Int("wave_start", start),
				zap.Int("wave_size", end-start))
		}
	}

	return results, nil
}

func (r *Runner[T, R]) runOne(ctx context.Context, idx int, item T, worker Worker[T, R]) (res Result[R]) {
	res.Index = idx
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("worker panic: %v", p)
		}
	}()
	res.Value, res.Err = worker(ctx, item)
	return res
}
