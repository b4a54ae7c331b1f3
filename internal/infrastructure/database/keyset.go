package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Row is implemented by anything enumerable with a keyset cursor. The id must
// be stable, unique, and strictly increasing under the store's ordering --
// that is what makes omissions and duplicates across batches impossible.
type Row interface {
	PagerID() string
}

// BatchFunc fetches one batch: rows with id > afterID ordered ascending by id,
// at most limit rows. An empty afterID means start from the beginning.
type BatchFunc[T Row] func(ctx context.Context, afterID string, limit int) ([]T, error)

// KeysetPager enumerates result sets larger than the query layer's row-count
// ceiling by walking an ascending-id cursor instead of offsets.
type KeysetPager[T Row] struct {
	batchSize  int
	maxBatches int
	logger     *zap.Logger
}

func NewKeysetPager[T Row](batchSize, maxBatches int, logger *zap.Logger) *KeysetPager[T] {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxBatches <= 0 {
		maxBatches = 1000
	}
	return &KeysetPager[T]{batchSize: batchSize, maxBatches: maxBatches, logger: logger}
}

// FetchAll accumulates every row the cursor reaches. The boolean reports
// whether the maxBatches safety stop cut the walk short; that is an
// operational signal, not an error.
func (p *KeysetPager[T]) FetchAll(ctx context.Context, fetch BatchFunc[T]) ([]T, bool, error) {
	var all []T
	truncated, err := p.ForEachBatch(ctx, fetch, func(batch []T) error {
		all = append(all, batch...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return all, truncated, nil
}

// ForEachBatch streams batches to the visitor without holding the whole result
// set, resuming the cursor after each batch. A visitor error aborts the walk.
// Terminates when a batch comes back short (exhausted) or when maxBatches is
// reached; the returned boolean is true in the latter case.
func (p *KeysetPager[T]) ForEachBatch(ctx context.Context, fetch BatchFunc[T], visit func(batch []T) error) (bool, error) {
	cursor := ""
	for batch := 0; batch < p.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		rows, err := fetch(ctx, cursor, p.batchSize)
		if err != nil {
			return false, fmt.Errorf("keyset batch %d (after %q): %w", batch, cursor, err)
		}
		if len(rows) == 0 {
			return false, nil
		}

		if err := visit(rows); err != nil {
			return false, err
		}

		cursor = rows[len(rows)-1].PagerID()
		if len(rows) < p.batchSize {
			return false, nil
		}
	}

	p.logger.Warn("keyset pagination hit batch safety limit",
		zap.Int("max_batches", p.maxBatches),
		zap.String("cursor", cursor))
	return true, nil
}
