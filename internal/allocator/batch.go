package allocator

import (
	"context"
	"fmt"

	"github.com/gourl/shortcode/internal/metrics"
)

// AllocateBatch returns count distinct codes of the given length, all
// verified unique. Each round makes exactly one ExistsBatch call and only
// replaces the candidates that collided. No partial result is returned.
func (a *Allocator) AllocateBatch(ctx context.Context, count, length int) ([]string, error) {
	if count < 1 || count > a.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidBatchSize, count, a.cfg.MaxBatchSize)
	}
	if err := a.checkLength(length); err != nil {
		return nil, err
	}

	ceiling := count * a.cfg.BatchAttemptFactor
	drawn := 0
	seen := make(map[string]struct{}, count)
	result := make([]string, 0, count)

	for len(result) < count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		need := count - len(result)
		candidates := make([]string, 0, need)
		for len(candidates) < need {
			if drawn >= ceiling {
				metrics.RecordExhausted()
				a.log.Warn("exhausted candidates allocating batch",
					"count", count, "length", length, "unique", len(result), "drawn", drawn)
				return nil, &ExhaustedRetriesError{Attempts: drawn, Length: length}
			}

			c, err := a.candidate(ctx, length)
			if err != nil {
				return nil, err
			}
			drawn++

			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}

			if !a.filter.Allowed(c) {
				a.stats.RecordReservedRejection()
				continue
			}
			candidates = append(candidates, c)
		}

		existing, err := a.store.ExistsBatch(ctx, candidates)
		if err != nil {
			return nil, &StoreError{Op: "exists_batch", Err: err}
		}

		unique := 0
		for _, c := range candidates {
			if _, taken := existing[c]; taken {
				a.collide(ctx, c, drawn)
				continue
			}
			if !a.reserve(ctx, c) {
				a.collide(ctx, c, drawn)
				continue
			}
			result = append(result, c)
			unique++
		}
		a.stats.RecordUnique(unique)
	}

	return result, nil
}
