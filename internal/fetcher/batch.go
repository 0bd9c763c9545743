package fetcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions configures concurrency and pacing for BatchFetch.
type BatchOptions struct {
	Concurrency int
	BatchPause  time.Duration
}

// BatchFetch runs fn over items with bounded concurrency, pausing for
// opts.BatchPause between each slice of opts.Concurrency items. A failing
// fn for one item does not stop the others; its error is returned in the
// errs slice at the corresponding index.
func BatchFetch[T, R any](ctx context.Context, items []T, opts BatchOptions, fn func(ctx context.Context, item T) (R, error)) ([]R, []error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	for start := 0; start < len(items); start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			idx := i
			g.Go(func() error {
				r, err := fn(gctx, items[idx])
				results[idx] = r
				errs[idx] = err
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) && opts.BatchPause > 0 {
			t := time.NewTimer(opts.BatchPause)
			select {
			case <-ctx.Done():
				t.Stop()
				return results, errs
			case <-t.C:
			}
		}
	}

	return results, errs
}
