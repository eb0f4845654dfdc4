package gates

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/types"
)

// ForEach runs fn over samples with at most workers in flight. It returns once
// every sample is done or the first error. fn must only touch its own sample.
func ForEach(ctx context.Context, workers int, samples []*types.Sample, tr ports.Tracker, fn func(context.Context, *types.Sample) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, s := range samples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := fn(gctx, s)
			if tr != nil {
				tr.Increment()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Partition splits samples, preserving order.
func Partition(samples []*types.Sample, reject func(*types.Sample) bool) (keep, rejected []*types.Sample) {
	keep = make([]*types.Sample, 0, len(samples))
	for _, s := range samples {
		if reject(s) {
			rejected = append(rejected, s)
			continue
		}
		keep = append(keep, s)
	}
	return keep, rejected
}
