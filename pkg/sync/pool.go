package sync

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBounded calls fn once for each index in [0, n), with at most limit
// calls running at once. fn reports its outcome through its own state, so a
// failure in one call never cancels the others.
func RunBounded(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) {
	if limit < 1 {
		limit = 1
	}

	var group errgroup.Group
	group.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	group.Wait()
}
