package fn

import (
	"context"
	"sync"
	"time"
)

// ParMapCtx applies f with at most workers goroutines, returning Results in
// input order. workers <= 0 means one goroutine per item. Each call gets its own
// derived context, limited by timeout when timeout > 0. Items not yet started
// when ctx is cancelled fail with ctx.Err(); items already running finish.
func ParMapCtx[T, U any](ctx context.Context, items []T, workers int, timeout time.Duration, f func(context.Context, T) (U, error)) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		select {
		case <-ctx.Done():
			out[i] = Err[U](ctx.Err())
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			callCtx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()
			out[i] = FromPair(f(callCtx, v))
		}(i, v)
	}
	wg.Wait()
	return out
}
