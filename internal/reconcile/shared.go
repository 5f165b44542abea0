package reconcile

import (
	"context"

	"github.com/tildaslashalef/nutrinest/internal/resource"
	"golang.org/x/sync/singleflight"
)

// Shared returns a copy of src whose Fetch is deduplicated by key: concurrent
// reconciliations of the same key share one in-flight request. The shared
// request is detached from any single caller's cancellation; a caller that
// gives up stops waiting without failing the others.
func Shared[T, R any](group *singleflight.Group, key string, src Source[T, R]) Source[T, R] {
	fetch := src.Fetch
	src.Fetch = func(ctx context.Context) (R, error) {
		ch := group.DoChan(key, func() (any, error) {
			return fetch(context.WithoutCancel(ctx))
		})

		var zero R
		select {
		case res := <-ch:
			if res.Err != nil {
				return zero, res.Err
			}
			v, _ := res.Val.(R)
			return v, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return src
}

// Collect subscribes to s and returns every emission until the stream closes
func Collect[T any](ctx context.Context, s Stream[T]) []resource.Resource[T] {
	var all []resource.Resource[T]
	for r := range s.Subscribe(ctx) {
		all = append(all, r)
	}
	return all
}

// Settled subscribes to s and returns the first Success or Error emission,
// then stops the subscription. It returns false when the stream closes first.
func Settled[T any](ctx context.Context, s Stream[T]) (resource.Resource[T], bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for r := range s.Subscribe(ctx) {
		if !r.IsLoading() {
			return r, true
		}
	}
	return resource.Resource[T]{}, false
}
