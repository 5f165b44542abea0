// Package reconcile implements cache-then-network reads. A stream shows the
// locally stored value first, refreshes it from the server when needed, and
// always falls back to the stored value when the server cannot be reached.
package reconcile

import (
	"context"
	"errors"

	"github.com/tildaslashalef/nutrinest/internal/errkind"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/metrics"
	"github.com/tildaslashalef/nutrinest/internal/resource"
)

// Source describes one reconciled resource. T is the locally stored shape and
// R the shape returned by the server.
type Source[T, R any] struct {
	// Name labels logs and metrics
	Name string

	// Query streams the stored value, re-emitting after local writes. The
	// stream must close when ctx is done.
	Query func(ctx context.Context) <-chan T

	// Fetch loads the authoritative value from the server
	Fetch func(ctx context.Context) (R, error)

	// Save persists a fetched value atomically
	Save func(ctx context.Context, remote R) error

	// ShouldFetch decides from the stored value whether to go to the
	// server. Nil means always.
	ShouldFetch func(cached T) bool

	// OnFetchFailed is called once per failed fetch or save. Nil means no-op.
	OnFetchFailed func(ctx context.Context, err error)
}

// Stream is a cold stream of resources. Every Subscribe runs the whole
// reconciliation again.
type Stream[T any] struct {
	run func(ctx context.Context, out chan<- resource.Resource[T])
}

// Subscribe starts a reconciliation. The channel closes once the query stream
// completes or ctx is done; cancellation emits nothing further.
func (s Stream[T]) Subscribe(ctx context.Context) <-chan resource.Resource[T] {
	out := make(chan resource.Resource[T])
	go func() {
		defer close(out)
		s.run(ctx, out)
	}()
	return out
}

// NetworkBound builds the reconciliation stream for src.
//
// The first stored value is emitted as Loading, then Fetch runs. On success
// the result is saved and every stored value is emitted as Success; on
// failure every stored value is emitted as Error with a classified message.
// When ShouldFetch rejects the stored value the server is not contacted and
// every stored value, the first included, is emitted as Success.
func NetworkBound[T, R any](src Source[T, R]) Stream[T] {
	name := src.Name
	if name == "" {
		name = "resource"
	}

	return Stream[T]{run: func(ctx context.Context, out chan<- resource.Resource[T]) {
		logger := loggy.FromContext(ctx).With("resource", name)

		firstCtx, cancelFirst := context.WithCancel(ctx)
		first := src.Query(firstCtx)

		var cached T
		select {
		case v, ok := <-first:
			if ok {
				cached = v
			}
		case <-ctx.Done():
			cancelFirst()
			return
		}

		if src.ShouldFetch != nil && !src.ShouldFetch(cached) {
			defer cancelFirst()
			logger.Debug("Stored value is fresh, skipping fetch")
			if !emit(ctx, out, name, resource.Success(cached)) {
				return
			}
			for v := range first {
				if !emit(ctx, out, name, resource.Success(v)) {
					return
				}
			}
			return
		}
		cancelFirst()

		if !emit(ctx, out, name, resource.Loading(cached)) {
			return
		}

		err := fetchAndSave(ctx, src)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			relay(ctx, src.Query(ctx), out, name, resource.Success[T])
			return
		}

		if src.OnFetchFailed != nil {
			src.OnFetchFailed(ctx, err)
		}

		class := errkind.Classify(err)
		metrics.FetchFailures.WithLabelValues(name, class.Kind.String()).Inc()
		logger.Warn("Fetch failed, serving stored data",
			"kind", class.String(),
			"error", err)

		relay(ctx, src.Query(ctx), out, name, func(v T) resource.Resource[T] {
			return resource.Error(class.Message, v, err)
		})
	}}
}

func fetchAndSave[T, R any](ctx context.Context, src Source[T, R]) error {
	remote, err := src.Fetch(ctx)
	if err != nil {
		return err
	}
	if err := src.Save(ctx, remote); err != nil {
		return &SaveError{Err: err}
	}
	return nil
}

// relay emits wrap(v) for every value of values. A stream that completes
// without a value still yields one emission carrying absent data.
func relay[T any](ctx context.Context, values <-chan T, out chan<- resource.Resource[T], name string, wrap func(T) resource.Resource[T]) {
	seen := false
	for v := range values {
		seen = true
		if !emit(ctx, out, name, wrap(v)) {
			return
		}
	}
	if !seen && ctx.Err() == nil {
		var zero T
		emit(ctx, out, name, wrap(zero))
	}
}

func emit[T any](ctx context.Context, out chan<- resource.Resource[T], name string, r resource.Resource[T]) bool {
	select {
	case out <- r:
		metrics.ResourceEmissions.WithLabelValues(name, r.State().String()).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// SaveError wraps a failure to persist a successfully fetched value
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return "saving fetched data: " + e.Err.Error() }

func (e *SaveError) Unwrap() error { return e.Err }

// IsSaveError reports whether err came from Save rather than Fetch
func IsSaveError(err error) bool {
	var se *SaveError
	return errors.As(err, &se)
}
