package database

import (
	"context"
	"sync"

	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

// Hub fans out table change notifications to observers. Notifications are
// coalesced: a slow observer sees at most one pending signal.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	tables map[string]struct{} // empty means every table
	ch     chan struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns a channel signalled after each committed write to any of
// tables, and a function that removes the subscription
func (h *Hub) Subscribe(tables ...string) (<-chan struct{}, func()) {
	s := &subscriber{
		tables: make(map[string]struct{}, len(tables)),
		ch:     make(chan struct{}, 1),
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
		})
	}
}

// Publish signals every subscriber watching any of tables
func (h *Hub) Publish(tables ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if !s.watches(tables) {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (s *subscriber) watches(tables []string) bool {
	if len(s.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}

// Observe returns a stream that carries load's result immediately and again
// after every committed write to any of tables. The stream closes when ctx is
// done or when load fails; a stream that closes before its first value means
// no data could be read.
func Observe[T any](ctx context.Context, hub *Hub, load func(context.Context) (T, error), tables ...string) <-chan T {
	out := make(chan T)
	changes, unsubscribe := hub.Subscribe(tables...)

	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					loggy.FromContext(ctx).Warn("Observed query failed", "tables", tables, "error", err)
				}
				return
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}

			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
