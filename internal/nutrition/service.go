package nutrition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/cache"
	"github.com/tildaslashalef/nutrinest/internal/config"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
	"github.com/tildaslashalef/nutrinest/internal/reconcile"
	"golang.org/x/sync/singleflight"
)

// Fetcher reads server-authoritative nutrition data
type Fetcher interface {
	FetchDailySummary(ctx context.Context, date string) (*DailySummary, error)
	SearchCatalog(ctx context.Context, query string) ([]CatalogItem, error)
}

// FoodInput holds the user-editable fields of a food entry
type FoodInput struct {
	Date      string
	Meal      Meal
	Name      string
	QuantityG float64
	Calories  float64
	ProteinG  float64
	CarbsG    float64
	FatG      float64
}

// Service provides nutrition operations
type Service struct {
	repo    Repository
	fetcher Fetcher
	cache   *cache.Cache
	cfg     config.CacheConfig
	group   singleflight.Group
	logger  *loggy.Logger
	now     func() time.Time
}

// NewService creates a nutrition service. A nil fetcher makes every read
// serve stored data only.
func NewService(repo Repository, fetcher Fetcher, c *cache.Cache, cfg config.CacheConfig, logger *loggy.Logger) *Service {
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// fetched is a server response and the time it was received. It is what the
// memo cache holds, so a memoized response keeps its original sync time.
type fetched[T any] struct {
	value T
	at    time.Time
}

func memoFetch[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (fetched[T], error) {
	return cache.Load(ctx, s.cache, key, s.cfg.TTL, func(ctx context.Context) (fetched[T], error) {
		v, err := load(ctx)
		if err != nil {
			return fetched[T]{}, err
		}
		return fetched[T]{value: v, at: s.now().UTC()}, nil
	})
}

func summaryKey(date string) string { return "summary:" + date }

func catalogKey(query string) string { return "catalog:" + normalizeQuery(query) }

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// DailySummary streams the summary for date: the cached copy first, then the
// server's copy once fetched and saved. When the server cannot be reached the
// cached copy is streamed as an Error.
func (s *Service) DailySummary(date string) reconcile.Stream[*DailySummary] {
	key := summaryKey(date)

	src := reconcile.Source[*DailySummary, fetched[*DailySummary]]{
		Name: "daily_summary",
		Query: func(ctx context.Context) <-chan *DailySummary {
			return s.repo.ObserveDailySummary(ctx, date)
		},
		Fetch: func(ctx context.Context) (fetched[*DailySummary], error) {
			return memoFetch(ctx, s, key, func(ctx context.Context) (*DailySummary, error) {
				return s.fetcher.FetchDailySummary(ctx, date)
			})
		},
		Save: func(ctx context.Context, remote fetched[*DailySummary]) error {
			if remote.value == nil {
				return fmt.Errorf("server returned no summary for %s", date)
			}
			saved := *remote.value
			saved.Date = date
			saved.LastSyncedAt = remote.at
			return s.repo.SaveDailySummary(ctx, &saved)
		},
		ShouldFetch: func(*DailySummary) bool {
			return s.fetcher != nil
		},
		OnFetchFailed: func(ctx context.Context, err error) {
			s.cache.Delete(key)
			loggy.FromContext(ctx).Debug("Daily summary fetch failed", "date", date, "error", err)
		},
	}

	return reconcile.NetworkBound(reconcile.Shared(&s.group, key, src))
}

// SearchCatalog streams catalog search results. Cached results are served
// without contacting the server unless one of them is older than the
// staleness threshold or nothing is cached for the query.
func (s *Service) SearchCatalog(query string) reconcile.Stream[[]CatalogItem] {
	key := catalogKey(query)

	src := reconcile.Source[[]CatalogItem, fetched[[]CatalogItem]]{
		Name: "catalog_search",
		Query: func(ctx context.Context) <-chan []CatalogItem {
			return s.repo.ObserveCatalog(ctx, query)
		},
		Fetch: func(ctx context.Context) (fetched[[]CatalogItem], error) {
			return memoFetch(ctx, s, key, func(ctx context.Context) ([]CatalogItem, error) {
				return s.fetcher.SearchCatalog(ctx, query)
			})
		},
		Save: func(ctx context.Context, remote fetched[[]CatalogItem]) error {
			syncedAt := remote.at
			items := make([]CatalogItem, len(remote.value))
			for i, item := range remote.value {
				item.IsCached = true
				item.LastSyncedAt = &syncedAt
				items[i] = item
			}
			return s.repo.SaveCatalogItems(ctx, items)
		},
		ShouldFetch: func(cached []CatalogItem) bool {
			if s.fetcher == nil {
				return false
			}
			return s.catalogStale(cached)
		},
		OnFetchFailed: func(ctx context.Context, err error) {
			s.cache.Delete(key)
			loggy.FromContext(ctx).Debug("Catalog search failed", "query", query, "error", err)
		},
	}

	return reconcile.NetworkBound(reconcile.Shared(&s.group, key, src))
}

func (s *Service) catalogStale(items []CatalogItem) bool {
	if len(items) == 0 {
		return true
	}
	now := s.now()
	for _, item := range items {
		if item.IsStale(now, s.cfg.StalenessThreshold) {
			return true
		}
	}
	return false
}

// LogFood records a food entry, pending sync
func (s *Service) LogFood(ctx context.Context, in FoodInput) (*FoodEntry, error) {
	entry, err := NewFoodEntry(in.Date, in.Meal, in.Name, in.QuantityG, in.Calories)
	if err != nil {
		return nil, err
	}
	entry.ProteinG, entry.CarbsG, entry.FatG = in.ProteinG, in.CarbsG, in.FatG

	if err := s.repo.CreateFoodEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.cache.Delete(summaryKey(entry.Date))

	s.logger.Info("Food logged", "id", entry.ID, "date", entry.Date, "calories", entry.Calories)
	return entry, nil
}

// UpdateFood replaces the editable fields of a food entry
func (s *Service) UpdateFood(ctx context.Context, id string, in FoodInput) (*FoodEntry, error) {
	entry, err := s.repo.GetFoodEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := NewFoodEntry(in.Date, in.Meal, in.Name, in.QuantityG, in.Calories)
	if err != nil {
		return nil, err
	}
	previousDate := entry.Date
	entry.Date, entry.Meal, entry.Name = updated.Date, updated.Meal, updated.Name
	entry.QuantityG, entry.Calories = updated.QuantityG, updated.Calories
	entry.ProteinG, entry.CarbsG, entry.FatG = in.ProteinG, in.CarbsG, in.FatG

	if err := s.repo.UpdateFoodEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.cache.Delete(summaryKey(previousDate))
	s.cache.Delete(summaryKey(entry.Date))

	s.logger.Info("Food updated", "id", entry.ID, "revision", entry.Revision)
	return entry, nil
}

// DeleteFood deletes a food entry
func (s *Service) DeleteFood(ctx context.Context, id string) error {
	entry, err := s.repo.GetFoodEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFoodEntry(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(summaryKey(entry.Date))

	s.logger.Info("Food deleted", "id", id)
	return nil
}

// ListFood returns the food entries logged for date
func (s *Service) ListFood(ctx context.Context, date string) ([]*FoodEntry, error) {
	return s.repo.ListFoodEntries(ctx, date)
}

// ObserveFood streams the food entries for date, re-emitting after local writes
func (s *Service) ObserveFood(ctx context.Context, date string) <-chan []*FoodEntry {
	return s.repo.ObserveFoodEntries(ctx, date)
}

// LogWeight records a weight measurement, pending sync
func (s *Service) LogWeight(ctx context.Context, date string, weightKg float64, note string) (*WeightEntry, error) {
	entry, err := NewWeightEntry(date, weightKg, note)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateWeightEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Weight logged", "id", entry.ID, "date", entry.Date, "weight_kg", entry.WeightKg)
	return entry, nil
}

// ListWeight returns the most recent weight entries
func (s *Service) ListWeight(ctx context.Context, limit int) ([]*WeightEntry, error) {
	return s.repo.ListWeightEntries(ctx, limit)
}

// PurgeStaleCatalog removes catalog items not synced within the configured
// purge window and drops memoized catalog responses
func (s *Service) PurgeStaleCatalog(ctx context.Context) (int64, error) {
	if s.cfg.PurgeAfter <= 0 {
		return 0, fmt.Errorf("catalog purge window must be positive")
	}

	n, err := s.repo.PurgeStaleCatalog(ctx, s.now().Add(-s.cfg.PurgeAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Flush()
	}
	return n, nil
}

// Totals sums the macros of entries
func Totals(entries []*FoodEntry) (calories, protein, carbs, fat float64) {
	for _, e := range entries {
		calories += e.Calories
		protein += e.ProteinG
		carbs += e.CarbsG
		fat += e.FatG
	}
	return calories, protein, carbs, fat
}
