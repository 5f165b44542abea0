package nutrition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/nutrinest/internal/database"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

// Repository defines the interface for nutrition persistence operations
type Repository interface {
	// Food entries
	CreateFoodEntry(ctx context.Context, entry *FoodEntry) error
	UpdateFoodEntry(ctx context.Context, entry *FoodEntry) error
	DeleteFoodEntry(ctx context.Context, id string) error
	GetFoodEntry(ctx context.Context, id string) (*FoodEntry, error)
	ListFoodEntries(ctx context.Context, date string) ([]*FoodEntry, error)
	ObserveFoodEntries(ctx context.Context, date string) <-chan []*FoodEntry

	// Weight entries
	CreateWeightEntry(ctx context.Context, entry *WeightEntry) error
	ListWeightEntries(ctx context.Context, limit int) ([]*WeightEntry, error)

	// Daily summaries
	GetDailySummary(ctx context.Context, date string) (*DailySummary, error)
	SaveDailySummary(ctx context.Context, summary *DailySummary) error
	ObserveDailySummary(ctx context.Context, date string) <-chan *DailySummary

	// Catalog
	SearchCatalog(ctx context.Context, query string) ([]CatalogItem, error)
	SaveCatalogItems(ctx context.Context, items []CatalogItem) error
	PurgeStaleCatalog(ctx context.Context, olderThan time.Time) (int64, error)
	ObserveCatalog(ctx context.Context, query string) <-chan []CatalogItem
}

// SQLRepository implements Repository using the SQLite local store
type SQLRepository struct {
	db      *database.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLRepository creates a new nutrition SQL repository
func NewSQLRepository(db *database.DB, logger *loggy.Logger) *SQLRepository {
	return &SQLRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

const catalogSearchLimit = 50

var foodColumns = []string{
	"id", "entry_date", "meal", "name", "quantity_g", "calories", "protein_g", "carbs_g", "fat_g",
	"deleted", "revision", "pending_sync", "created_at", "updated_at", "synced_at",
}

// CreateFoodEntry saves a new food entry, pending sync
func (r *SQLRepository) CreateFoodEntry(ctx context.Context, entry *FoodEntry) error {
	query, args, err := r.builder.
		Insert(tableFoodEntries).
		Columns(foodColumns...).
		Values(
			entry.ID, entry.Date, entry.Meal, entry.Name, entry.QuantityG, entry.Calories,
			entry.ProteinG, entry.CarbsG, entry.FatG, entry.Deleted, entry.Revision, true,
			entry.CreatedAt, entry.UpdatedAt, nil,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert food entry query: %w", err)
	}

	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}, tableFoodEntries)
	if err != nil {
		return fmt.Errorf("inserting food entry: %w", err)
	}

	entry.PendingSync = true
	return nil
}

// UpdateFoodEntry saves changes to a food entry and bumps its revision so an
// in-flight push of the previous revision does not clear the pending flag
func (r *SQLRepository) UpdateFoodEntry(ctx context.Context, entry *FoodEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	query, args, err := r.builder.
		Update(tableFoodEntries).
		Set("entry_date", entry.Date).
		Set("meal", entry.Meal).
		Set("name", entry.Name).
		Set("quantity_g", entry.QuantityG).
		Set("calories", entry.Calories).
		Set("protein_g", entry.ProteinG).
		Set("carbs_g", entry.CarbsG).
		Set("fat_g", entry.FatG).
		Set("revision", sq.Expr("revision + 1")).
		Set("pending_sync", true).
		Set("updated_at", entry.UpdatedAt).
		Where(sq.Eq{"id": entry.ID, "deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update food entry query: %w", err)
	}

	if err := r.execOne(ctx, query, args, tableFoodEntries); err != nil {
		return fmt.Errorf("updating food entry %s: %w", entry.ID, err)
	}

	entry.Revision++
	entry.PendingSync = true
	return nil
}

// DeleteFoodEntry marks a food entry deleted. The row is kept, pending, so the
// deletion is pushed like any other change.
func (r *SQLRepository) DeleteFoodEntry(ctx context.Context, id string) error {
	query, args, err := r.builder.
		Update(tableFoodEntries).
		Set("deleted", true).
		Set("revision", sq.Expr("revision + 1")).
		Set("pending_sync", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete food entry query: %w", err)
	}

	if err := r.execOne(ctx, query, args, tableFoodEntries); err != nil {
		return fmt.Errorf("deleting food entry %s: %w", id, err)
	}
	return nil
}

// execOne runs a write that must affect exactly one row
func (r *SQLRepository) execOne(ctx context.Context, query string, args []any, table string) error {
	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}, table)
}

// GetFoodEntry retrieves a live food entry by ID
func (r *SQLRepository) GetFoodEntry(ctx context.Context, id string) (*FoodEntry, error) {
	query, args, err := r.builder.
		Select(foodColumns...).
		From(tableFoodEntries).
		Where(sq.Eq{"id": id, "deleted": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get food entry query: %w", err)
	}

	entry, err := scanFoodEntry(r.db.SQL().QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting food entry %s: %w", id, err)
	}
	return entry, nil
}

// ListFoodEntries returns the live food entries for date in logging order
func (r *SQLRepository) ListFoodEntries(ctx context.Context, date string) ([]*FoodEntry, error) {
	query, args, err := r.builder.
		Select(foodColumns...).
		From(tableFoodEntries).
		Where(sq.Eq{"entry_date": date, "deleted": false}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list food entries query: %w", err)
	}

	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing food entries: %w", err)
	}
	defer rows.Close()

	var entries []*FoodEntry
	for rows.Next() {
		entry, err := scanFoodEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning food entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating food entries: %w", err)
	}
	return entries, nil
}

// ObserveFoodEntries streams the food entries for date, re-emitting after writes
func (r *SQLRepository) ObserveFoodEntries(ctx context.Context, date string) <-chan []*FoodEntry {
	return database.Observe(ctx, r.db.Hub(), func(ctx context.Context) ([]*FoodEntry, error) {
		return r.ListFoodEntries(ctx, date)
	}, tableFoodEntries)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFoodEntry(row rowScanner) (*FoodEntry, error) {
	var e FoodEntry
	var syncedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.Date, &e.Meal, &e.Name, &e.QuantityG, &e.Calories, &e.ProteinG, &e.CarbsG, &e.FatG,
		&e.Deleted, &e.Revision, &e.PendingSync, &e.CreatedAt, &e.UpdatedAt, &syncedAt,
	)
	if err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		e.SyncedAt = &syncedAt.Time
	}
	return &e, nil
}

// CreateWeightEntry saves a new weight entry, pending sync
func (r *SQLRepository) CreateWeightEntry(ctx context.Context, entry *WeightEntry) error {
	query, args, err := r.builder.
		Insert(tableWeightEntries).
		Columns("id", "entry_date", "weight_kg", "note", "deleted", "revision", "pending_sync", "created_at", "updated_at").
		Values(entry.ID, entry.Date, entry.WeightKg, entry.Note, false, entry.Revision, true, entry.CreatedAt, entry.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert weight entry query: %w", err)
	}

	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}, tableWeightEntries)
	if err != nil {
		return fmt.Errorf("inserting weight entry: %w", err)
	}

	entry.PendingSync = true
	return nil
}

// ListWeightEntries returns the most recent weight entries, newest first
func (r *SQLRepository) ListWeightEntries(ctx context.Context, limit int) ([]*WeightEntry, error) {
	q := r.builder.
		Select("id", "entry_date", "weight_kg", "note", "revision", "pending_sync", "created_at", "updated_at").
		From(tableWeightEntries).
		Where(sq.Eq{"deleted": false}).
		OrderBy("entry_date DESC", "created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list weight entries query: %w", err)
	}

	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing weight entries: %w", err)
	}
	defer rows.Close()

	var entries []*WeightEntry
	for rows.Next() {
		var e WeightEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.WeightKg, &e.Note, &e.Revision, &e.PendingSync, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning weight entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating weight entries: %w", err)
	}
	return entries, nil
}

// GetDailySummary returns the cached summary for date, or nil when none is cached
func (r *SQLRepository) GetDailySummary(ctx context.Context, date string) (*DailySummary, error) {
	query, args, err := r.builder.
		Select("summary_date", "calorie_goal", "calories_consumed", "protein_g", "carbs_g", "fat_g", "last_synced_at").
		From(tableDailySummaries).
		Where(sq.Eq{"summary_date": date}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get daily summary query: %w", err)
	}

	var s DailySummary
	err = r.db.SQL().QueryRowContext(ctx, query, args...).Scan(
		&s.Date, &s.CalorieGoal, &s.CaloriesConsumed, &s.ProteinG, &s.CarbsG, &s.FatG, &s.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting daily summary %s: %w", date, err)
	}
	return &s, nil
}

// SaveDailySummary replaces the cached summary for its date
func (r *SQLRepository) SaveDailySummary(ctx context.Context, s *DailySummary) error {
	query, args, err := r.builder.
		Insert(tableDailySummaries).
		Columns("summary_date", "calorie_goal", "calories_consumed", "protein_g", "carbs_g", "fat_g", "last_synced_at").
		Values(s.Date, s.CalorieGoal, s.CaloriesConsumed, s.ProteinG, s.CarbsG, s.FatG, s.LastSyncedAt).
		Suffix(`ON CONFLICT(summary_date) DO UPDATE SET
			calorie_goal = excluded.calorie_goal,
			calories_consumed = excluded.calories_consumed,
			protein_g = excluded.protein_g,
			carbs_g = excluded.carbs_g,
			fat_g = excluded.fat_g,
			last_synced_at = excluded.last_synced_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building save daily summary query: %w", err)
	}

	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}, tableDailySummaries)
	if err != nil {
		return fmt.Errorf("saving daily summary %s: %w", s.Date, err)
	}
	return nil
}

// ObserveDailySummary streams the cached summary for date; nil means none is cached
func (r *SQLRepository) ObserveDailySummary(ctx context.Context, date string) <-chan *DailySummary {
	return database.Observe(ctx, r.db.Hub(), func(ctx context.Context) (*DailySummary, error) {
		return r.GetDailySummary(ctx, date)
	}, tableDailySummaries)
}

var catalogColumns = []string{
	"id", "name", "brand", "calories_per_100g", "protein_per_100g", "carbs_per_100g", "fat_per_100g",
	"is_cached", "last_synced_at",
}

// SearchCatalog returns cached catalog items whose name or brand contains query
func (r *SQLRepository) SearchCatalog(ctx context.Context, query string) ([]CatalogItem, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"

	sqlQuery, args, err := r.builder.
		Select(catalogColumns...).
		From(tableCatalogItems).
		Where(sq.Or{sq.Like{"name": pattern}, sq.Like{"brand": pattern}}).
		OrderBy("name", "id").
		Limit(catalogSearchLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search catalog query: %w", err)
	}

	rows, err := r.db.SQL().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("searching catalog: %w", err)
	}
	defer rows.Close()

	var items []CatalogItem
	for rows.Next() {
		var item CatalogItem
		var syncedAt sql.NullTime
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Brand, &item.CaloriesPer100g, &item.ProteinPer100g,
			&item.CarbsPer100g, &item.FatPer100g, &item.IsCached, &syncedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning catalog item: %w", err)
		}
		if syncedAt.Valid {
			item.LastSyncedAt = &syncedAt.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog items: %w", err)
	}
	return items, nil
}

// SaveCatalogItems upserts items in one transaction
func (r *SQLRepository) SaveCatalogItems(ctx context.Context, items []CatalogItem) error {
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		if item.IsCached && item.LastSyncedAt == nil {
			return fmt.Errorf("catalog item %s is cached without a sync time", item.ID)
		}
	}

	return r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			query, args, err := r.builder.
				Insert(tableCatalogItems).
				Columns(catalogColumns...).
				Values(
					item.ID, item.Name, item.Brand, item.CaloriesPer100g, item.ProteinPer100g,
					item.CarbsPer100g, item.FatPer100g, item.IsCached, item.LastSyncedAt,
				).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					brand = excluded.brand,
					calories_per_100g = excluded.calories_per_100g,
					protein_per_100g = excluded.protein_per_100g,
					carbs_per_100g = excluded.carbs_per_100g,
					fat_per_100g = excluded.fat_per_100g,
					is_cached = excluded.is_cached,
					last_synced_at = excluded.last_synced_at`).
				ToSql()
			if err != nil {
				return fmt.Errorf("building save catalog item query: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("saving catalog item %s: %w", item.ID, err)
			}
		}
		return nil
	}, tableCatalogItems)
}

// PurgeStaleCatalog deletes catalog items last synced before olderThan, or
// never synced, and returns how many were removed
func (r *SQLRepository) PurgeStaleCatalog(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := r.builder.
		Delete(tableCatalogItems).
		Where(sq.Or{sq.Eq{"last_synced_at": nil}, sq.Lt{"last_synced_at": olderThan}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building purge catalog query: %w", err)
	}

	var purged int64
	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	}, tableCatalogItems)
	if err != nil {
		return 0, fmt.Errorf("purging stale catalog items: %w", err)
	}

	r.logger.Info("Purged stale catalog items", "count", purged, "older_than", olderThan)
	return purged, nil
}

// ObserveCatalog streams cached search results for query, re-emitting after writes
func (r *SQLRepository) ObserveCatalog(ctx context.Context, query string) <-chan []CatalogItem {
	return database.Observe(ctx, r.db.Hub(), func(ctx context.Context) ([]CatalogItem, error) {
		return r.SearchCatalog(ctx, query)
	}, tableCatalogItems)
}
