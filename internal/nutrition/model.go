// Package nutrition provides food logging, weight tracking and the cached
// views of server-side nutrition data
package nutrition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tildaslashalef/nutrinest/internal/outbox"
	"github.com/tildaslashalef/nutrinest/internal/ulid"
)

// DateLayout is the format of entry and summary dates
const DateLayout = "2006-01-02"

// Record kinds pushed by the sync scheduler
const (
	KindFoodEntry   outbox.Kind = "food_entry"
	KindWeightEntry outbox.Kind = "weight_entry"
)

// Tables watched by observers
const (
	tableFoodEntries    = "food_entries"
	tableWeightEntries  = "weight_entries"
	tableDailySummaries = "daily_summaries"
	tableCatalogItems   = "catalog_items"
)

var (
	// ErrNotFound is returned when an entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidEntry is returned when an entry fails validation
	ErrInvalidEntry = errors.New("invalid entry")
)

// Meal is the meal a food entry belongs to
type Meal string

// Meals
const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealDinner    Meal = "dinner"
	MealSnack     Meal = "snack"
)

// ParseMeal parses a meal name, defaulting to snack when empty
func ParseMeal(s string) (Meal, error) {
	switch m := Meal(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MealSnack, nil
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown meal %q", ErrInvalidEntry, s)
	}
}

// FoodEntry is a food the user logged. Local edits mark it pending until the
// server acknowledges the exact revision.
type FoodEntry struct {
	ID          string     `json:"id"`
	Date        string     `json:"entry_date"`
	Meal        Meal       `json:"meal"`
	Name        string     `json:"name"`
	QuantityG   float64    `json:"quantity_g"`
	Calories    float64    `json:"calories"`
	ProteinG    float64    `json:"protein_g"`
	CarbsG      float64    `json:"carbs_g"`
	FatG        float64    `json:"fat_g"`
	Deleted     bool       `json:"deleted"`
	Revision    int64      `json:"revision"`
	PendingSync bool       `json:"pending_sync"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
}

// NewFoodEntry creates a pending food entry
func NewFoodEntry(date string, meal Meal, name string, quantityG, calories float64) (*FoodEntry, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEntry)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if quantityG < 0 || calories < 0 {
		return nil, fmt.Errorf("%w: quantity and calories must not be negative", ErrInvalidEntry)
	}

	now := time.Now().UTC()
	return &FoodEntry{
		ID:          ulid.FoodEntryID(),
		Date:        date,
		Meal:        meal,
		Name:        strings.TrimSpace(name),
		QuantityG:   quantityG,
		Calories:    calories,
		Revision:    1,
		PendingSync: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// WeightEntry is a body weight measurement
type WeightEntry struct {
	ID          string     `json:"id"`
	Date        string     `json:"entry_date"`
	WeightKg    float64    `json:"weight_kg"`
	Note        string     `json:"note,omitempty"`
	Deleted     bool       `json:"deleted"`
	Revision    int64      `json:"revision"`
	PendingSync bool       `json:"pending_sync"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
}

// NewWeightEntry creates a pending weight entry
func NewWeightEntry(date string, weightKg float64, note string) (*WeightEntry, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidEntry)
	}
	if weightKg <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", ErrInvalidEntry)
	}

	now := time.Now().UTC()
	return &WeightEntry{
		ID:          ulid.WeightEntryID(),
		Date:        date,
		WeightKg:    weightKg,
		Note:        note,
		Revision:    1,
		PendingSync: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DailySummary is the server's totals for one day. The server is
// authoritative; the local copy is a cache.
type DailySummary struct {
	Date             string    `json:"date"`
	CalorieGoal      float64   `json:"calorie_goal"`
	CaloriesConsumed float64   `json:"calories_consumed"`
	ProteinG         float64   `json:"protein_g"`
	CarbsG           float64   `json:"carbs_g"`
	FatG             float64   `json:"fat_g"`
	LastSyncedAt     time.Time `json:"last_synced_at"`
}

// Remaining returns the calories left for the day, never negative
func (s *DailySummary) Remaining() float64 {
	if s.CaloriesConsumed >= s.CalorieGoal {
		return 0
	}
	return s.CalorieGoal - s.CaloriesConsumed
}

// CatalogItem is a food from the server catalog. An item with IsCached set
// always has LastSyncedAt.
type CatalogItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Brand           string     `json:"brand,omitempty"`
	CaloriesPer100g float64    `json:"calories_per_100g"`
	ProteinPer100g  float64    `json:"protein_per_100g"`
	CarbsPer100g    float64    `json:"carbs_per_100g"`
	FatPer100g      float64    `json:"fat_per_100g"`
	IsCached        bool       `json:"is_cached"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
}

// IsStale reports whether the item was last synced more than threshold ago.
// Items that were never synced are stale.
func (c CatalogItem) IsStale(now time.Time, threshold time.Duration) bool {
	if !c.IsCached || c.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*c.LastSyncedAt) > threshold
}

// CaloriesFor returns the calories in quantityG grams of the item
func (c CatalogItem) CaloriesFor(quantityG float64) float64 {
	return c.CaloriesPer100g * quantityG / 100
}

// SyncTables returns the syncable tables pushed by the outbound queue
func SyncTables() []outbox.Table {
	return []outbox.Table{
		{
			Kind:    KindFoodEntry,
			Name:    tableFoodEntries,
			Columns: []string{"entry_date", "meal", "name", "quantity_g", "calories", "protein_g", "carbs_g", "fat_g", "deleted", "updated_at"},
		},
		{
			Kind:    KindWeightEntry,
			Name:    tableWeightEntries,
			Columns: []string{"entry_date", "weight_kg", "note", "deleted", "updated_at"},
		},
	}
}
