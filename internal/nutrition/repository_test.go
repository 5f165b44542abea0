package nutrition

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/nutrinest/internal/database"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

func newMockRepository(t *testing.T) (*SQLRepository, *database.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock database")
	t.Cleanup(func() { sqlDB.Close() })

	db := database.New(sqlDB, loggy.NewNoopLogger())
	return NewSQLRepository(db, loggy.NewNoopLogger()), db, mock
}

func TestCreateFoodEntry(t *testing.T) {
	repo, db, mock := newMockRepository(t)
	changes, unsub := db.Hub().Subscribe("food_entries")
	defer unsub()

	entry, err := NewFoodEntry("2024-03-01", MealBreakfast, "Oats", 80, 300)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO food_entries").
		WithArgs(entry.ID, "2024-03-01", MealBreakfast, "Oats", 80.0, 300.0, 0.0, 0.0, 0.0,
			false, int64(1), true, entry.CreatedAt, entry.UpdatedAt, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateFoodEntry(context.Background(), entry))

	select {
	case <-changes:
	default:
		t.Fatal("insert should notify food_entries observers")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFoodEntryBumpsRevision(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	entry := &FoodEntry{ID: "food-1", Date: "2024-03-01", Meal: MealLunch, Name: "Soup", Revision: 2}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE food_entries SET .*revision = revision \+ 1, pending_sync = \?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateFoodEntry(context.Background(), entry))
	assert.Equal(t, int64(3), entry.Revision)
	assert.True(t, entry.PendingSync)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFoodEntryNotFound(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE food_entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateFoodEntry(context.Background(), &FoodEntry{ID: "food-missing", Revision: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFoodEntryIsSoft(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE food_entries SET deleted = \?, revision = revision \+ 1, pending_sync = \?`).
		WithArgs(true, true, sqlmock.AnyArg(), false, "food-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteFoodEntry(context.Background(), "food-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFoodEntry(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(foodColumns).
		AddRow("food-1", "2024-03-01", "breakfast", "Oats", 80.0, 300.0, 10.0, 54.0, 5.0,
			int64(0), int64(2), int64(1), created, created, nil)
	mock.ExpectQuery("SELECT (.+) FROM food_entries WHERE").
		WithArgs(false, "food-1").
		WillReturnRows(rows)

	entry, err := repo.GetFoodEntry(context.Background(), "food-1")
	require.NoError(t, err)
	assert.Equal(t, MealBreakfast, entry.Meal)
	assert.Equal(t, int64(2), entry.Revision)
	assert.True(t, entry.PendingSync)
	assert.False(t, entry.Deleted)
	assert.Nil(t, entry.SyncedAt)

	mock.ExpectQuery("SELECT (.+) FROM food_entries WHERE").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetFoodEntry(context.Background(), "food-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDailySummaryMissingIsNil(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	mock.ExpectQuery("FROM daily_summaries").
		WithArgs("2024-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"summary_date"}))

	summary, err := repo.GetDailySummary(context.Background(), "2024-03-01")
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestSaveDailySummaryUpserts(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	synced := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO daily_summaries .* ON CONFLICT\(summary_date\) DO UPDATE`).
		WithArgs("2024-03-01", 2000.0, 1800.0, 90.0, 200.0, 60.0, synced).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveDailySummary(context.Background(), &DailySummary{
		Date: "2024-03-01", CalorieGoal: 2000, CaloriesConsumed: 1800,
		ProteinG: 90, CarbsG: 200, FatG: 60, LastSyncedAt: synced,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCatalog(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	synced := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM catalog_items WHERE \(name LIKE \? OR brand LIKE \?\) ORDER BY name, id LIMIT 50`).
		WithArgs("%yogurt%", "%yogurt%").
		WillReturnRows(sqlmock.NewRows(catalogColumns).
			AddRow("cat-1", "Greek Yogurt", "Fage", 97.0, 9.0, 4.0, 5.0, int64(1), synced).
			AddRow("cat-2", "Yogurt Drink", "", 60.0, 3.0, 9.0, 1.5, int64(0), nil))

	items, err := repo.SearchCatalog(context.Background(), " yogurt ")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsCached)
	require.NotNil(t, items[0].LastSyncedAt)
	assert.Equal(t, synced, *items[0].LastSyncedAt)
	assert.False(t, items[1].IsCached)
	assert.Nil(t, items[1].LastSyncedAt)
}

func TestSaveCatalogItemsRejectsCachedWithoutSyncTime(t *testing.T) {
	repo, _, mock := newMockRepository(t)

	err := repo.SaveCatalogItems(context.Background(), []CatalogItem{{ID: "cat-1", Name: "Apple", IsCached: true}})
	assert.ErrorContains(t, err, "without a sync time")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCatalogItemsInOneTransaction(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	synced := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO catalog_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO catalog_items").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.SaveCatalogItems(context.Background(), []CatalogItem{
		{ID: "cat-1", Name: "Apple", IsCached: true, LastSyncedAt: &synced},
		{ID: "cat-2", Name: "Pear", IsCached: true, LastSyncedAt: &synced},
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeStaleCatalog(t *testing.T) {
	repo, _, mock := newMockRepository(t)
	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM catalog_items WHERE \(last_synced_at IS NULL OR last_synced_at < \?\)`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := repo.PurgeStaleCatalog(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
