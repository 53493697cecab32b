package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roofline/internal/domain"
	"roofline/internal/errors"
	"roofline/internal/testutil"
)

// Unit Tests

func TestNewMySQLOrderRepository(t *testing.T) {
	db := &sql.DB{}
	repo := NewMySQLOrderRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

// Integration Tests

var base = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func pendingOrder(id, address string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		ID:              id,
		ProviderOrderID: domain.StringPtr("ev-" + id),
		Address:         address,
		ReportType:      domain.ReportTypeBasic,
		Status:          domain.OrderStatusPending,
		Measurement: &domain.Measurement{
			Tier:             domain.TierEstimate,
			Source:           domain.SourceGoogleSolar,
			TotalAreaSqFt:    2152.8,
			PredominantPitch: "6/12",
			SquaresNeeded:    21.5,
			Confidence:       0.85,
			FetchedAt:        createdAt,
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOrderRepository_CreateAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	ctx := context.Background()

	order := pendingOrder("11111111-1111-1111-1111-111111111111", "123 main st", base)
	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, "ev-"+order.ID, *found.ProviderOrderID)
	assert.Equal(t, domain.OrderStatusPending, found.Status)
	require.NotNil(t, found.Measurement)
	assert.Equal(t, 2152.8, found.Measurement.TotalAreaSqFt)
	assert.Nil(t, found.Message)
	assert.Nil(t, found.LastCheckedAt)
	assert.True(t, base.Equal(found.CreatedAt))

	pending, err := repo.FindPending(ctx, "123 main st", domain.ReportTypeBasic)
	require.NoError(t, err)
	assert.Equal(t, order.ID, pending.ID)

	_, err = repo.FindPending(ctx, "123 main st", domain.ReportTypePremium)
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestOrderRepository_FindByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	order, err := NewMySQLOrderRepository(db).FindByID(context.Background(), "missing")
	assert.Error(t, err)
	assert.Nil(t, order)

	nfe, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
	assert.NotNil(t, nfe)
}

func TestOrderRepository_Create_DuplicatePendingIsConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, pendingOrder("a", "123 main st", base)))

	err := repo.Create(ctx, pendingOrder("b", "123 main st", base))
	_, ok := errors.IsConflictError(err)
	assert.True(t, ok)

	failed := pendingOrder("c", "123 main st", base)
	failed.Status = domain.OrderStatusFailed
	failed.ProviderOrderID = nil
	failed.Message = domain.StringPtr("submission rejected")
	assert.NoError(t, repo.Create(ctx, failed))
}

func TestOrderRepository_TransitionIsCompareAndSet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	ctx := context.Background()

	order := pendingOrder("a", "123 main st", base)
	require.NoError(t, repo.Create(ctx, order))

	report := &domain.Measurement{Tier: domain.TierVerified, Source: domain.SourceEagleView, TotalAreaSqFt: 2500}
	at := base.Add(time.Hour)
	applied, err := repo.Transition(ctx, domain.StatusUpdate{OrderID: "a", Status: domain.OrderStatusVerified, Measurement: report, At: at})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Transition(ctx, domain.StatusUpdate{OrderID: "a", Status: domain.OrderStatusFailed, Message: domain.StringPtr("late"), At: at.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, applied)

	found, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusVerified, found.Status)
	assert.Equal(t, domain.TierVerified, found.Measurement.Tier)
	assert.Nil(t, found.Message)
	assert.True(t, at.Equal(found.UpdatedAt))
	require.NotNil(t, found.LastCheckedAt)

	applied, err = repo.MarkChecked(ctx, "a", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = repo.Transition(ctx, domain.StatusUpdate{OrderID: "missing", Status: domain.OrderStatusFailed, At: at})
	_, ok := errors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestOrderRepository_MarkCheckedKeepsStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, pendingOrder("a", "123 main st", base)))

	at := base.Add(30 * time.Minute)
	applied, err := repo.MarkChecked(ctx, "a", at)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkChecked(ctx, "a", at)
	require.NoError(t, err)
	assert.True(t, applied)

	found, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, found.Status)
	assert.True(t, at.Equal(*found.LastCheckedAt))
}

func TestOrderRepository_ListAndKeysetPaging(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLOrderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, pendingOrder("a", "1 first st", base)))
	require.NoError(t, repo.Create(ctx, pendingOrder("b", "2 second st", base)))
	require.NoError(t, repo.Create(ctx, pendingOrder("c", "3 third st", base.Add(time.Minute))))
	done := pendingOrder("d", "4 fourth st", base.Add(2*time.Minute))
	done.Status = domain.OrderStatusFailed
	require.NoError(t, repo.Create(ctx, done))

	all, err := repo.List(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	failed := domain.OrderStatusFailed
	onlyFailed, err := repo.List(ctx, &failed, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(onlyFailed))

	page, err := repo.ListPending(ctx, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(page))

	cursor := page[len(page)-1].Cursor()
	page, err = repo.ListPending(ctx, &cursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(page))
}

func TestEstimateRepository_SaveAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewMySQLEstimateRepository(db)
	ctx := context.Background()

	for i, addr := range []string{"1 first st", "2 second st"} {
		require.NoError(t, repo.Save(ctx, domain.EstimateRecord{
			ID:          string(rune('a' + i)),
			Address:     addr,
			Measurement: domain.Measurement{Tier: domain.TierEstimate, TotalAreaSqFt: float64(1000 * (i + 1))},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2 second st", records[0].Address)
	assert.Equal(t, 2000.0, records[0].Measurement.TotalAreaSqFt)

	records, err = repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func ids(orders []domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
