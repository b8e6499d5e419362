package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
	"github.com/ManuelReschke/AskFox/internal/pkg/testutil"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGetOrCreate_Defaults(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(db, WithClock(fixedClock(now)))

	rec, err := store.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, string(plans.Free), rec.Plan)
	assert.Equal(t, models.SubscriptionStatusActive, rec.Status)
	assert.Zero(t, rec.DocumentsUsed)
	assert.Zero(t, rec.QuestionsUsed)
	assert.Equal(t, 3, rec.DocumentsLimit)
	assert.Equal(t, 20, rec.QuestionsLimit)
	assert.True(t, rec.ValidUntil.Equal(now.Add(plans.BillingPeriod)))

	again, err := store.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
}

func TestGetOrCreate_UnknownUser(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t))

	_, err := store.GetOrCreate(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = store.GetOrCreate(context.Background(), "  ")
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t))
	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementUsage_UpToLimit(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		rec, err := store.IncrementUsage(ctx, "u1", plans.KindDocument)
		require.NoError(t, err)
		assert.Equal(t, i, rec.DocumentsUsed)
	}

	rec, err := store.IncrementUsage(ctx, "u1", plans.KindDocument)
	assert.ErrorIs(t, err, ErrLimitReached)
	require.NotNil(t, rec)
	assert.Equal(t, 3, rec.DocumentsUsed)
	assert.Zero(t, rec.QuestionsUsed)
}

func TestIncrementUsage_Inactive(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	suspended := models.SubscriptionStatusSuspended
	_, err := store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{Status: &suspended})
	require.NoError(t, err)

	rec, err := store.IncrementUsage(ctx, "u1", plans.KindQuestion)
	assert.ErrorIs(t, err, ErrInactive)
	require.NotNil(t, rec)
	assert.Zero(t, rec.QuestionsUsed)
}

func TestIncrementUsage_UnlimitedStillCounts(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	enterprise := plans.Enterprise
	_, err := store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{Plan: &enterprise})
	require.NoError(t, err)

	var rec *models.SubscriptionRecord
	for i := 0; i < 50; i++ {
		rec, err = store.IncrementUsage(ctx, "u1", plans.KindDocument)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, rec.DocumentsUsed)
	assert.Equal(t, plans.Unlimited, rec.DocumentsLimit)
}

func TestIncrementUsage_UnknownKind(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t))
	_, err := store.IncrementUsage(context.Background(), "u1", plans.Kind("image"))
	assert.Error(t, err)
}

func TestIncrementUsage_ConcurrentSingleSlot(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	// FREE allows 3 documents; leave a single slot.
	require.NoError(t, db.Model(&models.SubscriptionRecord{}).
		Where("user_id = ?", "u1").
		Update("documents_used", 2).Error)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementUsage(ctx, "u1", plans.KindDocument)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, limited int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLimitReached):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, limited)

	rec, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.DocumentsUsed)
}

func TestIncrementUsage_LimitFromCatalog(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	premium := plans.Premium
	_, err := store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{Plan: &premium})
	require.NoError(t, err)
	// Snapshot from an older catalog where PREMIUM allowed 20 documents.
	require.NoError(t, db.Model(&models.SubscriptionRecord{}).
		Where("user_id = ?", "u1").
		Updates(map[string]interface{}{"documents_limit": 20, "documents_used": 20}).Error)

	rec, err := store.IncrementUsage(ctx, "u1", plans.KindDocument)
	require.NoError(t, err)
	assert.Equal(t, 21, rec.DocumentsUsed)

	used, limit := Usage(rec, plans.KindDocument)
	assert.Equal(t, 21, used)
	assert.Equal(t, 100, limit)
}

func TestIncrementUsage_SingleConditionalUpdate(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	var updates []string
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:capture_update", func(tx *gorm.DB) {
		updates = append(updates, tx.Statement.SQL.String())
	}))

	_, err = store.IncrementUsage(ctx, "u1", plans.KindDocument)
	require.NoError(t, err)

	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "documents_used + ")
	assert.Contains(t, updates[0], "plan = ?")
	assert.Contains(t, updates[0], "status = ?")
	assert.Contains(t, updates[0], "documents_used < ?")
}

func TestResetPeriod(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(db, WithClock(fixedClock(start)))
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	_, err = store.IncrementUsage(ctx, "u1", plans.KindQuestion)
	require.NoError(t, err)
	_, err = store.IncrementUsage(ctx, "u1", plans.KindDocument)
	require.NoError(t, err)

	rec, reset, err := store.ResetPeriod(ctx, "u1", start.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Equal(t, 1, rec.QuestionsUsed)

	later := start.Add(40 * 24 * time.Hour)
	rec, reset, err = store.ResetPeriod(ctx, "u1", later)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.Zero(t, rec.QuestionsUsed)
	assert.Zero(t, rec.DocumentsUsed)
	assert.True(t, rec.ValidUntil.Equal(later.Add(plans.BillingPeriod)))

	_, reset, err = store.ResetPeriod(ctx, "u1", later)
	require.NoError(t, err)
	assert.False(t, reset)
}

func TestResetPeriod_SkipsInactive(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(db, WithClock(fixedClock(start)))
	ctx := context.Background()

	cancelled := models.SubscriptionStatusCancelled
	_, err := store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{Status: &cancelled, ValidUntil: &start})
	require.NoError(t, err)

	rec, reset, err := store.ResetPeriod(ctx, "u1", start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, reset)
	assert.True(t, rec.ValidUntil.Equal(start))
}

func TestApplyBillingUpdate(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(db, WithClock(fixedClock(now)))
	ctx := context.Background()

	premium := plans.Premium
	active := models.SubscriptionStatusActive
	provider := models.BillingProviderStripe
	ext := "sub_123"
	until := now.Add(31 * 24 * time.Hour)

	rec, err := store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{
		Plan:                   &premium,
		Status:                 &active,
		Provider:               &provider,
		ExternalSubscriptionID: &ext,
		ValidUntil:             &until,
	})
	require.NoError(t, err)
	assert.Equal(t, string(plans.Premium), rec.Plan)
	assert.Equal(t, 100, rec.DocumentsLimit)
	assert.Equal(t, 1000, rec.QuestionsLimit)
	assert.Equal(t, "stripe", rec.Provider)
	assert.Equal(t, "sub_123", rec.ExternalSubscriptionID)
	assert.True(t, rec.ValidUntil.Equal(until))

	found, err := store.FindByExternalID(ctx, "Stripe", "sub_123")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)

	_, err = store.FindByExternalID(ctx, "paypal", "sub_123")
	assert.ErrorIs(t, err, ErrNotFound)

	note := "payment failed: 12.00 EUR"
	failed := models.SubscriptionStatusPaymentFailed
	rec, err = store.ApplyBillingUpdate(ctx, "u1", BillingUpdate{Status: &failed, FailureNote: &note})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPaymentFailed, rec.Status)
	assert.Equal(t, string(plans.Premium), rec.Plan)
	assert.Equal(t, note, rec.LastFailureNote)
	require.NotNil(t, rec.LastFailureAt)
}

func TestApplyBillingUpdate_UnknownPlanFallsBackToFree(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)

	bogus := plans.ID("PLATINUM")
	rec, err := store.ApplyBillingUpdate(context.Background(), "u1", BillingUpdate{Plan: &bogus})
	require.NoError(t, err)
	assert.Equal(t, string(plans.Free), rec.Plan)
	assert.Equal(t, 20, rec.QuestionsLimit)
}

func TestApplyBillingUpdate_UnknownUser(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t))
	cancelled := models.SubscriptionStatusCancelled
	_, err := store.ApplyBillingUpdate(context.Background(), "ghost", BillingUpdate{Status: &cancelled})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestDeleteUserCascades(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.CreateUser(t, db, "u1")
	store := NewStore(db)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.User{ID: "u1"}).Error)

	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsage(t *testing.T) {
	rec := &models.SubscriptionRecord{Plan: "FREE", DocumentsUsed: 1, QuestionsUsed: 7}

	used, limit := Usage(rec, plans.KindDocument)
	assert.Equal(t, 1, used)
	assert.Equal(t, 3, limit)

	used, limit = Usage(rec, plans.KindQuestion)
	assert.Equal(t, 7, used)
	assert.Equal(t, 20, limit)

	rec.Plan = "ENTERPRISE"
	_, limit = Usage(rec, plans.KindDocument)
	assert.Equal(t, plans.Unlimited, limit)
}
