package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/testutil"
)

func newSub(userID int64, planID string, seq int64) *model.Subscription {
	now := time.Now().UTC()
	return &model.Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             model.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, 30),
		LastEventSeq:       seq,
	}
}

func TestSubscriptionRepository_Upsert_Creates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)

	applied, err := repo.Upsert(ctx, newSub(user.ID, "pro", 0))
	require.NoError(t, err)
	assert.True(t, applied)

	sub, err := repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
}

func TestSubscriptionRepository_Upsert_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, user.ID, "free")

	for i := 0; i < 3; i++ {
		applied, err := repo.Upsert(ctx, newSub(user.ID, "pro", 0))
		require.NoError(t, err)
		assert.True(t, applied)
	}

	var count int64
	require.NoError(t, db.Model(&model.Subscription{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	sub, err := repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.PlanID)
}

func TestSubscriptionRepository_Upsert_IgnoresStaleSequence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	user := testutil.TestUser(t, db)

	applied, err := repo.Upsert(ctx, newSub(user.ID, "enterprise", 10))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Upsert(ctx, newSub(user.ID, "pro", 9))
	require.NoError(t, err)
	assert.False(t, applied)

	// 相同序号重放只刷新周期
	applied, err = repo.Upsert(ctx, newSub(user.ID, "enterprise", 10))
	require.NoError(t, err)
	assert.True(t, applied)

	sub, err := repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", sub.PlanID)
	assert.Equal(t, int64(10), sub.LastEventSeq)
}

func TestSubscriptionRepository_GetByUserID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	_, err := NewSubscriptionRepository(db).GetByUserID(context.Background(), 404)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubscriptionRepository_ExpireEnded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	ended := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, ended.ID, "pro",
		testutil.WithStatus(model.SubscriptionCancelled),
		testutil.WithPeriodEnd(now.Add(-time.Hour)),
	)
	running := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, running.ID, "pro",
		testutil.WithStatus(model.SubscriptionCancelled),
		testutil.WithPeriodEnd(now.Add(time.Hour)),
	)
	active := testutil.TestUser(t, db)
	testutil.TestSubscription(t, db, active.ID, "pro")

	pending, err := repo.CountEnded(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	n, err := repo.ExpireEnded(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sub, err := repo.GetByUserID(ctx, ended.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionExpired, sub.Status)

	sub, err = repo.GetByUserID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionCancelled, sub.Status)
}
