package denorm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/internal/tasks"
	"github.com/aimd54/addon-ratings/pkg/logger"
	"github.com/aimd54/addon-ratings/test/mocks"
)

type fakePublisher struct {
	published []interface{}
}

func (f *fakePublisher) Publish(name string, payload interface{}) error {
	f.published = append(f.published, payload)
	return nil
}

type fixture struct {
	db        *repository.DB
	service   *Service
	cache     *mocks.MockCache
	publisher *fakePublisher
}

func setupTestService(t *testing.T) *fixture {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	db := &repository.DB{DB: gormDB}
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	c := mocks.NewMockCache()
	pub := &fakePublisher{}
	svc := NewService(repository.NewRatingRepository(db), repository.NewAddonRepository(db), c, pub, logger.Nop())
	return &fixture{db: db, service: svc, cache: c, publisher: pub}
}

func (f *fixture) addon(t *testing.T, id uint) {
	require.NoError(t, f.db.Create(&models.Addon{ID: id, Slug: fmt.Sprintf("addon-%d", id), Status: models.AddonStatusApproved}).Error)
}

func (f *fixture) user(t *testing.T, id uint) {
	require.NoError(t, f.db.Create(&models.User{ID: id, Username: fmt.Sprintf("user%d", id)}).Error)
}

func (f *fixture) rating(t *testing.T, addonID, userID, versionID uint, score int, body string, created time.Time) *models.Rating {
	r := &models.Rating{
		AddonID:   addonID,
		UserID:    userID,
		VersionID: &versionID,
		Score:     &score,
		IPAddress: "127.0.0.1",
		IsLatest:  true,
		CreatedAt: created,
	}
	if body != "" {
		r.Body = &body
	}
	require.NoError(t, f.db.Omit(clause.Associations).Create(r).Error)
	return r
}

func (f *fixture) reload(t *testing.T, id uint) models.Rating {
	var r models.Rating
	require.NoError(t, f.db.First(&r, id).Error)
	return r
}

func TestUpdateDenorm_LatestAndPreviousCount(t *testing.T) {
	f := setupTestService(t)
	f.addon(t, 1)
	f.user(t, 1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r1 := f.rating(t, 1, 1, 10, 2, "", base)
	r2 := f.rating(t, 1, 1, 11, 3, "", base.Add(time.Hour))
	r3 := f.rating(t, 1, 1, 12, 5, "", base.Add(2*time.Hour))

	require.NoError(t, f.service.UpdateDenorm(context.Background(), 1, 1))

	got1, got2, got3 := f.reload(t, r1.ID), f.reload(t, r2.ID), f.reload(t, r3.ID)
	assert.False(t, got1.IsLatest)
	assert.False(t, got2.IsLatest)
	assert.True(t, got3.IsLatest)
	assert.Equal(t, 0, got1.PreviousCount)
	assert.Equal(t, 1, got2.PreviousCount)
	assert.Equal(t, 2, got3.PreviousCount)

	// Deleting the latest promotes the previous one.
	require.NoError(t, f.db.Model(&models.Rating{}).Where("id = ?", r3.ID).Update("deleted", r3.ID).Error)
	require.NoError(t, f.service.UpdateDenorm(context.Background(), 1, 1))
	assert.True(t, f.reload(t, r2.ID).IsLatest)

	// Rerunning without writes changes nothing.
	before := []models.Rating{f.reload(t, r1.ID), f.reload(t, r2.ID)}
	require.NoError(t, f.service.UpdateDenorm(context.Background(), 1, 1))
	assert.Equal(t, before[0].IsLatest, f.reload(t, r1.ID).IsLatest)
	assert.Equal(t, before[1].PreviousCount, f.reload(t, r2.ID).PreviousCount)
}

func TestAddonRatingAggregates(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.user(t, 1)
	f.user(t, 2)
	f.user(t, 3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f.rating(t, 1, 1, 10, 5, "Great", base)
	f.rating(t, 1, 2, 10, 3, "", base)
	old := f.rating(t, 1, 3, 10, 1, "meh", base)
	f.rating(t, 1, 3, 11, 4, "better now", base.Add(time.Hour))
	require.NoError(t, f.service.UpdateDenorm(ctx, 1, 3))
	assert.False(t, f.reload(t, old.ID).IsLatest)

	require.NoError(t, f.service.AddonRatingAggregates(ctx, 1))

	var addon models.Addon
	require.NoError(t, f.db.First(&addon, 1).Error)
	assert.Equal(t, 3, addon.TotalRatings)
	assert.InDelta(t, 4.0, addon.AverageRating, 0.0001)
	assert.Equal(t, 2, addon.TextRatingsCount)

	var agg models.RatingAggregate
	require.NoError(t, f.db.First(&agg, "addon_id = ?", 1).Error)
	assert.Equal(t, 0, agg.Count1)
	assert.Equal(t, 1, agg.Count3)
	assert.Equal(t, 1, agg.Count4)
	assert.Equal(t, 1, agg.Count5)
	assert.True(t, f.cache.Has(GroupedKey(1)))

	// Idempotent.
	require.NoError(t, f.service.AddonRatingAggregates(ctx, 1))
	var again models.Addon
	require.NoError(t, f.db.First(&again, 1).Error)
	assert.Equal(t, addon.AverageRating, again.AverageRating)
	assert.Equal(t, addon.TotalRatings, again.TotalRatings)
}

func TestAddonBayesianRating(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.addon(t, 2)
	f.addon(t, 3)
	f.user(t, 1)
	f.user(t, 2)
	now := time.Now()
	f.rating(t, 1, 1, 10, 4, "", now)
	f.rating(t, 1, 2, 10, 4, "", now)
	f.rating(t, 2, 1, 20, 2, "", now)

	require.NoError(t, f.service.AddonRatingAggregates(ctx, 1, 2, 3))

	// mc = 1.5, mm = 3
	var a1, a2, a3 models.Addon
	require.NoError(t, f.db.First(&a1, 1).Error)
	require.NoError(t, f.db.First(&a2, 2).Error)
	require.NoError(t, f.db.First(&a3, 3).Error)
	assert.InDelta(t, (1.5*3+2*4)/3.5, a1.BayesianRating, 0.0001)
	assert.InDelta(t, (1.5*3+1*2)/2.5, a2.BayesianRating, 0.0001)
	assert.Equal(t, 0.0, a3.BayesianRating)
}

func TestAddonBayesianRating_IgnoresStaleStoredTotals(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.user(t, 1)
	r := f.rating(t, 1, 1, 10, 5, "", time.Now())

	reg := tasks.NewRegistry(logger.Nop())
	f.service.Register(reg)
	q := tasks.NewSyncQueue(reg)
	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.AddonRatingAggregates, AddonIDs: []uint{1}}))

	var addon models.Addon
	require.NoError(t, f.db.First(&addon, 1).Error)
	require.Equal(t, 1, addon.TotalRatings)
	require.InDelta(t, 5.0, addon.BayesianRating, 0.0001)

	require.NoError(t, f.db.Model(&models.Rating{}).Where("id = ?", r.ID).Update("deleted", r.ID).Error)
	require.NoError(t, f.service.UpdateDenorm(ctx, 1, 1))

	// Bayesian first, while the stored totals still count the deleted rating.
	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.AddonBayesianRating, AddonIDs: []uint{1}}))
	require.NoError(t, f.db.First(&addon, 1).Error)
	assert.Equal(t, 1, addon.TotalRatings)
	assert.Equal(t, 0.0, addon.BayesianRating)

	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.AddonRatingAggregates, AddonIDs: []uint{1}}))
	require.NoError(t, f.db.First(&addon, 1).Error)
	assert.Equal(t, 0, addon.TotalRatings)
	assert.Equal(t, 0.0, addon.AverageRating)
	assert.Equal(t, 0.0, addon.BayesianRating)
}

func TestBayesian_ZeroRatings(t *testing.T) {
	assert.Equal(t, 0.0, Bayesian(0, 0, 0, 0))
	assert.Equal(t, 0.0, Bayesian(10, 4, 0, 5))
	assert.InDelta(t, 5.0, Bayesian(0, 0, 3, 5), 0.0001)
}

func TestGroupedRatings_ReadThrough(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.user(t, 1)
	f.rating(t, 1, 1, 10, 4, "", time.Now())

	grouped, err := f.service.GroupedRatings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.ScoreCount{
		{Score: 1}, {Score: 2}, {Score: 3}, {Score: 4, Count: 1}, {Score: 5},
	}, grouped)

	// Served from cache even after the table changes.
	f.user(t, 2)
	f.rating(t, 1, 2, 10, 5, "", time.Now())
	grouped, err = f.service.GroupedRatings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, grouped[4].Count)

	grouped, err = f.service.RefreshGroupedRatings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, grouped[4].Count)
}

func TestRegisteredTasksAndIndex(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.user(t, 1)
	f.rating(t, 1, 1, 10, 5, "nice", time.Now())

	reg := tasks.NewRegistry(logger.Nop())
	f.service.Register(reg)
	q := tasks.NewSyncQueue(reg)

	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.UpdateDenorm, AddonIDs: []uint{1}, UserID: 1}))
	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.AddonRatingAggregates, AddonIDs: []uint{1}}))
	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.AddonBayesianRating, AddonIDs: []uint{1}}))
	require.NoError(t, q.Enqueue(ctx, tasks.Task{Name: tasks.IndexAddon, AddonIDs: []uint{1}}))

	require.Len(t, f.publisher.published, 1)
	doc := f.publisher.published[0].(IndexDocument)
	assert.Equal(t, uint(1), doc.AddonID)
	assert.Equal(t, 1, doc.TotalRatings)
	assert.InDelta(t, 5.0, doc.BayesianRating, 0.0001)
}

func TestRecomputeAll(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.addon(t, 1)
	f.addon(t, 2)
	f.user(t, 1)
	f.rating(t, 1, 1, 10, 3, "", time.Now())
	f.rating(t, 2, 1, 20, 5, "", time.Now())

	failed, err := f.service.RecomputeAll(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 0, failed)

	var a1, a2 models.Addon
	require.NoError(t, f.db.First(&a1, 1).Error)
	require.NoError(t, f.db.First(&a2, 2).Error)
	assert.Equal(t, 1, a1.TotalRatings)
	assert.Equal(t, 1, a2.TotalRatings)
	// mc = 1, mm = 4
	assert.InDelta(t, (4.0+3)/2, a1.BayesianRating, 0.0001)
	assert.InDelta(t, (4.0+5)/2, a2.BayesianRating, 0.0001)
}
