package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aimd54/addon-ratings/internal/models"
)

// setupTestDB creates an in-memory SQLite database with every model migrated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db := &DB{gormDB}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// createTestAddon creates an add-on with the given status and one listed version (id = addon id * 10).
func createTestAddon(t *testing.T, db *DB, id uint, status int) *models.Addon {
	t.Helper()

	addon := &models.Addon{ID: id, Slug: fmt.Sprintf("addon-%d", id), Name: fmt.Sprintf("Addon %d", id), Status: status}
	require.NoError(t, db.Create(addon).Error)
	require.NoError(t, db.Create(&models.Version{ID: id * 10, AddonID: id, Version: "1.0"}).Error)
	return addon
}

func createTestUser(t *testing.T, db *DB, id uint) *models.User {
	t.Helper()

	user := &models.User{ID: id, Username: fmt.Sprintf("user%d", id)}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestRating(t *testing.T, repo *RatingRepository, addonID, userID, versionID uint, score int, body string) *models.Rating {
	t.Helper()

	rating := &models.Rating{AddonID: addonID, UserID: userID, VersionID: &versionID, Score: &score}
	if body != "" {
		rating.Body = &body
	}
	require.NoError(t, repo.Create(rating))
	return rating
}

func createTestReply(t *testing.T, repo *RatingRepository, parent *models.Rating, userID uint, body string) *models.Rating {
	t.Helper()

	reply := &models.Rating{AddonID: parent.AddonID, UserID: userID, ReplyToID: &parent.ID, Body: &body}
	require.NoError(t, repo.Create(reply))
	return reply
}

func ratingIDs(ratings []models.Rating) []uint {
	ids := make([]uint, 0, len(ratings))
	for _, r := range ratings {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestRatingRepository_DeletedScopes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestUser(t, db, 1)
	createTestUser(t, db, 2)

	rating := createTestRating(t, repo, 1, 1, 10, 5, "Works great")
	reply := createTestReply(t, repo, rating, 2, "Thanks!")

	got, err := repo.GetActive(rating.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Reply)
	assert.Equal(t, reply.ID, got.Reply.ID)
	assert.Equal(t, "user1", got.User.Username)

	require.NoError(t, repo.SetDeleted(rating, true))
	assert.Equal(t, rating.ID, rating.Deleted)

	_, err = repo.GetActive(rating.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = repo.GetActive(reply.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "reply to a deleted rating is hidden")

	deleted, err := repo.GetUnfiltered(rating.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())

	require.NoError(t, repo.SetDeleted(rating, false))
	_, err = repo.GetActive(reply.ID)
	assert.NoError(t, err)

	found, err := repo.ReplyTo(rating.ID)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, found.ID)
	_, err = repo.ReplyTo(reply.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRatingRepository_SingleReplyIndex(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestUser(t, db, 1)
	createTestUser(t, db, 2)
	createTestUser(t, db, 3)

	rating := createTestRating(t, repo, 1, 1, 10, 5, "Works great")
	first := createTestReply(t, repo, rating, 2, "Thanks!")
	require.NoError(t, repo.SetDeleted(first, true))

	body := "Thanks from another developer"
	second := &models.Rating{AddonID: 1, UserID: 3, ReplyToID: &rating.ID, Body: &body}
	assert.Error(t, repo.Create(second), "a deleted reply still holds the slot")

	// Top-level ratings all have a NULL reply_to_id and are not constrained by it.
	createTestRating(t, repo, 1, 2, 10, 4, "")
	createTestRating(t, repo, 1, 3, 10, 3, "")
}

func TestRatingRepository_ExistsForVersion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestUser(t, db, 1)

	rating := createTestRating(t, repo, 1, 1, 10, 4, "")

	exists, err := repo.ExistsForVersion(1, 1, 10)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForVersion(1, 1, 11)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.SetDeleted(rating, true))
	exists, err = repo.ExistsForVersion(1, 1, 10)
	require.NoError(t, err)
	assert.False(t, exists, "deleted ratings free the version slot")
}

func TestRatingRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestAddon(t, db, 2, models.AddonStatusNominated)
	for id := uint(1); id <= 4; id++ {
		createTestUser(t, db, id)
	}

	r1 := createTestRating(t, repo, 1, 1, 10, 5, "Great")
	r2 := createTestRating(t, repo, 1, 2, 10, 1, "")
	r3 := createTestRating(t, repo, 1, 3, 10, 3, "Fine")
	reply := createTestReply(t, repo, r1, 4, "Thanks")
	hidden := createTestRating(t, repo, 2, 1, 20, 4, "Beta")

	addonID := uint(1)
	userID := uint(1)
	u2 := uint(2)

	tests := []struct {
		name      string
		filter    ListFilter
		wantTotal int64
		wantIDs   []uint
	}{
		{
			name:      "addon top level",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true},
			wantTotal: 3,
			wantIDs:   []uint{r3.ID, r2.ID, r1.ID},
		},
		{
			name:      "scores",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true, Scores: []int{1, 5}},
			wantTotal: 2,
			wantIDs:   []uint{r2.ID, r1.ID},
		},
		{
			name:      "excluded ids",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true, ExcludeIDs: []uint{r3.ID}},
			wantTotal: 2,
			wantIDs:   []uint{r2.ID, r1.ID},
		},
		{
			name:      "without empty body",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true, WithoutEmptyBody: true},
			wantTotal: 2,
			wantIDs:   []uint{r3.ID, r1.ID},
		},
		{
			name:      "without empty body keeps yours",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true, WithoutEmptyBody: true, WithYoursUserID: &u2},
			wantTotal: 3,
			wantIDs:   []uint{r3.ID, r2.ID, r1.ID},
		},
		{
			name:      "paged",
			filter:    ListFilter{AddonID: &addonID, TopLevelOnly: true, Page: 2, PageSize: 2},
			wantTotal: 3,
			wantIDs:   []uint{r1.ID},
		},
		{
			name:      "user on any addon",
			filter:    ListFilter{UserID: &userID, TopLevelOnly: true},
			wantTotal: 2,
			wantIDs:   []uint{hidden.ID, r1.ID},
		},
		{
			name:      "user on public addons",
			filter:    ListFilter{UserID: &userID, TopLevelOnly: true, PublicAddonsOnly: true},
			wantTotal: 1,
			wantIDs:   []uint{r1.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratings, total, err := repo.List(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantIDs, ratingIDs(ratings))
		})
	}

	t.Run("replies are attached", func(t *testing.T) {
		ratings, _, err := repo.List(ListFilter{AddonID: &addonID, TopLevelOnly: true})
		require.NoError(t, err)
		for _, r := range ratings {
			if r.ID == r1.ID {
				require.NotNil(t, r.Reply)
				assert.Equal(t, reply.ID, r.Reply.ID)
			} else {
				assert.Nil(t, r.Reply)
			}
		}
	})

	t.Run("only latest", func(t *testing.T) {
		require.NoError(t, repo.UpdateColumns(r2.ID, map[string]interface{}{"is_latest": false}))
		ratings, total, err := repo.List(ListFilter{AddonID: &addonID, TopLevelOnly: true, OnlyLatest: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []uint{r3.ID, r1.ID}, ratingIDs(ratings))
	})

	t.Run("deleted rows only with include deleted", func(t *testing.T) {
		require.NoError(t, repo.SetDeleted(r3, true))
		_, total, err := repo.List(ListFilter{AddonID: &addonID, TopLevelOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		_, total, err = repo.List(ListFilter{AddonID: &addonID, IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})
}

func TestRatingRepository_DenormAndAggregates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	for id := uint(1); id <= 3; id++ {
		createTestUser(t, db, id)
	}
	require.NoError(t, db.Create(&models.Version{ID: 11, AddonID: 1, Version: "1.1"}).Error)

	old := createTestRating(t, repo, 1, 1, 10, 1, "Broken")
	latest := createTestRating(t, repo, 1, 1, 11, 4, "Fixed now")
	createTestRating(t, repo, 1, 2, 10, 2, "")
	gone := createTestRating(t, repo, 1, 3, 10, 5, "Spam")
	require.NoError(t, repo.SetDeleted(gone, true))

	ratings, err := repo.ListForDenorm(1, 1)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	assert.Equal(t, []uint{old.ID, latest.ID}, ratingIDs(ratings))

	ratings[0].IsLatest, ratings[0].PreviousCount = false, 0
	ratings[1].IsLatest, ratings[1].PreviousCount = true, 1
	require.NoError(t, repo.WriteDenorm(ratings))

	got, err := repo.GetActive(old.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLatest)
	got, err = repo.GetActive(latest.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLatest)
	assert.Equal(t, 1, got.PreviousCount)

	row, err := repo.Aggregates(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Total)
	assert.Equal(t, int64(1), row.TextCount)
	assert.InDelta(t, 3.0, row.Average, 0.0001)

	counts, err := repo.GroupedCounts(1)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{2: 1, 4: 1}, counts)

	row, err = repo.Aggregates(99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.Total)
	assert.Equal(t, 0.0, row.Average)
}

func TestRatingRepository_ToModerate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	flags := NewFlagRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestAddon(t, db, 2, models.AddonStatusNull)
	require.NoError(t, db.Create(&models.Version{ID: 12, AddonID: 1, Version: "2.0", Channel: models.ChannelUnlisted}).Error)
	for id := uint(1); id <= 5; id++ {
		createTestUser(t, db, id)
	}

	queue := func(r *models.Rating, review, flagged bool) {
		if review {
			require.NoError(t, repo.UpdateColumns(r.ID, map[string]interface{}{"editorreview": true}))
		}
		if flagged {
			require.NoError(t, flags.Upsert(&models.RatingFlag{RatingID: r.ID, Flag: models.FlagSpam}))
		}
	}

	wanted := createTestRating(t, repo, 1, 1, 10, 1, "Buy now")
	queue(wanted, true, true)
	unflagged := createTestRating(t, repo, 1, 2, 10, 1, "Meh")
	queue(unflagged, true, false)
	approved := createTestRating(t, repo, 1, 3, 10, 1, "Ok")
	queue(approved, false, true)
	incomplete := createTestRating(t, repo, 2, 4, 20, 1, "Nope")
	queue(incomplete, true, true)
	unlisted := createTestRating(t, repo, 1, 5, 12, 1, "Self hosted")
	queue(unlisted, true, true)

	ratings, total, err := repo.ToModerate(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []uint{wanted.ID}, ratingIDs(ratings))

	require.NoError(t, repo.SetDeleted(wanted, true))
	_, total, err = repo.ToModerate(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestFlagRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	flags := NewFlagRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestUser(t, db, 1)
	createTestUser(t, db, 2)
	rating := createTestRating(t, repo, 1, 1, 10, 3, "Hmm")

	user := uint(2)
	require.NoError(t, flags.Upsert(&models.RatingFlag{RatingID: rating.ID, UserID: &user, Flag: models.FlagSpam}))
	require.NoError(t, flags.Upsert(&models.RatingFlag{RatingID: rating.ID, UserID: &user, Flag: models.FlagOther, Note: "off topic"}))
	require.NoError(t, flags.Upsert(&models.RatingFlag{RatingID: rating.ID, Flag: models.FlagAutoMatch, Note: "Words matched: [spam]"}))

	all, err := flags.ListByRating(rating.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.FlagOther, all[0].Flag)
	assert.Equal(t, "off topic", all[0].Note)
	assert.Nil(t, all[1].UserID)

	mine, err := flags.ListByUser(user, []uint{rating.ID, 999})
	require.NoError(t, err)
	assert.Len(t, mine[rating.ID], 1)
	assert.Empty(t, mine[999])

	require.NoError(t, flags.DeleteByRating(rating.ID))
	all, err = flags.ListByRating(rating.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestVoteRepository_UpsertAndCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRatingRepository(db)
	votes := NewVoteRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	for id := uint(1); id <= 4; id++ {
		createTestUser(t, db, id)
	}
	rating := createTestRating(t, repo, 1, 1, 10, 4, "Useful")

	require.NoError(t, votes.Upsert(&models.RatingVote{RatingID: rating.ID, UserID: 2, AddonID: 1, Vote: models.VoteUp}))
	require.NoError(t, votes.Upsert(&models.RatingVote{RatingID: rating.ID, UserID: 3, AddonID: 1, Vote: models.VoteUp}))
	require.NoError(t, votes.Upsert(&models.RatingVote{RatingID: rating.ID, UserID: 4, AddonID: 1, Vote: models.VoteUp}))
	require.NoError(t, votes.Upsert(&models.RatingVote{RatingID: rating.ID, UserID: 4, AddonID: 1, Vote: models.VoteDown}))

	counts, err := votes.Counts([]uint{rating.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, models.VoteCounts{Upvote: 2, Downvote: 1}, counts[rating.ID])
	assert.Equal(t, models.VoteCounts{}, counts[999])

	empty, err := votes.Counts(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAddonRepository_Statistics(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAddonRepository(db)
	createTestAddon(t, db, 1, models.AddonStatusApproved)
	createTestAddon(t, db, 2, models.AddonStatusApproved)
	createTestAddon(t, db, 3, models.AddonStatusApproved)

	require.NoError(t, repo.UpdateRatingStats(1, 4.0, 10, 5))
	require.NoError(t, repo.UpdateRatingStats(2, 2.0, 30, 10))

	meanCount, meanRating, err := repo.SitewideAverages()
	require.NoError(t, err)
	assert.InDelta(t, 20.0, meanCount, 0.0001, "add-ons without ratings are ignored")
	assert.InDelta(t, 3.0, meanRating, 0.0001)

	agg := &models.RatingAggregate{AddonID: 1, Count4: 3, Count5: 7}
	require.NoError(t, repo.UpsertAggregate(agg))
	require.NoError(t, repo.UpsertAggregate(&models.RatingAggregate{AddonID: 1, Count1: 1, Count5: 9}))

	var rows []models.RatingAggregate
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Count1)
	assert.Equal(t, 0, rows[0].Count4)
	assert.Equal(t, 9, rows[0].Count5)

	ids, err := repo.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)
}
