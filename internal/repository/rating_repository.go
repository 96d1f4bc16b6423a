package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/addon-ratings/internal/models"
)

// RatingRepository handles rating-related database operations.
//
// Rows are soft-deleted, so every read goes through one of three scopes:
// Active (live rows whose parent, if any, is live), WithoutReplies (live
// top-level rows) or Unfiltered (everything, for admins and moderation).
type RatingRepository struct {
	db *DB
}

// NewRatingRepository creates a new rating repository.
func NewRatingRepository(db *DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// ListFilter narrows a rating listing.
type ListFilter struct {
	AddonID          *uint
	UserID           *uint
	VersionID        *uint
	Scores           []int
	ExcludeIDs       []uint
	OnlyLatest       bool
	TopLevelOnly     bool
	IncludeDeleted   bool
	WithoutEmptyBody bool
	WithYoursUserID  *uint // keep this user's empty ratings when WithoutEmptyBody is set
	PublicAddonsOnly bool
	Page             int
	PageSize         int
}

// Active returns a query over live ratings, hiding replies whose parent is deleted.
func (r *RatingRepository) Active() *gorm.DB {
	return r.db.Model(&models.Rating{}).
		Where("reviews.deleted = 0").
		Where("(reviews.reply_to_id IS NULL OR reviews.reply_to_id NOT IN (SELECT id FROM reviews WHERE deleted <> 0))")
}

// WithoutReplies returns a query over live top-level ratings.
func (r *RatingRepository) WithoutReplies() *gorm.DB {
	return r.db.Model(&models.Rating{}).
		Where("reviews.deleted = 0").
		Where("reviews.reply_to_id IS NULL")
}

// Unfiltered returns a query over every rating, deleted or not.
func (r *RatingRepository) Unfiltered() *gorm.DB {
	return r.db.Model(&models.Rating{})
}

func withRelations(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("Version").Preload("Addon")
}

// Create inserts a new rating.
func (r *RatingRepository) Create(rating *models.Rating) error {
	if err := r.db.Omit(clause.Associations).Create(rating).Error; err != nil {
		return fmt.Errorf("failed to create rating: %w", err)
	}
	return nil
}

// Save writes every column of an existing rating.
func (r *RatingRepository) Save(rating *models.Rating) error {
	if err := r.db.Omit("Addon", "User", "Version").Save(rating).Error; err != nil {
		return fmt.Errorf("failed to save rating %d: %w", rating.ID, err)
	}
	return nil
}

// UpdateColumns writes the given columns without touching updated_at.
func (r *RatingRepository) UpdateColumns(id uint, columns map[string]interface{}) error {
	err := r.db.Model(&models.Rating{}).Where("id = ?", id).UpdateColumns(columns).Error
	if err != nil {
		return fmt.Errorf("failed to update rating %d: %w", id, err)
	}
	return nil
}

// SetDeleted soft-deletes (deleted = id) or restores (deleted = 0) a rating.
func (r *RatingRepository) SetDeleted(rating *models.Rating, deleted bool) error {
	value := uint(0)
	if deleted {
		value = rating.ID
	}
	if err := r.UpdateColumns(rating.ID, map[string]interface{}{"deleted": value}); err != nil {
		return err
	}
	rating.Deleted = value
	return nil
}

// GetActive retrieves a live rating by ID with its relations and reply.
func (r *RatingRepository) GetActive(id uint) (*models.Rating, error) {
	return r.get(r.Active(), id, false)
}

// GetUnfiltered retrieves any rating by ID, including soft-deleted ones.
func (r *RatingRepository) GetUnfiltered(id uint) (*models.Rating, error) {
	return r.get(r.Unfiltered(), id, true)
}

func (r *RatingRepository) get(q *gorm.DB, id uint, includeDeleted bool) (*models.Rating, error) {
	var rating models.Rating
	if err := withRelations(q).Where("reviews.id = ?", id).First(&rating).Error; err != nil {
		return nil, fmt.Errorf("failed to get rating %d: %w", id, notFound(err))
	}
	ratings := []*models.Rating{&rating}
	if err := r.AttachReplies(ratings, includeDeleted); err != nil {
		return nil, err
	}
	return &rating, nil
}

// ReplyTo returns the reply to a rating, deleted or not, or ErrNotFound.
func (r *RatingRepository) ReplyTo(ratingID uint) (*models.Rating, error) {
	var reply models.Rating
	err := withRelations(r.Unfiltered()).Where("reply_to_id = ?", ratingID).First(&reply).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get reply to rating %d: %w", ratingID, notFound(err))
	}
	return &reply, nil
}

// AttachReplies loads the reply of each rating. Deleted replies are only kept
// when includeDeleted is set.
func (r *RatingRepository) AttachReplies(ratings []*models.Rating, includeDeleted bool) error {
	if len(ratings) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(ratings))
	for _, rating := range ratings {
		ids = append(ids, rating.ID)
	}

	q := r.Unfiltered().Preload("User").Where("reply_to_id IN ?", ids)
	if !includeDeleted {
		q = q.Where("deleted = 0")
	}
	var replies []models.Rating
	if err := q.Find(&replies).Error; err != nil {
		return fmt.Errorf("failed to load replies: %w", err)
	}

	byParent := make(map[uint]*models.Rating, len(replies))
	for i := range replies {
		byParent[*replies[i].ReplyToID] = &replies[i]
	}
	for _, rating := range ratings {
		rating.Reply = byParent[rating.ID]
	}
	return nil
}

// ExistsForVersion reports whether the user already has a live top-level rating on the version.
func (r *RatingRepository) ExistsForVersion(addonID, userID, versionID uint) (bool, error) {
	var count int64
	err := r.WithoutReplies().
		Where("addon_id = ? AND user_id = ? AND version_id = ?", addonID, userID, versionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check existing rating: %w", err)
	}
	return count > 0, nil
}

// ListForDenorm returns a user's live top-level ratings of an add-on, oldest first.
func (r *RatingRepository) ListForDenorm(addonID, userID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	err := r.WithoutReplies().
		Where("addon_id = ? AND user_id = ?", addonID, userID).
		Order("created_at ASC").Order("id ASC").
		Find(&ratings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings for addon %d user %d: %w", addonID, userID, err)
	}
	return ratings, nil
}

// WriteDenorm persists is_latest/previous_count for each rating in one transaction.
func (r *RatingRepository) WriteDenorm(ratings []models.Rating) error {
	return r.db.Transaction(func(tx *DB) error {
		for _, rating := range ratings {
			err := tx.Model(&models.Rating{}).Where("id = ?", rating.ID).UpdateColumns(map[string]interface{}{
				"is_latest":      rating.IsLatest,
				"previous_count": rating.PreviousCount,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to write denormalized fields for rating %d: %w", rating.ID, err)
			}
		}
		return nil
	})
}

// List returns one page of ratings matching the filter and the total count.
func (r *RatingRepository) List(f ListFilter) ([]models.Rating, int64, error) {
	var q *gorm.DB
	switch {
	case f.IncludeDeleted:
		q = r.Unfiltered().Where("reviews.reply_to_id IS NULL")
	case f.TopLevelOnly:
		q = r.WithoutReplies()
	default:
		q = r.Active()
	}

	if f.AddonID != nil {
		q = q.Where("reviews.addon_id = ?", *f.AddonID)
	}
	if f.UserID != nil {
		q = q.Where("reviews.user_id = ?", *f.UserID)
	}
	if f.VersionID != nil {
		q = q.Where("reviews.version_id = ?", *f.VersionID)
	} else if f.OnlyLatest {
		q = q.Where("reviews.is_latest = ?", true)
	}
	if len(f.Scores) > 0 {
		q = q.Where("reviews.rating IN ?", f.Scores)
	}
	if len(f.ExcludeIDs) > 0 {
		q = q.Where("reviews.id NOT IN ?", f.ExcludeIDs)
	}
	if f.WithoutEmptyBody {
		if f.WithYoursUserID != nil {
			q = q.Where("((reviews.body IS NOT NULL AND reviews.body <> '') OR reviews.user_id = ?)", *f.WithYoursUserID)
		} else {
			q = q.Where("reviews.body IS NOT NULL AND reviews.body <> ''")
		}
	}
	if f.PublicAddonsOnly {
		q = q.Joins("JOIN addons ON addons.id = reviews.addon_id").
			Where("addons.status = ? AND addons.disabled_by_user = ?", models.AddonStatusApproved, false)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings: %w", err)
	}

	page, size := normalizePage(f.Page, f.PageSize)
	var ratings []models.Rating
	err := withRelations(q).
		Order("reviews.created_at DESC").Order("reviews.id DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&ratings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings: %w", err)
	}

	ptrs := make([]*models.Rating, len(ratings))
	for i := range ratings {
		ptrs[i] = &ratings[i]
	}
	if err := r.AttachReplies(ptrs, f.IncludeDeleted); err != nil {
		return nil, 0, err
	}
	return ratings, total, nil
}

// ToModerate returns flagged ratings waiting for a moderator: marked for
// editor review, carrying at least one flag, on a nominated or approved
// add-on and not attached to an unlisted version.
func (r *RatingRepository) ToModerate(page, pageSize int) ([]models.Rating, int64, error) {
	q := r.Active().
		Joins("JOIN addons ON addons.id = reviews.addon_id").
		Joins("LEFT JOIN versions ON versions.id = reviews.version_id").
		Where("reviews.editorreview = ?", true).
		Where("addons.status IN ?", []int{models.AddonStatusNominated, models.AddonStatusApproved}).
		Where("(versions.id IS NULL OR versions.channel <> ?)", models.ChannelUnlisted).
		Where("EXISTS (SELECT 1 FROM reviews_moderation_flags f WHERE f.review_id = reviews.id)")

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings to moderate: %w", err)
	}

	page, size := normalizePage(page, pageSize)
	var ratings []models.Rating
	err := withRelations(q).
		Order("reviews.created_at ASC").
		Limit(size).Offset((page - 1) * size).
		Find(&ratings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings to moderate: %w", err)
	}
	return ratings, total, nil
}

// AggregateRow holds the rating statistics of one add-on.
type AggregateRow struct {
	Average   float64
	Total     int64
	TextCount int64
}

// Aggregates computes average, count and text count over the latest live
// top-level ratings of an add-on.
func (r *RatingRepository) Aggregates(addonID uint) (*AggregateRow, error) {
	var row AggregateRow
	err := r.WithoutReplies().
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN body IS NOT NULL AND body <> '' THEN 1 ELSE 0 END), 0) AS text_count").
		Where("addon_id = ? AND is_latest = ?", addonID, true).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings for addon %d: %w", addonID, err)
	}
	return &row, nil
}

// GroupedCounts counts the latest live top-level ratings of an add-on by score.
func (r *RatingRepository) GroupedCounts(addonID uint) (map[int]int, error) {
	var rows []struct {
		Rating int
		Count  int
	}
	err := r.WithoutReplies().
		Select("rating, COUNT(*) AS count").
		Where("addon_id = ? AND is_latest = ? AND rating IS NOT NULL", addonID, true).
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group ratings for addon %d: %w", addonID, err)
	}
	counts := make(map[int]int, 5)
	for _, row := range rows {
		counts[row.Rating] = row.Count
	}
	return counts, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
