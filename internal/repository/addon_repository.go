package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/addon-ratings/internal/models"
)

// AddonRepository handles add-on and version database operations.
type AddonRepository struct {
	db *DB
}

// NewAddonRepository creates a new add-on repository.
func NewAddonRepository(db *DB) *AddonRepository {
	return &AddonRepository{db: db}
}

// Create creates a new add-on along with its author links.
func (r *AddonRepository) Create(addon *models.Addon) error {
	if err := r.db.Create(addon).Error; err != nil {
		return fmt.Errorf("failed to create addon: %w", err)
	}
	return nil
}

// GetByID retrieves an add-on by ID.
func (r *AddonRepository) GetByID(id uint) (*models.Addon, error) {
	var addon models.Addon
	if err := r.db.First(&addon, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get addon %d: %w", id, notFound(err))
	}
	return &addon, nil
}

// IsAuthor reports whether the user is listed as an author of the add-on.
func (r *AddonRepository) IsAuthor(addonID, userID uint) (bool, error) {
	var count int64
	err := r.db.Table("addon_users").Where("addon_id = ? AND user_id = ?", addonID, userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check authorship of addon %d: %w", addonID, err)
	}
	return count > 0, nil
}

// Authors returns the authors of an add-on.
func (r *AddonRepository) Authors(addonID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Joins("JOIN addon_users ON addon_users.user_id = users.id").
		Where("addon_users.addon_id = ?", addonID).
		Order("users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get authors of addon %d: %w", addonID, err)
	}
	return users, nil
}

// ListIDs returns the IDs of every add-on.
func (r *AddonRepository) ListIDs() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Addon{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list addon ids: %w", err)
	}
	return ids, nil
}

// UpdateRatingStats overwrites the denormalized rating columns of an add-on.
func (r *AddonRepository) UpdateRatingStats(addonID uint, average float64, total, textCount int) error {
	err := r.db.Model(&models.Addon{}).Where("id = ?", addonID).UpdateColumns(map[string]interface{}{
		"average_rating":     average,
		"total_ratings":      total,
		"text_ratings_count": textCount,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update rating stats of addon %d: %w", addonID, err)
	}
	return nil
}

// UpdateBayesianRating overwrites the bayesian rating of an add-on.
func (r *AddonRepository) UpdateBayesianRating(addonID uint, value float64) error {
	err := r.db.Model(&models.Addon{}).Where("id = ?", addonID).UpdateColumn("bayesian_rating", value).Error
	if err != nil {
		return fmt.Errorf("failed to update bayesian rating of addon %d: %w", addonID, err)
	}
	return nil
}

// SitewideAverages returns the mean rating count and mean average rating over
// add-ons that have at least one rating.
func (r *AddonRepository) SitewideAverages() (meanCount, meanRating float64, err error) {
	var row struct {
		MeanCount  float64
		MeanRating float64
	}
	err = r.db.Model(&models.Addon{}).
		Select("COALESCE(AVG(total_ratings), 0) AS mean_count, COALESCE(AVG(average_rating), 0) AS mean_rating").
		Where("total_ratings > 0").
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute sitewide rating averages: %w", err)
	}
	return row.MeanCount, row.MeanRating, nil
}

// UpsertAggregate writes the per-score counts of an add-on.
func (r *AddonRepository) UpsertAggregate(agg *models.RatingAggregate) error {
	agg.UpdatedAt = time.Now()
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "addon_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"count_1", "count_2", "count_3", "count_4", "count_5", "updated_at"}),
	}).Create(agg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert rating aggregate of addon %d: %w", agg.AddonID, err)
	}
	return nil
}

// GetVersion retrieves a version by ID.
func (r *AddonRepository) GetVersion(id uint) (*models.Version, error) {
	var version models.Version
	if err := r.db.First(&version, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get version %d: %w", id, notFound(err))
	}
	return &version, nil
}
