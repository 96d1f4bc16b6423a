package repository

import (
	"errors"
	"fmt"

	"github.com/aimd54/addon-ratings/internal/models"
)

// FlagRepository handles moderation flag database operations.
type FlagRepository struct {
	db *DB
}

// NewFlagRepository creates a new flag repository.
func NewFlagRepository(db *DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// Upsert creates the flag for (rating, user) or updates the existing one in place.
func (r *FlagRepository) Upsert(flag *models.RatingFlag) error {
	var existing models.RatingFlag
	q := r.db.Where("review_id = ?", flag.RatingID)
	if flag.UserID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *flag.UserID)
	}
	err := q.First(&existing).Error
	if err != nil && !errors.Is(notFound(err), ErrNotFound) {
		return fmt.Errorf("failed to look up flag for rating %d: %w", flag.RatingID, err)
	}

	if err == nil {
		flag.ID = existing.ID
		flag.CreatedAt = existing.CreatedAt
		if err := r.db.Save(flag).Error; err != nil {
			return fmt.Errorf("failed to update flag %d: %w", flag.ID, err)
		}
		return nil
	}

	if err := r.db.Create(flag).Error; err != nil {
		return fmt.Errorf("failed to create flag for rating %d: %w", flag.RatingID, err)
	}
	return nil
}

// ListByRating returns every flag on a rating.
func (r *FlagRepository) ListByRating(ratingID uint) ([]models.RatingFlag, error) {
	var flags []models.RatingFlag
	if err := r.db.Where("review_id = ?", ratingID).Order("id ASC").Find(&flags).Error; err != nil {
		return nil, fmt.Errorf("failed to list flags for rating %d: %w", ratingID, err)
	}
	return flags, nil
}

// ListByUser returns the flags a user left on the given ratings, keyed by rating ID.
func (r *FlagRepository) ListByUser(userID uint, ratingIDs []uint) (map[uint][]models.RatingFlag, error) {
	result := make(map[uint][]models.RatingFlag)
	if len(ratingIDs) == 0 {
		return result, nil
	}
	var flags []models.RatingFlag
	err := r.db.Where("user_id = ? AND review_id IN ?", userID, ratingIDs).Find(&flags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list flags of user %d: %w", userID, err)
	}
	for _, f := range flags {
		result[f.RatingID] = append(result[f.RatingID], f)
	}
	return result, nil
}

// DeleteByRating removes every flag on a rating.
func (r *FlagRepository) DeleteByRating(ratingID uint) error {
	if err := r.db.Where("review_id = ?", ratingID).Delete(&models.RatingFlag{}).Error; err != nil {
		return fmt.Errorf("failed to delete flags for rating %d: %w", ratingID, err)
	}
	return nil
}
