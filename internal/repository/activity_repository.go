package repository

import (
	"fmt"

	"github.com/aimd54/addon-ratings/internal/models"
)

// ActivityRepository appends to and reads the rating audit trail.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an entry.
func (r *ActivityRepository) Create(entry *models.ActivityLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

// ListByRating returns the entries of a rating, oldest first.
func (r *ActivityRepository) ListByRating(ratingID uint) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	if err := r.db.Where("rating_id = ?", ratingID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity for rating %d: %w", ratingID, err)
	}
	return entries, nil
}
