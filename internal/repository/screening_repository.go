package repository

import (
	"fmt"

	"github.com/aimd54/addon-ratings/internal/models"
)

// ScreeningRepository handles denied words and user restrictions.
type ScreeningRepository struct {
	db *DB
}

// NewScreeningRepository creates a new screening repository.
func NewScreeningRepository(db *DB) *ScreeningRepository {
	return &ScreeningRepository{db: db}
}

// ListDeniedWords returns every denied word.
func (r *ScreeningRepository) ListDeniedWords() ([]models.DeniedRatingWord, error) {
	var words []models.DeniedRatingWord
	if err := r.db.Order("word ASC").Find(&words).Error; err != nil {
		return nil, fmt.Errorf("failed to list denied words: %w", err)
	}
	return words, nil
}

// SaveDeniedWord creates or updates a denied word, matched by its text.
func (r *ScreeningRepository) SaveDeniedWord(word *models.DeniedRatingWord) error {
	var existing models.DeniedRatingWord
	err := r.db.Where("word = ?", word.Word).First(&existing).Error
	if err == nil {
		word.ID = existing.ID
		word.CreatedAt = existing.CreatedAt
	}
	if err := r.db.Save(word).Error; err != nil {
		return fmt.Errorf("failed to save denied word %q: %w", word.Word, err)
	}
	return nil
}

// DeleteDeniedWord removes a denied word by its text.
func (r *ScreeningRepository) DeleteDeniedWord(word string) error {
	res := r.db.Where("word = ?", word).Delete(&models.DeniedRatingWord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete denied word %q: %w", word, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete denied word %q: %w", word, ErrNotFound)
	}
	return nil
}

// IPRestrictions returns the network restrictions of one type.
func (r *ScreeningRepository) IPRestrictions(restrictionType int) ([]models.IPNetworkRestriction, error) {
	var rows []models.IPNetworkRestriction
	if err := r.db.Where("restriction_type = ?", restrictionType).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list ip restrictions: %w", err)
	}
	return rows, nil
}

// EmailRestrictions returns the email pattern restrictions of one type.
func (r *ScreeningRepository) EmailRestrictions(restrictionType int) ([]models.EmailRestriction, error) {
	var rows []models.EmailRestriction
	if err := r.db.Where("restriction_type = ?", restrictionType).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list email restrictions: %w", err)
	}
	return rows, nil
}

// DomainRestrictions returns the disposable email domain restrictions of one type.
func (r *ScreeningRepository) DomainRestrictions(restrictionType int) ([]models.DisposableEmailDomainRestriction, error) {
	var rows []models.DisposableEmailDomainRestriction
	if err := r.db.Where("restriction_type = ?", restrictionType).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list domain restrictions: %w", err)
	}
	return rows, nil
}

// CreateIPRestriction stores a network restriction unless the same network
// is already restricted with the same type.
func (r *ScreeningRepository) CreateIPRestriction(row *models.IPNetworkRestriction) error {
	key := models.IPNetworkRestriction{Network: row.Network, RestrictionType: row.RestrictionType}
	if err := r.db.Where(&key).FirstOrCreate(row).Error; err != nil {
		return fmt.Errorf("failed to create ip restriction: %w", err)
	}
	return nil
}

// CreateEmailRestriction stores an email pattern restriction unless the same
// pattern is already restricted with the same type.
func (r *ScreeningRepository) CreateEmailRestriction(row *models.EmailRestriction) error {
	key := models.EmailRestriction{EmailPattern: row.EmailPattern, RestrictionType: row.RestrictionType}
	if err := r.db.Where(&key).FirstOrCreate(row).Error; err != nil {
		return fmt.Errorf("failed to create email restriction: %w", err)
	}
	return nil
}

// CreateDomainRestriction stores a disposable email domain restriction. An
// existing row for the domain takes the new type and reason.
func (r *ScreeningRepository) CreateDomainRestriction(row *models.DisposableEmailDomainRestriction) error {
	err := r.db.Where("domain = ?", row.Domain).
		Assign(map[string]interface{}{"restriction_type": row.RestrictionType, "reason": row.Reason}).
		FirstOrCreate(row).Error
	if err != nil {
		return fmt.Errorf("failed to create domain restriction: %w", err)
	}
	return nil
}
