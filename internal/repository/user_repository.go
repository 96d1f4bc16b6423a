package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/addon-ratings/internal/models"
)

// UserRepository reads the accounts that rate, reply and moderate.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID. Used by the bearer-token middleware.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, notFound(err))
	}
	return &user, nil
}

// EnsureSystemUser returns the account automated flags and tasks are
// attributed to, creating it with the given username when the id is free.
// The bool reports whether it was created.
func (r *UserRepository) EnsureSystemUser(id uint, username string) (*models.User, bool, error) {
	user, err := r.GetByID(id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	user = &models.User{ID: id, Username: username, Name: "Add-ons Task User"}
	err = r.db.Transaction(func(tx *DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return fmt.Errorf("username %q already belongs to another user: %w", username, gorm.ErrDuplicatedKey)
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create system user %d: %w", id, err)
	}
	return user, true, nil
}
