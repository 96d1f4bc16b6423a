package mocks

import (
	"fmt"

	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
)

// MockUserRepository is a simple mock for user lookups
type MockUserRepository struct {
	Users       map[uint]*models.User
	GetByIDFunc func(id uint) (*models.User, error)
}

// NewMockUserRepository creates a mock holding the given users
func NewMockUserRepository(users ...*models.User) *MockUserRepository {
	m := &MockUserRepository{Users: make(map[uint]*models.User, len(users))}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

func (m *MockUserRepository) GetByID(id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	if u, ok := m.Users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("failed to get user by id %d: %w", id, repository.ErrNotFound)
}
