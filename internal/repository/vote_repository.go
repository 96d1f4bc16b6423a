package repository

import (
	"errors"
	"fmt"

	"github.com/aimd54/addon-ratings/internal/models"
)

// VoteRepository handles helpfulness vote database operations.
type VoteRepository struct {
	db *DB
}

// NewVoteRepository creates a new vote repository.
func NewVoteRepository(db *DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Upsert records the user's vote on a rating, replacing any earlier vote.
func (r *VoteRepository) Upsert(vote *models.RatingVote) error {
	var existing models.RatingVote
	err := r.db.Where("rating_id = ? AND user_id = ?", vote.RatingID, vote.UserID).First(&existing).Error
	switch {
	case err == nil:
		vote.ID = existing.ID
		vote.CreatedAt = existing.CreatedAt
		if err := r.db.Save(vote).Error; err != nil {
			return fmt.Errorf("failed to update vote %d: %w", vote.ID, err)
		}
		return nil
	case errors.Is(notFound(err), ErrNotFound):
		if err := r.db.Create(vote).Error; err != nil {
			return fmt.Errorf("failed to create vote on rating %d: %w", vote.RatingID, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up vote on rating %d: %w", vote.RatingID, err)
	}
}

// Counts returns up/down vote totals for each of the given ratings.
func (r *VoteRepository) Counts(ratingIDs []uint) (map[uint]models.VoteCounts, error) {
	result := make(map[uint]models.VoteCounts, len(ratingIDs))
	if len(ratingIDs) == 0 {
		return result, nil
	}
	var rows []struct {
		RatingID uint
		Vote     int
		Count    int
	}
	err := r.db.Model(&models.RatingVote{}).
		Select("rating_id, vote, COUNT(*) AS count").
		Where("rating_id IN ?", ratingIDs).
		Group("rating_id, vote").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	for _, row := range rows {
		c := result[row.RatingID]
		switch row.Vote {
		case models.VoteUp:
			c.Upvote = row.Count
		case models.VoteDown:
			c.Downvote = row.Count
		}
		result[row.RatingID] = c
	}
	return result, nil
}
