package ratings

import (
	"context"
	"strings"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/throttle"
)

const (
	msgNoBodyToFlag   = "This rating can't be flagged because it has no review text."
	msgOtherNeedsNote = "A short explanation must be provided when selecting \"Other\" as a flag reason."
	msgBadFlag        = "Invalid flag reason."
	msgNoBodyToVote   = "This rating can't be voted on because it has no review text."
	msgBadVote        = "Vote must be 1 or -1."
)

// FlagInput is a user's moderation flag. A non-empty Note forces the "other" reason.
type FlagInput struct {
	Reason string
	Note   string
}

// QueueItem is a rating waiting for a moderator, with its flags.
type QueueItem struct {
	Rating *models.Rating
	Flags  []models.RatingFlag
}

// Approve clears a flagged rating: editorreview off and all flags removed.
func (s *Service) Approve(ctx context.Context, actor Actor, id uint) (rating *models.Rating, err error) {
	defer func() { record("approve", err) }()

	rating, err = s.Ratings.GetActive(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, auth.ActionApprove, auth.Resource{Rating: rating}); err != nil {
		return nil, err
	}

	snap := snapshot(rating)
	if err := s.Flags.DeleteByRating(rating.ID); err != nil {
		return nil, err
	}
	if err := s.Ratings.UpdateColumns(rating.ID, map[string]interface{}{"editorreview": false}); err != nil {
		return nil, err
	}
	rating.EditorReview = false

	s.logActivity(models.ActionApproveRating, actor.userID(), rating, snap)
	s.refresh(ctx, rating, true)
	return rating, nil
}

// Flag records or updates the actor's flag on a rating and queues it for moderation.
func (s *Service) Flag(ctx context.Context, actor Actor, id uint, in FlagInput) (flag *models.RatingFlag, err error) {
	defer func() { record("flag", err) }()

	rating, err := s.Ratings.GetActive(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, auth.ActionFlag, auth.Resource{Rating: rating}); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, throttle.ScopeFlag, actor); err != nil {
		return nil, err
	}
	if !rating.HasBody() {
		return nil, invalid("non_field_errors", msgNoBodyToFlag)
	}

	reason := in.Reason
	note := strings.TrimSpace(in.Note)
	if note != "" {
		reason = models.FlagOther
	}
	if !models.IsUserFlagReason(reason) {
		return nil, invalid("flag", msgBadFlag)
	}
	if reason == models.FlagOther && note == "" {
		return nil, invalid("note", msgOtherNeedsNote)
	}

	flag = &models.RatingFlag{RatingID: rating.ID, UserID: actor.userID(), Flag: reason, Note: note}
	if err := s.Flags.Upsert(flag); err != nil {
		return nil, err
	}
	if !rating.EditorReview {
		if err := s.Ratings.UpdateColumns(rating.ID, map[string]interface{}{"editorreview": true}); err != nil {
			return nil, err
		}
		rating.EditorReview = true
	}
	s.logActivity(models.ActionFlagRating, actor.userID(), rating, map[string]string{"flag": reason, "note": note})
	return flag, nil
}

// Vote records whether the actor found a rating helpful and returns the new counts.
func (s *Service) Vote(ctx context.Context, actor Actor, id uint, vote int) (counts models.VoteCounts, err error) {
	defer func() { record("vote", err) }()

	rating, err := s.Ratings.GetActive(id)
	if err != nil {
		return counts, err
	}
	if err := s.authorize(actor, auth.ActionVote, auth.Resource{Rating: rating}); err != nil {
		return counts, err
	}
	if err := s.throttle(ctx, throttle.ScopeVote, actor); err != nil {
		return counts, err
	}
	if vote != models.VoteUp && vote != models.VoteDown {
		return counts, invalid("vote", msgBadVote)
	}
	if !rating.HasBody() {
		return counts, invalid("non_field_errors", msgNoBodyToVote)
	}

	if err := s.Votes.Upsert(&models.RatingVote{
		RatingID: rating.ID,
		UserID:   actor.User.ID,
		AddonID:  rating.AddonID,
		Vote:     vote,
	}); err != nil {
		return counts, err
	}
	all, err := s.Votes.Counts([]uint{rating.ID})
	if err != nil {
		return counts, err
	}
	return all[rating.ID], nil
}

// ModerationQueue returns one page of ratings waiting for a moderator.
func (s *Service) ModerationQueue(_ context.Context, actor Actor, page, pageSize int) ([]QueueItem, int64, error) {
	if err := s.authorize(actor, auth.ActionModerationQueue, auth.Resource{}); err != nil {
		return nil, 0, err
	}
	if pageSize < 1 {
		pageSize = s.PageSize
	}
	ratings, total, err := s.Ratings.ToModerate(page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]QueueItem, 0, len(ratings))
	for i := range ratings {
		flags, err := s.Flags.ListByRating(ratings[i].ID)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, QueueItem{Rating: &ratings[i], Flags: flags})
	}
	return items, total, nil
}

// AddDeniedWord adds or updates a denied word or domain.
func (s *Service) AddDeniedWord(ctx context.Context, actor Actor, word string, moderation bool) (*models.DeniedRatingWord, error) {
	if err := s.authorize(actor, auth.ActionManageDeniedWords, auth.Resource{}); err != nil {
		return nil, err
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil, invalid("word", msgRequired)
	}
	saved, err := s.Words.Add(ctx, word, moderation)
	if err != nil {
		return nil, err
	}
	metrics.RecordScreening("denied_words", "updated")
	return saved, nil
}

// RemoveDeniedWord deletes a denied word. Unknown words are ErrNotFound.
func (s *Service) RemoveDeniedWord(ctx context.Context, actor Actor, word string) error {
	if err := s.authorize(actor, auth.ActionManageDeniedWords, auth.Resource{}); err != nil {
		return err
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return invalid("word", msgRequired)
	}
	return s.Words.Remove(ctx, word)
}
