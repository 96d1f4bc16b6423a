package ratings

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/screening"
	"github.com/aimd54/addon-ratings/internal/throttle"
)

// Validation messages.
const (
	msgOwnAddon         = "You can't leave a review on your own add-on."
	msgDuplicate        = "You can't leave more than one review for the same version of an add-on."
	msgBadVersion       = "This version of the add-on doesn't exist or isn't public."
	msgAddonImmutable   = "You can't change the add-on of a review once it has been created."
	msgVersionImmutable = "You can't change the version of the add-on reviewed once the review has been created."
	msgReplyToReply     = "You can't reply to a review that is already a reply."
	msgRequired         = "This field is required."
	msgScoreRange       = "Ensure this value is between 1 and 5."
)

// CreateInput is a new top-level rating.
type CreateInput struct {
	AddonID   uint
	VersionID *uint
	Score     *int
	Body      *string
}

// UpdateInput is a partial update. AddonID and VersionID are accepted only to
// reject attempts to change them.
type UpdateInput struct {
	AddonID   *uint
	VersionID *uint
	Score     *int
	Body      *string
}

func validScore(score *int) *ValidationError {
	if score == nil {
		return invalid("score", msgRequired)
	}
	if *score < 1 || *score > 5 {
		return invalid("score", msgScoreRange)
	}
	return nil
}

func cleaned(body *string) *string {
	if body == nil {
		return nil
	}
	b := screening.CleanBody(*body)
	return &b
}

func clientIP(actor Actor) string {
	if actor.IP == "" {
		return "0.0.0.0"
	}
	return actor.IP
}

// Create posts a new rating for an add-on version.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (rating *models.Rating, err error) {
	defer func() { record("create", err) }()

	if err := s.authorize(actor, auth.ActionCreate, auth.Resource{}); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, throttle.ScopePost, actor); err != nil {
		return nil, err
	}
	if ve := validScore(in.Score); ve != nil {
		return nil, ve
	}
	body := cleaned(in.Body)
	if ve := s.validBody(body); ve != nil {
		return nil, ve
	}
	if in.VersionID == nil {
		return nil, invalid("version", msgRequired)
	}

	addon, err := s.Addons.GetByID(in.AddonID)
	if err != nil {
		return nil, err
	}
	if !addon.IsPublic() {
		return nil, fmt.Errorf("addon %d is not public: %w", addon.ID, ErrNotFound)
	}
	if s.isAuthor(actor, addon.ID) {
		return nil, invalid("non_field_errors", msgOwnAddon)
	}
	version, err := s.Addons.GetVersion(*in.VersionID)
	if err != nil || version.AddonID != addon.ID || !version.IsPublic() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, invalid("version", msgBadVersion)
	}

	verdict, err := s.Restrictions.Deny(actor.subject())
	if err != nil {
		return nil, err
	}
	if verdict.Restricted {
		return nil, &PermissionError{Message: verdict.Message}
	}

	exists, err := s.Ratings.ExistsForVersion(addon.ID, actor.User.ID, version.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &ConflictError{Message: msgDuplicate}
	}

	moderated, err := s.screenBody(ctx, deref(body))
	if err != nil {
		return nil, err
	}

	rating = &models.Rating{
		AddonID:   addon.ID,
		VersionID: &version.ID,
		UserID:    actor.User.ID,
		Score:     in.Score,
		Body:      body,
		IPAddress: clientIP(actor),
		IsLatest:  true,
	}
	hasLink := screening.ContainsLink(deref(body))
	if hasLink {
		rating.Flag = true
		rating.EditorReview = true
	}
	if err := s.Ratings.Create(rating); err != nil {
		return nil, err
	}
	rating.Addon = *addon
	rating.Version = version
	rating.User = *actor.User

	s.moderateAfterSave(ctx, actor, rating, moderated)
	if hasLink {
		s.alertLink(ctx, rating)
	}
	s.logActivity(models.ActionAddRating, actor.userID(), rating, nil)
	s.notifyAuthors(ctx, addon, rating)
	s.refresh(ctx, rating, false)

	s.Log.ForRating(rating.ID, rating.AddonID).Info().Uint("user_id", actor.User.ID).Msg("Rating created")
	return rating, nil
}

// Update edits the score or body of a rating.
func (s *Service) Update(ctx context.Context, actor Actor, id uint, in UpdateInput) (rating *models.Rating, err error) {
	defer func() { record("edit", err) }()

	rating, err = s.Ratings.GetActive(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, auth.ActionEdit, auth.Resource{Rating: rating}); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, throttle.ScopeEdit, actor); err != nil {
		return nil, err
	}

	if in.AddonID != nil && *in.AddonID != rating.AddonID {
		return nil, invalid("addon", msgAddonImmutable)
	}
	if in.VersionID != nil && (rating.VersionID == nil || *in.VersionID != *rating.VersionID) {
		return nil, invalid("version", msgVersionImmutable)
	}
	if in.Score != nil && !rating.IsReply() {
		if ve := validScore(in.Score); ve != nil {
			return nil, ve
		}
		rating.Score = in.Score
	}

	var moderated []string
	bodyChanged := false
	if body := cleaned(in.Body); body != nil && *body != rating.BodyText() {
		if ve := s.validBody(body); ve != nil {
			return nil, ve
		}
		if moderated, err = s.screenBody(ctx, *body); err != nil {
			return nil, err
		}
		rating.Body = body
		bodyChanged = true
	}
	hasLink := bodyChanged && screening.ContainsLink(rating.BodyText())
	if hasLink {
		rating.Flag = true
		rating.EditorReview = true
	}

	if err := s.Ratings.Save(rating); err != nil {
		return nil, err
	}

	if len(moderated) > 0 {
		s.autoFlag(ctx, rating, models.FlagAutoMatch, screening.MatchedNote(moderated))
	}
	if hasLink {
		s.alertLink(ctx, rating)
	}
	s.logActivity(models.ActionEditRating, actor.userID(), rating, nil)
	// Ordering within (addon, user) is unchanged by an edit.
	s.refresh(ctx, rating, true)
	return rating, nil
}

// Delete soft-deletes a rating. A delete by anyone but the author keeps the
// flags and records a snapshot of the rating for audit.
func (s *Service) Delete(ctx context.Context, actor Actor, id uint) (err error) {
	defer func() { record("delete", err) }()

	rating, err := s.Ratings.GetActive(id)
	if err != nil {
		return err
	}
	res := auth.Resource{Rating: rating, IsAddonAuthor: s.isAuthor(actor, rating.AddonID)}
	if err := s.authorize(actor, auth.ActionDelete, res); err != nil {
		return err
	}
	if err := s.throttle(ctx, throttle.ScopeDelete, actor); err != nil {
		return err
	}

	if err := s.Ratings.SetDeleted(rating, true); err != nil {
		return err
	}
	// Flags of a deleted rating are excluded from the moderation queue.
	byAuthor := actor.User.ID == rating.UserID
	if byAuthor {
		if err := s.Flags.DeleteByRating(rating.ID); err != nil {
			s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Msg("Failed to remove flags of deleted rating")
		}
	}

	if byAuthor {
		s.logActivity(models.ActionDeleteRating, actor.userID(), rating, nil)
	} else {
		s.logActivity(models.ActionDeleteRating, actor.userID(), rating, snapshot(rating))
	}
	s.refresh(ctx, rating, false)

	s.Log.ForRating(rating.ID, rating.AddonID).Info().Uint("deleted_by", actor.User.ID).Bool("by_author", byAuthor).Msg("Rating deleted")
	return nil
}

// Undelete restores a soft-deleted rating. It fails with a conflict when the
// author has since posted another rating for the same version.
func (s *Service) Undelete(ctx context.Context, actor Actor, id uint) (rating *models.Rating, err error) {
	defer func() { record("undelete", err) }()

	rating, err = s.Ratings.GetUnfiltered(id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, auth.ActionUndelete, auth.Resource{Rating: rating}); err != nil {
		return nil, err
	}
	if !rating.IsDeleted() {
		return rating, nil
	}
	if !rating.IsReply() && rating.VersionID != nil {
		exists, err := s.Ratings.ExistsForVersion(rating.AddonID, rating.UserID, *rating.VersionID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &ConflictError{Message: msgDuplicate}
		}
	}

	if err := s.Ratings.SetDeleted(rating, false); err != nil {
		return nil, err
	}
	s.logActivity(models.ActionUndeleteRating, actor.userID(), rating, nil)
	s.refresh(ctx, rating, false)
	return rating, nil
}

// Reply creates the developer reply to a rating, or edits (and if needed
// restores) the existing one. created reports whether a new row was written.
func (s *Service) Reply(ctx context.Context, actor Actor, ratingID uint, body string) (reply *models.Rating, created bool, err error) {
	defer func() { record("reply", err) }()

	original, err := s.Ratings.GetActive(ratingID)
	if err != nil {
		return nil, false, err
	}
	res := auth.Resource{Rating: original, IsAddonAuthor: s.isAuthor(actor, original.AddonID)}
	if err := s.authorize(actor, auth.ActionReply, res); err != nil {
		return nil, false, err
	}
	if err := s.throttle(ctx, throttle.ScopeReply, actor); err != nil {
		return nil, false, err
	}
	if original.IsReply() {
		return nil, false, invalid("non_field_errors", msgReplyToReply)
	}
	text := cleaned(&body)
	if *text == "" {
		return nil, false, invalid("body", msgRequired)
	}
	if ve := s.validBody(text); ve != nil {
		return nil, false, ve
	}
	verdict, err := s.Restrictions.Deny(actor.subject())
	if err != nil {
		return nil, false, err
	}
	if verdict.Restricted {
		return nil, false, &PermissionError{Message: verdict.Message}
	}
	moderated, err := s.screenBody(ctx, *text)
	if err != nil {
		return nil, false, err
	}

	reply, err = s.Ratings.ReplyTo(original.ID)
	switch {
	case err == nil:
		reply.Body = text
		reply.Deleted = 0
		if err := s.Ratings.Save(reply); err != nil {
			return nil, false, err
		}
		s.logActivity(models.ActionEditRating, actor.userID(), reply, nil)
	case errors.Is(err, ErrNotFound):
		reply = &models.Rating{
			AddonID:   original.AddonID,
			UserID:    actor.User.ID,
			ReplyToID: &original.ID,
			Body:      text,
			IPAddress: clientIP(actor),
			IsLatest:  true,
		}
		if err := s.Ratings.Create(reply); err != nil {
			return nil, false, err
		}
		reply.User = *actor.User
		created = true
		s.logActivity(models.ActionReplyRating, actor.userID(), reply, nil)
	default:
		return nil, false, err
	}
	reply.Addon = original.Addon

	s.moderateAfterSave(ctx, actor, reply, moderated)
	if created && s.Notifier != nil {
		if err := s.Notifier.ReplyAdded(ctx, &original.Addon, original, reply); err != nil {
			s.Log.ForRating(original.ID, original.AddonID).Warn().Err(err).Msg("Failed to send reply notification")
		}
	}
	return reply, created, nil
}

func (s *Service) notifyAuthors(ctx context.Context, addon *models.Addon, rating *models.Rating) {
	if s.Notifier == nil {
		return
	}
	authors, err := s.Addons.Authors(addon.ID)
	if err != nil {
		s.Log.ForAddon(addon.ID).Warn().Err(err).Msg("Failed to load addon authors")
		return
	}
	if len(authors) == 0 {
		return
	}
	if err := s.Notifier.RatingAdded(ctx, addon, rating, authors); err != nil {
		s.Log.ForRating(rating.ID, rating.AddonID).Warn().Err(err).Msg("Failed to send rating notification")
	}
}

func (s *Service) alertLink(ctx context.Context, rating *models.Rating) {
	if s.Alerter == nil {
		return
	}
	if err := s.Alerter.RatingQueued(ctx, rating, "link", "Body contains a link"); err != nil {
		s.Log.ForRating(rating.ID, rating.AddonID).Warn().Err(err).Msg("Failed to send moderation alert")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
