// Package ratings is the rating application service: every write states its
// side effects (screening flags, activity log, notifications, recompute tasks)
// explicitly and in order.
package ratings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
	"github.com/aimd54/addon-ratings/internal/screening"
	"github.com/aimd54/addon-ratings/internal/tasks"
	"github.com/aimd54/addon-ratings/internal/throttle"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// RatingStore persists ratings.
type RatingStore interface {
	Create(rating *models.Rating) error
	Save(rating *models.Rating) error
	UpdateColumns(id uint, columns map[string]interface{}) error
	SetDeleted(rating *models.Rating, deleted bool) error
	GetActive(id uint) (*models.Rating, error)
	GetUnfiltered(id uint) (*models.Rating, error)
	ReplyTo(ratingID uint) (*models.Rating, error)
	ExistsForVersion(addonID, userID, versionID uint) (bool, error)
	List(f repository.ListFilter) ([]models.Rating, int64, error)
	ToModerate(page, pageSize int) ([]models.Rating, int64, error)
}

// FlagStore persists moderation flags.
type FlagStore interface {
	Upsert(flag *models.RatingFlag) error
	ListByRating(ratingID uint) ([]models.RatingFlag, error)
	ListByUser(userID uint, ratingIDs []uint) (map[uint][]models.RatingFlag, error)
	DeleteByRating(ratingID uint) error
}

// VoteStore persists helpfulness votes.
type VoteStore interface {
	Upsert(vote *models.RatingVote) error
	Counts(ratingIDs []uint) (map[uint]models.VoteCounts, error)
}

// AddonStore reads add-ons and versions.
type AddonStore interface {
	GetByID(id uint) (*models.Addon, error)
	IsAuthor(addonID, userID uint) (bool, error)
	Authors(addonID uint) ([]models.User, error)
	GetVersion(id uint) (*models.Version, error)
}

// ActivityStore appends to the audit trail.
type ActivityStore interface {
	Create(entry *models.ActivityLog) error
}

// WordScreen matches bodies against denied words and manages the list.
type WordScreen interface {
	Match(ctx context.Context, body string) (*screening.MatchResult, error)
	Add(ctx context.Context, word string, moderation bool) (*models.DeniedRatingWord, error)
	Remove(ctx context.Context, word string) error
}

// RestrictionScreen applies user restrictions.
type RestrictionScreen interface {
	Deny(s screening.Subject) (*screening.Verdict, error)
	Moderate(s screening.Subject) (*screening.Verdict, error)
}

// Throttler rate-limits write scopes.
type Throttler interface {
	Allow(ctx context.Context, scope string, user *models.User, ip string) (throttle.Decision, error)
}

// Denormalizer runs the inline denormalization and serves grouped ratings.
type Denormalizer interface {
	UpdateDenorm(ctx context.Context, addonID, userID uint) error
	GroupedRatings(ctx context.Context, addonID uint) ([]models.ScoreCount, error)
}

// Notifier sends rating emails.
type Notifier interface {
	RatingAdded(ctx context.Context, addon *models.Addon, rating *models.Rating, authors []models.User) error
	ReplyAdded(ctx context.Context, addon *models.Addon, original, reply *models.Rating) error
}

// Alerter tells moderators a rating was queued automatically.
type Alerter interface {
	RatingQueued(ctx context.Context, rating *models.Rating, reason, note string) error
}

// Actor is who performs an operation and from where.
type Actor struct {
	User *models.User
	// IP is the client address; ForwardedFor holds X-Forwarded-For hops.
	IP           string
	ForwardedFor []string
}

func (a Actor) userID() *uint {
	if a.User == nil {
		return nil
	}
	id := a.User.ID
	return &id
}

func (a Actor) subject() screening.Subject {
	ips := make([]string, 0, 1+len(a.ForwardedFor))
	if a.IP != "" {
		ips = append(ips, a.IP)
	}
	ips = append(ips, a.ForwardedFor...)
	return screening.Subject{User: a.User, IPs: ips}
}

// Deps wires a Service.
type Deps struct {
	Ratings      RatingStore
	Flags        FlagStore
	Votes        VoteStore
	Addons       AddonStore
	Activity     ActivityStore
	Words        WordScreen
	Restrictions RestrictionScreen
	Throttle     Throttler
	Denorm       Denormalizer
	Queue        tasks.Queue
	Notifier     Notifier
	Alerter      Alerter
	// System is the account automated flags and log entries are attributed to.
	System        *models.User
	MaxBodyLength int
	// PageSize is used when a listing does not ask for one.
	PageSize int
	Log      *logger.Logger
}

// Service implements the rating operations.
type Service struct {
	Deps
}

// NewService creates a rating service. Notifier and Alerter may be nil.
func NewService(d Deps) *Service {
	if d.MaxBodyLength <= 0 {
		d.MaxBodyLength = 4000
	}
	if d.PageSize <= 0 {
		d.PageSize = 25
	}
	return &Service{Deps: d}
}

// isAuthor reports whether the actor authors the add-on. Lookup failures count as no.
func (s *Service) isAuthor(actor Actor, addonID uint) bool {
	if actor.User == nil {
		return false
	}
	ok, err := s.Addons.IsAuthor(addonID, actor.User.ID)
	if err != nil {
		s.Log.ForAddon(addonID).Warn().Err(err).Msg("Failed to check addon authorship")
		return false
	}
	return ok
}

func (s *Service) authorize(actor Actor, action auth.Action, res auth.Resource) error {
	if auth.Authorize(actor.User, action, res) {
		return nil
	}
	if actor.User == nil {
		return ErrUnauthenticated
	}
	return forbidden()
}

// throttle fails open when the counter store is unavailable.
func (s *Service) throttle(ctx context.Context, scope string, actor Actor) error {
	if s.Throttle == nil {
		return nil
	}
	d, err := s.Throttle.Allow(ctx, scope, actor.User, actor.IP)
	if err != nil {
		s.Log.Warn().Err(err).Str("scope", scope).Msg("Throttle check failed, allowing request")
		return nil
	}
	if !d.Allowed {
		return &ThrottledError{Scope: scope, RetryAfter: d.RetryAfter}
	}
	return nil
}

// logActivity appends an audit entry. Failures are logged only.
func (s *Service) logActivity(action string, user *uint, rating *models.Rating, details interface{}) {
	entry := &models.ActivityLog{
		Action:   action,
		UserID:   user,
		AddonID:  rating.AddonID,
		RatingID: rating.ID,
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = data
		}
	}
	if err := s.Activity.Create(entry); err != nil {
		s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Str("action", action).Msg("Failed to write activity log")
	}
}

func snapshot(r *models.Rating) models.RatingSnapshot {
	return models.RatingSnapshot{
		Body:       r.BodyText(),
		AddonID:    r.AddonID,
		AddonTitle: r.Addon.Name,
		IsFlagged:  r.EditorReview,
	}
}

// refresh runs the post-write recompute of a top-level rating: denormalization
// inline (unless skipDenorm), then the aggregate, grouped and index tasks
// through the queue. The aggregate task also recomputes the bayesian rating.
func (s *Service) refresh(ctx context.Context, rating *models.Rating, skipDenorm bool) {
	if rating.IsReply() {
		return
	}
	if !skipDenorm {
		if err := s.Denorm.UpdateDenorm(ctx, rating.AddonID, rating.UserID); err != nil {
			s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Msg("Failed to update rating denormalization")
		}
	}
	for _, name := range []string{tasks.AddonRatingAggregates, tasks.AddonGroupedRatings, tasks.IndexAddon} {
		if err := s.Queue.Enqueue(ctx, tasks.Task{Name: name, AddonIDs: []uint{rating.AddonID}}); err != nil {
			s.Log.ForAddon(rating.AddonID).Error().Err(err).Str("task", name).Msg("Failed to enqueue task")
		}
	}
}

// autoFlag records a screening flag from the system actor and marks the rating
// for editor review.
func (s *Service) autoFlag(ctx context.Context, rating *models.Rating, reason, note string) {
	var systemID *uint
	if s.System != nil {
		id := s.System.ID
		systemID = &id
	}
	flag := &models.RatingFlag{RatingID: rating.ID, UserID: systemID, Flag: reason, Note: note}
	if err := s.Flags.Upsert(flag); err != nil {
		s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Str("reason", reason).Msg("Failed to record automatic flag")
		return
	}
	if !rating.EditorReview {
		if err := s.Ratings.UpdateColumns(rating.ID, map[string]interface{}{"editorreview": true}); err != nil {
			s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Msg("Failed to mark rating for review")
			return
		}
		rating.EditorReview = true
	}
	s.logActivity(models.ActionFlagRating, systemID, rating, map[string]string{"flag": reason, "note": note})
	metrics.RecordScreening(reason, "flagged")

	if s.Alerter != nil {
		if err := s.Alerter.RatingQueued(ctx, rating, reason, note); err != nil {
			s.Log.ForRating(rating.ID, rating.AddonID).Warn().Err(err).Msg("Failed to send moderation alert")
		}
	}
}

// screenBody rejects denied words and returns the moderated ones.
func (s *Service) screenBody(ctx context.Context, body string) ([]string, error) {
	if body == "" {
		return nil, nil
	}
	match, err := s.Words.Match(ctx, body)
	if err != nil {
		return nil, err
	}
	if match.Rejected() {
		metrics.RecordScreening("denied_words", "rejected")
		return nil, invalid("body", screening.DeniedMessage(match.Denied))
	}
	return match.Moderated, nil
}

// moderateAfterSave applies the flags screening decided on once the row exists.
func (s *Service) moderateAfterSave(ctx context.Context, actor Actor, rating *models.Rating, moderatedWords []string) {
	if len(moderatedWords) > 0 {
		s.autoFlag(ctx, rating, models.FlagAutoMatch, screening.MatchedNote(moderatedWords))
	}
	verdict, err := s.Restrictions.Moderate(actor.subject())
	if err != nil {
		s.Log.ForRating(rating.ID, rating.AddonID).Error().Err(err).Msg("Failed to check moderation restrictions")
		return
	}
	if verdict.Restricted {
		s.autoFlag(ctx, rating, models.FlagAutoRestriction, verdict.Note)
	}
}

func record(action string, err error) {
	status := "success"
	if err != nil {
		var ve *ValidationError
		var te *ThrottledError
		switch {
		case errors.As(err, &ve):
			status = "invalid"
		case errors.As(err, &te):
			status = "throttled"
		default:
			status = "error"
		}
	}
	metrics.RecordRatingAction(action, status)
}

func (s *Service) validBody(body *string) *ValidationError {
	if body != nil && len([]rune(*body)) > s.MaxBodyLength {
		return invalid("body", "Ensure this field has no more than 4000 characters.")
	}
	return nil
}
