package ratings

import (
	"context"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/internal/repository"
)

const (
	msgNeedAddonOrUser = "Need an addon or user parameter"
	msgShowFlagsFor    = "show_flags_for parameter value should be equal to the user id of the authenticated user"
)

// ListQuery selects ratings for a listing.
type ListQuery struct {
	AddonID    *uint
	UserID     *uint
	VersionID  *uint
	Scores     []int
	ExcludeIDs []uint
	// WithDeleted is honoured only for actors allowed to see deleted ratings.
	WithDeleted      bool
	WithoutEmptyBody bool
	WithYours        bool
	ShowFlagsFor     *uint
	ShowGrouped      bool
	Page             int
	PageSize         int
}

// View is a rating with the vote counts and the flags visible to the caller.
type View struct {
	Rating *models.Rating
	Votes  models.VoteCounts
	Flags  []models.RatingFlag
}

// ListResult is one page of a listing.
type ListResult struct {
	Items    []View
	Total    int64
	Page     int
	PageSize int
	// Grouped is set when ShowGrouped was requested for an add-on.
	Grouped []models.ScoreCount
	// CanReply is set for add-on listings.
	CanReply *bool
}

// List returns ratings for an add-on or a user.
func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) (*ListResult, error) {
	if q.AddonID == nil && q.UserID == nil {
		return nil, invalid("non_field_errors", msgNeedAddonOrUser)
	}
	if q.ShowFlagsFor != nil && (actor.User == nil || *q.ShowFlagsFor != actor.User.ID) {
		return nil, invalid("show_flags_for", msgShowFlagsFor)
	}
	if q.PageSize < 1 {
		q.PageSize = s.PageSize
	}

	f := repository.ListFilter{
		AddonID:          q.AddonID,
		UserID:           q.UserID,
		VersionID:        q.VersionID,
		Scores:           q.Scores,
		ExcludeIDs:       q.ExcludeIDs,
		TopLevelOnly:     true,
		IncludeDeleted:   q.WithDeleted && auth.Authorize(actor.User, auth.ActionListDeleted, auth.Resource{}),
		WithoutEmptyBody: q.WithoutEmptyBody,
		Page:             q.Page,
		PageSize:         q.PageSize,
	}
	if q.WithYours && actor.User != nil {
		f.WithYoursUserID = actor.userID()
	}

	result := &ListResult{}
	if q.AddonID != nil {
		addon, err := s.Addons.GetByID(*q.AddonID)
		if err != nil {
			return nil, err
		}
		author := s.isAuthor(actor, addon.ID)
		if !addon.IsPublic() && !author && !actor.User.HasPermission(models.PermissionAddonsEdit) {
			return nil, ErrNotFound
		}
		if q.VersionID == nil && q.UserID == nil {
			f.OnlyLatest = true
		}
		canReply := auth.Authorize(actor.User, auth.ActionReply, auth.Resource{IsAddonAuthor: author})
		result.CanReply = &canReply
		if q.ShowGrouped {
			grouped, err := s.Denorm.GroupedRatings(ctx, addon.ID)
			if err != nil {
				return nil, err
			}
			result.Grouped = grouped
		}
	} else {
		f.PublicAddonsOnly = true
	}

	ratings, total, err := s.Ratings.List(f)
	if err != nil {
		return nil, err
	}
	result.Total = total
	result.Page, result.PageSize = pageOf(q.Page, q.PageSize)

	ids := make([]uint, 0, len(ratings))
	for _, r := range ratings {
		ids = append(ids, r.ID)
	}
	votes, err := s.Votes.Counts(ids)
	if err != nil {
		return nil, err
	}
	var flags map[uint][]models.RatingFlag
	if q.ShowFlagsFor != nil {
		if flags, err = s.Flags.ListByUser(*q.ShowFlagsFor, ids); err != nil {
			return nil, err
		}
	}

	result.Items = make([]View, 0, len(ratings))
	for i := range ratings {
		r := &ratings[i]
		result.Items = append(result.Items, View{Rating: r, Votes: votes[r.ID], Flags: flags[r.ID]})
	}
	return result, nil
}

// Get returns one rating. Deleted ratings are visible to admins only; ratings
// of non-public add-ons only to their authors and admins.
func (s *Service) Get(_ context.Context, actor Actor, id uint) (*View, error) {
	var (
		rating *models.Rating
		err    error
	)
	admin := auth.Authorize(actor.User, auth.ActionListDeleted, auth.Resource{})
	if admin {
		rating, err = s.Ratings.GetUnfiltered(id)
	} else {
		rating, err = s.Ratings.GetActive(id)
	}
	if err != nil {
		return nil, err
	}
	if !admin && !rating.Addon.IsPublic() && !s.isAuthor(actor, rating.AddonID) {
		return nil, ErrNotFound
	}

	votes, err := s.Votes.Counts([]uint{rating.ID})
	if err != nil {
		return nil, err
	}
	view := &View{Rating: rating, Votes: votes[rating.ID]}
	if actor.User != nil {
		flags, err := s.Flags.ListByUser(actor.User.ID, []uint{rating.ID})
		if err != nil {
			return nil, err
		}
		view.Flags = flags[rating.ID]
	}
	return view, nil
}

// GroupedRatings returns the score histogram of an add-on.
func (s *Service) GroupedRatings(ctx context.Context, addonID uint) ([]models.ScoreCount, error) {
	if _, err := s.Addons.GetByID(addonID); err != nil {
		return nil, err
	}
	return s.Denorm.GroupedRatings(ctx, addonID)
}

// CanReply reports whether the actor may reply to ratings of the add-on.
func (s *Service) CanReply(_ context.Context, actor Actor, addonID uint) bool {
	return auth.Authorize(actor.User, auth.ActionReply, auth.Resource{IsAddonAuthor: s.isAuthor(actor, addonID)})
}

func pageOf(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 25
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
