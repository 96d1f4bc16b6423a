package ratings

import (
	"time"

	"github.com/aimd54/addon-ratings/internal/models"
	ratingsvc "github.com/aimd54/addon-ratings/internal/service/ratings"
)

type addonJSON struct {
	ID   uint   `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type userJSON struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type versionJSON struct {
	ID      uint   `json:"id"`
	Version string `json:"version"`
}

type flagJSON struct {
	Flag string `json:"flag"`
	Note string `json:"note"`
}

type ratingJSON struct {
	ID               uint               `json:"id"`
	Addon            addonJSON          `json:"addon"`
	Body             *string            `json:"body"`
	Score            *int               `json:"score"`
	Created          time.Time          `json:"created"`
	IsDeleted        bool               `json:"is_deleted"`
	IsDeveloperReply bool               `json:"is_developer_reply"`
	IsLatest         bool               `json:"is_latest"`
	PreviousCount    int                `json:"previous_count"`
	User             userJSON           `json:"user"`
	Version          *versionJSON       `json:"version"`
	Reply            *ratingJSON        `json:"reply,omitempty"`
	Flags            []flagJSON         `json:"flags,omitempty"`
	Votes            *models.VoteCounts `json:"votes,omitempty"`
}

func renderRating(r *models.Rating) ratingJSON {
	out := ratingJSON{
		ID:               r.ID,
		Addon:            addonJSON{ID: r.AddonID, Slug: r.Addon.Slug, Name: r.Addon.Name},
		Body:             r.Body,
		Score:            r.Score,
		Created:          r.CreatedAt.UTC(),
		IsDeleted:        r.IsDeleted(),
		IsDeveloperReply: r.IsReply(),
		IsLatest:         r.IsLatest,
		PreviousCount:    r.PreviousCount,
		User:             userJSON{ID: r.UserID, Name: r.User.DisplayName(), Username: r.User.Username},
	}
	if r.Version != nil {
		out.Version = &versionJSON{ID: r.Version.ID, Version: r.Version.Version}
	}
	if r.Reply != nil {
		reply := renderRating(r.Reply)
		out.Reply = &reply
	}
	return out
}

func renderView(v *ratingsvc.View) ratingJSON {
	out := renderRating(v.Rating)
	out.Flags = renderFlags(v.Flags)
	votes := v.Votes
	out.Votes = &votes
	return out
}

func renderFlags(flags []models.RatingFlag) []flagJSON {
	if len(flags) == 0 {
		return nil
	}
	out := make([]flagJSON, 0, len(flags))
	for _, f := range flags {
		out = append(out, flagJSON{Flag: f.Flag, Note: f.Note})
	}
	return out
}
