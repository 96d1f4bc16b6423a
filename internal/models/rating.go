package models

import (
	"time"
)

// Rating is a user's scored review of an add-on version, or a developer reply to one.
//
// Deleted is 0 for live rows and the row's own id once soft-deleted, so the
// one_review_per_user index only ever constrains live rows. A rating has at
// most one reply row, deleted or not.
type Rating struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AddonID       uint      `gorm:"not null;index:idx_ratings_addon_user,priority:1" json:"-"`
	Addon         Addon     `gorm:"foreignKey:AddonID" json:"-"`
	VersionID     *uint     `gorm:"uniqueIndex:one_review_per_user,priority:1" json:"-"`
	Version       *Version  `gorm:"foreignKey:VersionID" json:"-"`
	UserID        uint      `gorm:"not null;index:idx_ratings_addon_user,priority:2;uniqueIndex:one_review_per_user,priority:2" json:"-"`
	User          User      `gorm:"foreignKey:UserID" json:"-"`
	ReplyToID     *uint     `gorm:"column:reply_to_id;uniqueIndex:one_review_per_user,priority:3;uniqueIndex:idx_reviews_single_reply,where:reply_to_id IS NOT NULL" json:"-"`
	Score         *int      `gorm:"column:rating" json:"-"`
	Body          *string   `gorm:"type:text" json:"-"`
	IPAddress     string    `gorm:"size:255;not null;default:'0.0.0.0'" json:"-"`
	EditorReview  bool      `gorm:"column:editorreview;not null;default:false;index" json:"-"`
	Flag          bool      `gorm:"not null;default:false" json:"-"`
	Deleted       uint      `gorm:"not null;default:0;uniqueIndex:one_review_per_user,priority:4" json:"-"`
	IsLatest      bool      `gorm:"not null;default:true" json:"-"`
	PreviousCount int       `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time `gorm:"index" json:"-"`
	UpdatedAt     time.Time `json:"-"`

	// Reply is attached by the repository, never persisted through this field.
	Reply *Rating `gorm:"-" json:"-"`
}

// TableName specifies the table name for Rating model.
func (Rating) TableName() string {
	return "reviews"
}

// IsDeleted reports whether the rating is soft-deleted.
func (r *Rating) IsDeleted() bool {
	return r.Deleted != 0
}

// IsReply reports whether the rating is a developer reply.
func (r *Rating) IsReply() bool {
	return r.ReplyToID != nil
}

// BodyText returns the body or the empty string.
func (r *Rating) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// HasBody reports whether the rating carries review text.
func (r *Rating) HasBody() bool {
	return r.Body != nil && *r.Body != ""
}

// Flag reason constants.
const (
	FlagSpam            = "review_flag_reason_spam"
	FlagLanguage        = "review_flag_reason_language"
	FlagSupport         = "review_flag_reason_bug_support"
	FlagAutoMatch       = "review_flag_reason_auto_match"
	FlagAutoRestriction = "review_flag_reason_auto_restriction"
	FlagOther           = "review_flag_reason_other"
)

// UserFlagReasons are the reasons a person may pick when flagging a rating.
var UserFlagReasons = []string{FlagSpam, FlagLanguage, FlagSupport, FlagOther}

// IsUserFlagReason reports whether reason may be submitted by a person.
func IsUserFlagReason(reason string) bool {
	for _, r := range UserFlagReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// RatingFlag is one user's moderation flag against one rating.
type RatingFlag struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RatingID  uint      `gorm:"column:review_id;not null;uniqueIndex:idx_flag_rating_user,priority:1" json:"-"`
	UserID    *uint     `gorm:"uniqueIndex:idx_flag_rating_user,priority:2" json:"-"`
	Flag      string    `gorm:"column:flag_name;size:64;not null;default:review_flag_reason_other" json:"flag"`
	Note      string    `gorm:"column:flag_notes;size:100;not null;default:''" json:"note"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName specifies the table name for RatingFlag model.
func (RatingFlag) TableName() string {
	return "reviews_moderation_flags"
}

// Vote values.
const (
	VoteDown = -1
	VoteUp   = 1
)

// RatingVote records whether a user found a rating helpful.
type RatingVote struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RatingID  uint      `gorm:"not null;uniqueIndex:idx_vote_rating_user,priority:1" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_vote_rating_user,priority:2" json:"-"`
	AddonID   uint      `gorm:"not null;index" json:"-"`
	Vote      int       `gorm:"not null" json:"vote"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName specifies the table name for RatingVote model.
func (RatingVote) TableName() string {
	return "reviews_votes"
}

// VoteCounts summarises the votes of one rating.
type VoteCounts struct {
	Upvote   int `json:"upvote"`
	Downvote int `json:"downvote"`
}
