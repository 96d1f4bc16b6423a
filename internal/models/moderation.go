package models

import (
	"encoding/json"
	"time"
)

// DeniedRatingWord is a word or domain that rejects or flags a rating body.
// Moderation true flags the rating; false rejects the submission.
type DeniedRatingWord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Word       string    `gorm:"uniqueIndex;size:255;not null" json:"word"`
	Moderation bool      `gorm:"not null;default:false" json:"moderation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for DeniedRatingWord model.
func (DeniedRatingWord) TableName() string {
	return "ratings_denied_words"
}

// Restriction types.
const (
	RestrictionAddonSubmission = 1
	RestrictionAddonApproval   = 2
	RestrictionRating          = 3
	RestrictionRatingModerate  = 4
)

// IPNetworkRestriction blocks or moderates requests from a CIDR network.
type IPNetworkRestriction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Network         string    `gorm:"size:45;not null" json:"network"`
	RestrictionType int       `gorm:"not null;default:1;index" json:"restriction_type"`
	Reason          string    `gorm:"size:255" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for IPNetworkRestriction model.
func (IPNetworkRestriction) TableName() string {
	return "users_user_network_restriction"
}

// EmailRestriction blocks or moderates accounts whose normalized email matches a glob.
type EmailRestriction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EmailPattern    string    `gorm:"size:100;not null" json:"email_pattern"`
	RestrictionType int       `gorm:"not null;default:1;index" json:"restriction_type"`
	Reason          string    `gorm:"size:255" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for EmailRestriction model.
func (EmailRestriction) TableName() string {
	return "users_user_email_restriction"
}

// DisposableEmailDomainRestriction blocks or moderates an email domain.
type DisposableEmailDomainRestriction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Domain          string    `gorm:"uniqueIndex;size:255;not null" json:"domain"`
	RestrictionType int       `gorm:"not null;default:1;index" json:"restriction_type"`
	Reason          string    `gorm:"size:255" json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for DisposableEmailDomainRestriction model.
func (DisposableEmailDomainRestriction) TableName() string {
	return "users_disposable_email_domain_restriction"
}

// Activity log actions.
const (
	ActionAddRating      = "add_rating"
	ActionEditRating     = "edit_rating"
	ActionDeleteRating   = "delete_rating"
	ActionUndeleteRating = "undelete_rating"
	ActionApproveRating  = "approve_rating"
	ActionReplyRating    = "reply_rating"
	ActionFlagRating     = "flag_rating"
)

// ActivityLog is the append-only audit trail of rating actions.
type ActivityLog struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Action    string          `gorm:"size:50;not null;index" json:"action"`
	UserID    *uint           `gorm:"index" json:"user_id"`
	AddonID   uint            `gorm:"not null;index" json:"addon_id"`
	RatingID  uint            `gorm:"not null;index" json:"rating_id"`
	Details   json.RawMessage `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName specifies the table name for ActivityLog model.
func (ActivityLog) TableName() string {
	return "log_activity"
}

// RatingSnapshot is recorded when a rating is deleted by someone else or approved.
type RatingSnapshot struct {
	Body       string `json:"body"`
	AddonID    uint   `json:"addon_id"`
	AddonTitle string `json:"addon_title"`
	IsFlagged  bool   `json:"is_flagged"`
}
