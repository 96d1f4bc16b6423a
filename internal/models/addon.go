package models

import (
	"time"
)

// Addon status constants.
const (
	AddonStatusNull      = 0
	AddonStatusNominated = 3
	AddonStatusApproved  = 4
	AddonStatusDisabled  = 5
)

// Version channel constants.
const (
	ChannelUnlisted = 1
	ChannelListed   = 2
)

// Addon is the rated item. Rating statistics are denormalized onto it.
type Addon struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Slug             string    `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Name             string    `gorm:"size:255" json:"name"`
	Status           int       `gorm:"not null;default:0;index" json:"-"`
	DisabledByUser   bool      `gorm:"not null;default:false" json:"-"`
	AverageRating    float64   `gorm:"not null;default:0" json:"-"`
	BayesianRating   float64   `gorm:"column:bayesian_rating;not null;default:0;index" json:"-"`
	TotalRatings     int       `gorm:"not null;default:0" json:"-"`
	TextRatingsCount int       `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`

	Authors []User `gorm:"many2many:addon_users;" json:"-"`
}

// TableName specifies the table name for Addon model.
func (Addon) TableName() string {
	return "addons"
}

// IsPublic reports whether the add-on is approved and enabled.
func (a *Addon) IsPublic() bool {
	return a.Status == AddonStatusApproved && !a.DisabledByUser
}

// Version is a released version of an add-on.
type Version struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AddonID   uint      `gorm:"not null;index" json:"-"`
	Version   string    `gorm:"size:255;not null" json:"version"`
	Channel   int       `gorm:"not null;default:2" json:"-"`
	Public    bool      `gorm:"not null;default:true" json:"-"`
	CreatedAt time.Time `json:"-"`
}

// TableName specifies the table name for Version model.
func (Version) TableName() string {
	return "versions"
}

// IsPublic reports whether the version may be rated.
func (v *Version) IsPublic() bool {
	return v.Public && v.Channel == ChannelListed
}

// RatingAggregate stores per-score rating counts for an add-on.
type RatingAggregate struct {
	AddonID   uint      `gorm:"primaryKey;autoIncrement:false" json:"addon_id"`
	Count1    int       `gorm:"column:count_1;not null;default:0" json:"count_1"`
	Count2    int       `gorm:"column:count_2;not null;default:0" json:"count_2"`
	Count3    int       `gorm:"column:count_3;not null;default:0" json:"count_3"`
	Count4    int       `gorm:"column:count_4;not null;default:0" json:"count_4"`
	Count5    int       `gorm:"column:count_5;not null;default:0" json:"count_5"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for RatingAggregate model.
func (RatingAggregate) TableName() string {
	return "ratings_rating_aggregate"
}

// Buckets returns the counts as score/count pairs from 1 to 5.
func (a *RatingAggregate) Buckets() []ScoreCount {
	return []ScoreCount{
		{Score: 1, Count: a.Count1},
		{Score: 2, Count: a.Count2},
		{Score: 3, Count: a.Count3},
		{Score: 4, Count: a.Count4},
		{Score: 5, Count: a.Count5},
	}
}

// ScoreCount is one bar of the grouped ratings chart.
type ScoreCount struct {
	Score int `json:"score"`
	Count int `json:"count"`
}
