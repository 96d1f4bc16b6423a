// Package models defines domain models for the add-on ratings service.
package models

import (
	"path"
	"time"
)

// Permission rules, written "App:Action". A "*" in either half matches anything.
const (
	PermissionAddonsEdit          = "Addons:Edit"
	PermissionRatingsModerate     = "Ratings:Moderate"
	PermissionAPIBypassThrottling = "API:BypassThrottling"
)

// User represents an account that can post, moderate or reply to ratings.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Name        string    `gorm:"size:255" json:"name"`
	Email       string    `gorm:"size:255;index" json:"-"`
	LastLoginIP string    `gorm:"size:45" json:"-"`
	Permissions []string  `gorm:"serializer:json;type:text" json:"-"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// HasPermission reports whether one of the user's rules grants app:action.
func (u *User) HasPermission(rule string) bool {
	if u == nil {
		return false
	}
	app, action := splitRule(rule)
	for _, granted := range u.Permissions {
		gApp, gAction := splitRule(granted)
		if ruleMatch(gApp, app) && ruleMatch(gAction, action) {
			return true
		}
	}
	return false
}

// DisplayName returns the public name, falling back to the username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

func splitRule(rule string) (string, string) {
	for i := 0; i < len(rule); i++ {
		if rule[i] == ':' {
			return rule[:i], rule[i+1:]
		}
	}
	return rule, ""
}

func ruleMatch(pattern, value string) bool {
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}
