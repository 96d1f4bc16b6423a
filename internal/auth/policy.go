// Package auth verifies bearer tokens and decides which actor may perform
// which action on a rating.
package auth

import (
	"github.com/aimd54/addon-ratings/internal/models"
)

// Action is an operation on ratings.
type Action string

// Actions.
const (
	ActionList              Action = "list"
	ActionGet               Action = "get"
	ActionListDeleted       Action = "list_deleted"
	ActionCreate            Action = "create"
	ActionEdit              Action = "edit"
	ActionDelete            Action = "delete"
	ActionUndelete          Action = "undelete"
	ActionReply             Action = "reply"
	ActionFlag              Action = "flag"
	ActionVote              Action = "vote"
	ActionApprove           Action = "approve"
	ActionModerationQueue   Action = "moderation_queue"
	ActionManageDeniedWords Action = "manage_denied_words"
)

// Resource is what an action targets. Rating is nil for collection actions.
type Resource struct {
	Rating *models.Rating
	// IsAddonAuthor is whether the actor authors the add-on the rating belongs to.
	IsAddonAuthor bool
}

type rule func(actor *models.User, res Resource) bool

func anyone(*models.User, Resource) bool { return true }

func authenticated(actor *models.User, _ Resource) bool { return actor != nil }

func owner(actor *models.User, res Resource) bool {
	return actor != nil && res.Rating != nil && res.Rating.UserID == actor.ID
}

func addonAuthor(actor *models.User, res Resource) bool {
	return actor != nil && res.IsAddonAuthor
}

func flagged(_ *models.User, res Resource) bool {
	return res.Rating != nil && res.Rating.EditorReview
}

func isReply(_ *models.User, res Resource) bool {
	return res.Rating != nil && res.Rating.IsReply()
}

func permission(p string) rule {
	return func(actor *models.User, _ Resource) bool { return actor.HasPermission(p) }
}

func not(r rule) rule {
	return func(actor *models.User, res Resource) bool { return !r(actor, res) }
}

func allOf(rules ...rule) rule {
	return func(actor *models.User, res Resource) bool {
		for _, r := range rules {
			if !r(actor, res) {
				return false
			}
		}
		return true
	}
}

func anyOf(rules ...rule) rule {
	return func(actor *models.User, res Resource) bool {
		for _, r := range rules {
			if r(actor, res) {
				return true
			}
		}
		return false
	}
}

var policy = map[Action]rule{
	ActionList:        anyone,
	ActionGet:         anyone,
	ActionListDeleted: permission(models.PermissionAddonsEdit),
	ActionCreate:      authenticated,
	ActionEdit:        anyOf(owner, permission(models.PermissionAddonsEdit)),
	ActionDelete: anyOf(
		owner,
		permission(models.PermissionAddonsEdit),
		allOf(permission(models.PermissionRatingsModerate), flagged),
		allOf(addonAuthor, isReply),
	),
	ActionUndelete:          permission(models.PermissionAddonsEdit),
	ActionReply:             anyOf(permission(models.PermissionAddonsEdit), addonAuthor),
	ActionFlag:              allOf(authenticated, not(owner)),
	ActionVote:              allOf(authenticated, not(owner)),
	ActionApprove:           permission(models.PermissionRatingsModerate),
	ActionModerationQueue:   permission(models.PermissionRatingsModerate),
	ActionManageDeniedWords: permission(models.PermissionAddonsEdit),
}

// Authorize reports whether actor (nil when anonymous) may perform action on res.
// Unknown actions are denied.
func Authorize(actor *models.User, action Action, res Resource) bool {
	r, ok := policy[action]
	if !ok {
		return false
	}
	return r(actor, res)
}
