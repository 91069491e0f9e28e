// Package policy holds the role/entitlement rules of the portal.
//
// Everything here is a pure function of its arguments: no I/O, no caching.
// Callers pass the role carried on the current session token; the only
// rules that look at stored data take it as an explicit argument
// (CheckRoleAssignment's targetStored).
package policy

import (
	"net/http"

	"github.com/sakif/video-portal/internal/model"
)

// Action is a permission-checked operation.
type Action string

const (
	ActionViewVideo          Action = "video:view"
	ActionManageVideos       Action = "video:manage" // upload, edit, delete
	ActionListProfiles       Action = "profile:list"
	ActionPromoteSubscriber  Action = "profile:promote-subscriber"
	ActionPromoteAdmin       Action = "profile:promote-admin"
	ActionModifyOwner        Action = "profile:modify-owner"
	ActionInitiateCheckout   Action = "billing:checkout"
	ActionCancelSubscription Action = "billing:cancel"
)

// UpgradePath is where guests are sent when they hit subscriber content.
const UpgradePath = "/pricing"

// Decision is the outcome of a policy check. Status and Message are only
// meaningful when Allowed is false.
type Decision struct {
	Allowed  bool
	Status   int
	Message  string
	Redirect string
}

var allow = Decision{Allowed: true}

func deny(status int, message string) Decision {
	return Decision{Status: status, Message: message}
}

// rules is the policy table. A role missing from an action's row is denied
// with that row's fallback.
var rules = map[Action]struct {
	allowed  map[model.Role]bool
	fallback Decision
}{
	ActionViewVideo: {
		allowed: roles(model.RoleSubscriber, model.RoleAdmin, model.RoleOwner),
		fallback: Decision{
			Status:   http.StatusForbidden,
			Message:  "An active subscription is required to watch this video",
			Redirect: UpgradePath,
		},
	},
	ActionManageVideos: {
		allowed:  roles(model.RoleAdmin, model.RoleOwner),
		fallback: deny(http.StatusForbidden, "Forbidden: Admin access required"),
	},
	ActionListProfiles: {
		allowed:  roles(model.RoleAdmin, model.RoleOwner),
		fallback: deny(http.StatusForbidden, "Forbidden"),
	},
	ActionPromoteSubscriber: {
		allowed:  roles(model.RoleAdmin, model.RoleOwner),
		fallback: deny(http.StatusForbidden, "Forbidden"),
	},
	ActionPromoteAdmin: {
		allowed:  roles(model.RoleOwner),
		fallback: deny(http.StatusForbidden, "Only owners can promote users to admin"),
	},
	// Owner accounts are never modifiable through the API, not even by
	// another owner.
	ActionModifyOwner: {
		allowed:  roles(),
		fallback: deny(http.StatusForbidden, "Cannot modify owner accounts"),
	},
	ActionInitiateCheckout: {
		allowed:  roles(model.RoleGuest, model.RoleSubscriber, model.RoleAdmin, model.RoleOwner),
		fallback: deny(http.StatusUnauthorized, "Unauthorized"),
	},
	ActionCancelSubscription: {
		allowed:  roles(model.RoleSubscriber),
		fallback: deny(http.StatusForbidden, "No active subscription"),
	},
}

func roles(rs ...model.Role) map[model.Role]bool {
	m := make(map[model.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// Decide maps {role, action} to allow/deny. Unknown actions and unknown
// roles are denied.
func Decide(role model.Role, action Action) Decision {
	rule, ok := rules[action]
	if !ok {
		return deny(http.StatusForbidden, "Forbidden")
	}
	if role.Valid() && rule.allowed[role] {
		return allow
	}
	return rule.fallback
}

// Allowed is shorthand for Decide(role, action).Allowed.
func Allowed(role model.Role, action Action) bool {
	return Decide(role, action).Allowed
}
