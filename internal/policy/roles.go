package policy

import (
	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/model"
)

// ResolveRole computes the role a Discord identity should hold right now.
//
// The owner override is a standing rule evaluated on every login and every
// token refresh: the configured owner always resolves to owner, and a
// stored owner that no longer matches the configuration falls back to
// guest. Otherwise a returning profile keeps its stored role and a new one
// starts as guest.
func ResolveRole(discordID, ownerID string, stored model.Role, exists bool) model.Role {
	if ownerID != "" && discordID == ownerID {
		return model.RoleOwner
	}
	if !exists || stored == model.RoleOwner || !stored.Valid() {
		return model.RoleGuest
	}
	return stored
}

// AssignableRoles are the roles the role-update action may set. Owner is
// never assignable; it comes only from ResolveRole.
var AssignableRoles = []model.Role{model.RoleGuest, model.RoleSubscriber, model.RoleAdmin}

// IsAssignable reports whether r may be set through the role-update action.
func IsAssignable(r model.Role) bool {
	for _, a := range AssignableRoles {
		if a == r {
			return true
		}
	}
	return false
}

// CheckRoleAssignment validates an actor setting newRole on a target whose
// stored role is targetStored. The checks run in the order the API reports
// them: actor privilege, requested role, admin promotion, owner immutability.
func CheckRoleAssignment(actor, targetStored, newRole model.Role) error {
	if d := Decide(actor, ActionPromoteSubscriber); !d.Allowed {
		return apperror.Forbidden(d.Message)
	}
	if !IsAssignable(newRole) {
		return apperror.ValidationFailed("role", "Invalid role")
	}
	if newRole == model.RoleAdmin {
		if d := Decide(actor, ActionPromoteAdmin); !d.Allowed {
			return apperror.Forbidden(d.Message)
		}
	}
	if targetStored == model.RoleOwner {
		return apperror.Forbidden(Decide(actor, ActionModifyOwner).Message)
	}
	return nil
}

// DeriveStatus returns the subscription status written alongside a role
// change: guest forces inactive, subscriber forces active, admin keeps
// whatever the target had.
func DeriveStatus(newRole model.Role, prior model.SubscriptionStatus) model.SubscriptionStatus {
	switch newRole {
	case model.RoleGuest:
		return model.StatusInactive
	case model.RoleSubscriber:
		return model.StatusActive
	default:
		if prior == "" {
			return model.StatusInactive
		}
		return prior
	}
}

// BillingRole is the role a billing event writes onto a profile whose
// stored role is current. The billed role applies as-is, admins included.
// Owner is the one exception: it belongs to whoever holds the configured
// owner id, and no billing event may take it away.
func BillingRole(current, billed model.Role) model.Role {
	if current == model.RoleOwner {
		return current
	}
	return billed
}
