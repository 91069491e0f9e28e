// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the coarse-grained permission level carried on every session.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleSubscriber Role = "subscriber"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleSubscriber, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// IsStaff reports whether r may manage content and other profiles.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleOwner
}

func (r Role) String() string {
	return string(r)
}

// SubscriptionStatus mirrors the billing processor's view of a subscription.
type SubscriptionStatus string

const (
	StatusInactive SubscriptionStatus = "inactive"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Profile is the persisted record for one authenticated Discord account.
//
// DiscordID is the join key between a provider login and this row: it is
// immutable and UNIQUE in the profiles table. ID is ours, generated on the
// first login and never changed.
//
// Role and SubscriptionStatus are written by independent paths (login,
// role-update action, billing webhooks) with no transaction spanning both,
// so combinations like subscriber/inactive can be observed.
type Profile struct {
	ID                 string             `json:"id"`
	DiscordID          string             `json:"discordId"`
	Email              string             `json:"email"`
	AvatarURL          string             `json:"avatarUrl"`
	Role               Role               `json:"role"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	BillingCustomerID  *string            `json:"billingCustomerId,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// HasBillingCustomer reports whether a billing customer has been linked.
func (p *Profile) HasBillingCustomer() bool {
	return p.BillingCustomerID != nil && *p.BillingCustomerID != ""
}
