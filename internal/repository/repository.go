// Package repository declares the persistence contracts the services use.
// Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/video-portal/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProfileListOptions narrows a profile listing. Query matches a substring
// of email or discord id.
type ProfileListOptions struct {
	ListOptions
	Query string
}

// VideoListOptions narrows a video listing.
type VideoListOptions struct {
	ListOptions
	PublishedOnly bool
}

// ProfileRepository reads and writes profiles. Every update is an
// unconditional field-level write; there is no optimistic locking.
type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	GetByDiscordID(ctx context.Context, discordID string) (*model.Profile, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (*model.Profile, error)
	List(ctx context.Context, opts ProfileListOptions) ([]model.Profile, error)

	// UpdateLogin refreshes the provider-sourced fields and the role.
	UpdateLogin(ctx context.Context, id, email, avatarURL string, role model.Role) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	UpdateRoleAndStatus(ctx context.Context, id string, role model.Role, status model.SubscriptionStatus) error
	SetBillingCustomerID(ctx context.Context, id, customerID string) error
}

type VideoRepository interface {
	Create(ctx context.Context, video *model.Video) error
	GetByID(ctx context.Context, id string) (*model.Video, error)
	List(ctx context.Context, opts VideoListOptions) ([]model.Video, error)
	Update(ctx context.Context, video *model.Video) error
	Delete(ctx context.Context, id string) error
}

// WebhookEventRepository is the audit log of billing callbacks.
type WebhookEventRepository interface {
	// Record stores a newly received event. It returns the existing row
	// and apperror.ErrConflict if the provider event id was seen before.
	Record(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, error)
	MarkOutcome(ctx context.Context, id, outcome, errMsg string) error
}
