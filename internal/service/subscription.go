package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

// CancelResult is returned by a successful cancellation.
type CancelResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	CancelAt       time.Time `json:"cancelAt"`
	SubscriptionID string    `json:"subscriptionId"`
}

// SubscriptionService cancels subscriptions at the end of the paid period.
// It never touches the local role or status; the deletion webhook does that
// when the period actually ends.
type SubscriptionService struct {
	profiles repository.ProfileRepository
	billing  BillingClient
	logger   *slog.Logger
}

func NewSubscriptionService(profiles repository.ProfileRepository, client BillingClient, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{profiles: profiles, billing: client, logger: logger}
}

func (s *SubscriptionService) Cancel(ctx context.Context, sess auth.Session) (*CancelResult, error) {
	if sess.UserID == "" {
		return nil, apperror.Unauthorized()
	}

	p, err := s.profiles.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFoundMessage("Profile not found")
		}
		return nil, err
	}

	// The token may be stale; the stored role decides.
	if p.Role == model.RoleOwner {
		return nil, apperror.Forbidden("Owner accounts have no subscription to cancel")
	}
	if p.Role != model.RoleSubscriber {
		return nil, apperror.ValidationFailed("role", "No active subscription")
	}
	if !p.HasBillingCustomer() {
		return nil, apperror.ValidationFailed("billingCustomerId", "No billing customer ID found")
	}

	subs, err := s.billing.ListActiveSubscriptions(ctx, *p.BillingCustomerID, 1)
	if err != nil {
		return nil, apperror.Upstream("Failed to cancel subscription", err)
	}
	if len(subs) == 0 {
		return nil, apperror.NotFoundMessage("No active subscription found")
	}

	sub, err := s.billing.CancelAtPeriodEnd(ctx, subs[0].ID)
	if err != nil {
		return nil, apperror.Upstream("Failed to cancel subscription", err)
	}

	end := sub.CurrentPeriodEnd
	if sub.CancelAt != nil {
		end = *sub.CancelAt
	}

	s.logger.Info("subscription set to cancel at period end",
		slog.String("user_id", p.ID),
		slog.String("subscription_id", sub.ID),
		slog.Int64("cancel_at", end),
	)

	return &CancelResult{
		Success:        true,
		Message:        "Subscription will be cancelled at the end of the billing period",
		CancelAt:       time.Unix(end, 0).UTC(),
		SubscriptionID: sub.ID,
	}, nil
}
