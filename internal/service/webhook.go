package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/billing"
	"github.com/sakif/video-portal/internal/metrics"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/policy"
	"github.com/sakif/video-portal/internal/repository"
)

const webhookProvider = "stripe"

// WebhookResult is the acknowledgement body for a verified delivery. Every
// verified delivery is acknowledged, even when it could not be applied, so
// the processor stops retrying.
type WebhookResult struct {
	Received                   bool   `json:"received"`
	Duplicate                  bool   `json:"duplicate,omitempty"`
	Warning                    string `json:"warning,omitempty"`
	Error                      string `json:"error,omitempty"`
	RequiresManualIntervention bool   `json:"requiresManualIntervention,omitempty"`
}

// WebhookService applies billing events to profiles.
type WebhookService struct {
	profiles  repository.ProfileRepository
	events    repository.WebhookEventRepository
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
	metrics   *metrics.Registry
}

func NewWebhookService(
	profiles repository.ProfileRepository,
	events repository.WebhookEventRepository,
	secret string,
	logger *slog.Logger,
	m *metrics.Registry,
) *WebhookService {
	return &WebhookService{
		profiles:  profiles,
		events:    events,
		secret:    secret,
		tolerance: billing.DefaultTolerance,
		logger:    logger,
		metrics:   m,
	}
}

// MapSubscriptionStatus maps a processor subscription status onto the
// profile role and status it implies. ok is false for statuses that do not
// change anything (trialing, incomplete, ...).
func MapSubscriptionStatus(status string) (role model.Role, sub model.SubscriptionStatus, ok bool) {
	switch status {
	case "active":
		return model.RoleSubscriber, model.StatusActive, true
	case "past_due":
		return model.RoleSubscriber, model.StatusPastDue, true
	case "canceled", "unpaid":
		return model.RoleGuest, model.StatusCanceled, true
	}
	return "", "", false
}

// Reconcile verifies and applies one webhook delivery.
//
// Only an invalid signature returns an error. Any verified delivery yields
// a result, with Warning set when it could not be matched to a profile and
// Error set when applying it failed.
func (s *WebhookService) Reconcile(ctx context.Context, payload []byte, sigHeader string) (*WebhookResult, error) {
	ev, err := billing.ConstructEvent(payload, sigHeader, s.secret, s.tolerance)
	if billing.IsSignatureError(err) {
		s.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		s.metrics.WebhookEvent("unknown", "rejected")
		return nil, apperror.ValidationFailed("signature", "Webhook signature verification failed")
	}

	// Only a bad signature is rejected; an unreadable signed payload is
	// acknowledged and flagged.
	if err != nil {
		s.logger.Error("signed webhook payload unreadable",
			slog.String("error", err.Error()),
			slog.Bool("manualFollowUp", true),
		)
		s.metrics.WebhookEvent("unknown", model.OutcomeFailed)
		return &WebhookResult{
			Received:                   true,
			Error:                      "Invalid webhook payload",
			RequiresManualIntervention: true,
		}, nil
	}

	rec, duplicate := s.record(ctx, ev)
	if duplicate {
		s.logger.Info("duplicate webhook delivery acknowledged",
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
		)
		s.metrics.WebhookEvent(ev.Type, "duplicate")
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	outcome, warning, procErr := s.apply(ctx, ev)

	result := &WebhookResult{Received: true, Warning: warning}
	errMsg := ""
	if procErr != nil {
		outcome = model.OutcomeFailed
		errMsg = procErr.Error()
		result.Error = "Webhook processing failed"
		result.RequiresManualIntervention = true
		s.logger.Error("webhook processing failed",
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
			slog.String("error", errMsg),
			slog.Bool("manualFollowUp", true),
		)
	}

	if rec != nil {
		if err := s.events.MarkOutcome(ctx, rec.ID, outcome, errMsg); err != nil {
			s.logger.Error("recording webhook outcome",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.metrics.WebhookEvent(ev.Type, outcome)
	return result, nil
}

// record stores the delivery in the audit log. It reports a duplicate when
// the event was already applied or ignored. Any other earlier outcome is
// processed again, so a redelivery that arrives after the profile is linked
// still lands. An audit failure never blocks processing.
func (s *WebhookService) record(ctx context.Context, ev *billing.Event) (*model.WebhookEvent, bool) {
	rec := &model.WebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
	}
	stored, err := s.events.Record(ctx, rec)
	switch {
	case err == nil:
		return stored, false
	case errors.Is(err, apperror.ErrConflict) && stored != nil:
		switch stored.Outcome {
		case model.OutcomeProcessed, model.OutcomeIgnored:
			return stored, true
		}
		return stored, false
	default:
		s.logger.Error("recording webhook event",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
}

func (s *WebhookService) apply(ctx context.Context, ev *billing.Event) (outcome, warning string, err error) {
	switch ev.Type {
	case billing.EventCheckoutCompleted:
		return s.checkoutCompleted(ctx, ev)
	case billing.EventSubscriptionDeleted:
		return s.subscriptionDeleted(ctx, ev)
	case billing.EventSubscriptionUpdated:
		return s.subscriptionUpdated(ctx, ev)
	default:
		s.logger.Debug("ignoring webhook event type", slog.String("event_type", ev.Type))
		return model.OutcomeIgnored, "", nil
	}
}

func (s *WebhookService) checkoutCompleted(ctx context.Context, ev *billing.Event) (string, string, error) {
	cs, err := ev.CheckoutSession()
	if err != nil {
		return "", "", err
	}
	userID := cs.Metadata["userId"]
	customerID := cs.Customer.String()

	if userID == "" {
		s.unmatched(ev, "checkout completed without a user id", slog.String("customer_id", customerID))
		return model.OutcomeUnmatched, "No userId found", nil
	}

	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) && customerID != "" {
		p, err = s.profiles.GetByBillingCustomerID(ctx, customerID)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		s.unmatched(ev, "checkout completed for unknown profile",
			slog.String("user_id", userID),
			slog.String("customer_id", customerID),
		)
		return model.OutcomeUnmatched, "No profile found", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("looking up profile %s: %w", userID, err)
	}

	if err := s.applyBilling(ctx, p, model.RoleSubscriber, model.StatusActive); err != nil {
		return "", "", err
	}

	if customerID != "" && (!p.HasBillingCustomer() || *p.BillingCustomerID != customerID) {
		if err := s.profiles.SetBillingCustomerID(ctx, p.ID, customerID); err != nil {
			return "", "", fmt.Errorf("linking customer %s: %w", customerID, err)
		}
	}
	return model.OutcomeProcessed, "", nil
}

func (s *WebhookService) subscriptionDeleted(ctx context.Context, ev *billing.Event) (string, string, error) {
	sub, err := ev.Subscription()
	if err != nil {
		return "", "", err
	}
	customerID := sub.Customer.String()
	if customerID == "" {
		s.unmatched(ev, "subscription deleted without a customer id", slog.String("subscription_id", sub.ID))
		return model.OutcomeUnmatched, "No customerId found", nil
	}
	return s.applyToCustomer(ctx, ev, customerID, model.RoleGuest, model.StatusInactive)
}

func (s *WebhookService) subscriptionUpdated(ctx context.Context, ev *billing.Event) (string, string, error) {
	sub, err := ev.Subscription()
	if err != nil {
		return "", "", err
	}
	role, status, ok := MapSubscriptionStatus(sub.Status)
	if !ok {
		s.logger.Info("subscription status needs no profile change",
			slog.String("subscription_id", sub.ID),
			slog.String("status", sub.Status),
		)
		return model.OutcomeIgnored, "", nil
	}
	customerID := sub.Customer.String()
	if customerID == "" {
		s.unmatched(ev, "subscription updated without a customer id", slog.String("subscription_id", sub.ID))
		return model.OutcomeUnmatched, "No customerId found", nil
	}
	return s.applyToCustomer(ctx, ev, customerID, role, status)
}

func (s *WebhookService) applyToCustomer(ctx context.Context, ev *billing.Event, customerID string, role model.Role, status model.SubscriptionStatus) (string, string, error) {
	p, err := s.profiles.GetByBillingCustomerID(ctx, customerID)
	if errors.Is(err, apperror.ErrNotFound) {
		s.unmatched(ev, "no profile linked to billing customer", slog.String("customer_id", customerID))
		return model.OutcomeUnmatched, "No profile found for customer", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("looking up customer %s: %w", customerID, err)
	}
	if err := s.applyBilling(ctx, p, role, status); err != nil {
		return "", "", err
	}
	return model.OutcomeProcessed, "", nil
}

// applyBilling writes the billed role and status. The owner keeps its role.
func (s *WebhookService) applyBilling(ctx context.Context, p *model.Profile, billed model.Role, status model.SubscriptionStatus) error {
	role := policy.BillingRole(p.Role, billed)
	if err := s.profiles.UpdateRoleAndStatus(ctx, p.ID, role, status); err != nil {
		return fmt.Errorf("updating profile %s: %w", p.ID, err)
	}
	s.logger.Info("billing change applied",
		slog.String("profile_id", p.ID),
		slog.String("role", role.String()),
		slog.String("status", string(status)),
	)
	return nil
}

func (s *WebhookService) unmatched(ev *billing.Event, msg string, attrs ...any) {
	args := append([]any{
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.Bool("manualFollowUp", true),
	}, attrs...)
	s.logger.Warn(msg, args...)
}
