package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/billing"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

// CheckoutService starts hosted subscription checkouts.
type CheckoutService struct {
	profiles  repository.ProfileRepository
	billing   BillingClient
	productID string
	logger    *slog.Logger
}

func NewCheckoutService(profiles repository.ProfileRepository, client BillingClient, productID string, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		profiles:  profiles,
		billing:   client,
		productID: productID,
		logger:    logger,
	}
}

// StartCheckout returns the hosted checkout URL for the caller. origin is
// the base the success and cancel URLs are built on.
//
// The profile is not modified here except for linking a newly created
// billing customer; the role only changes when the completion webhook
// arrives.
func (s *CheckoutService) StartCheckout(ctx context.Context, sess auth.Session, origin string) (string, error) {
	if sess.UserID == "" || sess.Email == "" {
		return "", apperror.Unauthorized()
	}
	if s.productID == "" {
		return "", apperror.Misconfigured("Billing product not configured")
	}

	customerID, err := s.ensureCustomer(ctx, sess)
	if err != nil {
		return "", checkoutFailed(err)
	}

	product, err := s.billing.GetProduct(ctx, s.productID)
	if err != nil {
		return "", checkoutFailed(err)
	}
	if product.DefaultPrice == "" {
		return "", apperror.Misconfigured("No default price set for this product. Please set a default price in the billing dashboard.")
	}

	origin = strings.TrimRight(origin, "/")
	cs, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    product.DefaultPrice.String(),
		SuccessURL: origin + "/dashboard?success=true",
		CancelURL:  origin + "/pricing?canceled=true",
		Metadata:   map[string]string{"userId": sess.UserID},
	})
	if err != nil {
		return "", checkoutFailed(err)
	}
	if cs.URL == "" {
		return "", checkoutFailed(errors.New("no checkout URL returned"))
	}

	s.logger.Info("checkout session created",
		slog.String("user_id", sess.UserID),
		slog.String("customer_id", customerID),
		slog.String("session_id", cs.ID),
	)
	return cs.URL, nil
}

// ensureCustomer returns the caller's billing customer, creating one when
// none is linked or the linked one no longer exists.
func (s *CheckoutService) ensureCustomer(ctx context.Context, sess auth.Session) (string, error) {
	var profile *model.Profile
	p, err := s.profiles.GetByID(ctx, sess.UserID)
	switch {
	case err == nil:
		profile = p
	case errors.Is(err, apperror.ErrNotFound):
	default:
		s.logger.Warn("reading profile for checkout",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
	}

	if profile != nil && profile.HasBillingCustomer() {
		existing := *profile.BillingCustomerID
		c, err := s.billing.GetCustomer(ctx, existing)
		switch {
		case err == nil && !c.Deleted:
			return c.ID, nil
		case err == nil || billing.IsResourceMissing(err):
			s.logger.Info("linked billing customer is gone, creating a new one",
				slog.String("user_id", sess.UserID),
				slog.String("customer_id", existing),
			)
		default:
			return "", err
		}
	}

	c, err := s.billing.CreateCustomer(ctx, billing.CustomerParams{
		Email:    sess.Email,
		Metadata: map[string]string{"userId": sess.UserID},
	})
	if err != nil {
		return "", err
	}

	if err := s.profiles.SetBillingCustomerID(ctx, sess.UserID, c.ID); err != nil {
		s.logger.Warn("linking billing customer to profile",
			slog.String("user_id", sess.UserID),
			slog.String("customer_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	return c.ID, nil
}

func checkoutFailed(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Upstream("Checkout failed", err)
}
