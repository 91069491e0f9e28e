// Package service holds the portal's business logic.
//
// Handlers parse HTTP and call into these services; services talk to the
// repositories, the billing client and object storage through the narrow
// interfaces declared in this package, and return apperror values for
// anything a caller should see.
package service

import (
	"context"

	"github.com/sakif/video-portal/internal/billing"
)

// Pagination defaults shared by the list operations.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// BillingClient is the subset of the billing processor API the services use.
// *billing.Client implements it.
type BillingClient interface {
	GetCustomer(ctx context.Context, id string) (*billing.Customer, error)
	CreateCustomer(ctx context.Context, params billing.CustomerParams) (*billing.Customer, error)
	GetProduct(ctx context.Context, id string) (*billing.Product, error)
	CreateCheckoutSession(ctx context.Context, params billing.CheckoutSessionParams) (*billing.CheckoutSession, error)
	ListActiveSubscriptions(ctx context.Context, customerID string, limit int) ([]billing.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
}

var _ BillingClient = (*billing.Client)(nil)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
