// Package billing wraps the Stripe SDK behind the handful of calls the
// portal makes (customers, products, checkout sessions, subscriptions) and
// the webhook signature check. Callers only see the package's own types.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/sakif/video-portal/internal/metrics"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// IsResourceMissing reports whether err is the API's "no such object" error.
func IsResourceMissing(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == string(stripe.ErrorCodeResourceMissing)
}

// Client talks to the billing processor with a secret key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	metrics *metrics.Registry
	api     *client.API
}

type Option func(*Client)

// WithBaseURL points the client at another host (httptest in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey: strings.TrimSpace(apiKey),
		http:   &http.Client{Timeout: 12 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	// The SDK retries and logs on its own by default. Retries are left to
	// the caller and logging to slog, so both are switched off here.
	cfg := &stripe.BackendConfig{
		HTTPClient:        c.http,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if c.baseURL != "" {
		cfg.URL = stripe.String(c.baseURL)
	}
	c.api = client.New(c.apiKey, stripe.NewBackendsWithConfig(cfg))
	return c
}

// GetCustomer fetches a customer. A customer deleted on the processor side
// comes back with Deleted set rather than as an error.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out *Customer
	err := c.observe("get_customer", func() error {
		cust, err := c.api.Customers.Get(id, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
		if err != nil {
			return err
		}
		out = customerFrom(cust)
		return nil
	})
	return out, err
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	var out *Customer
	err := c.observe("create_customer", func() error {
		cust, err := c.api.Customers.New(p)
		if err != nil {
			return err
		}
		out = customerFrom(cust)
		return nil
	})
	return out, err
}

func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out *Product
	err := c.observe("get_product", func() error {
		prod, err := c.api.Products.Get(id, &stripe.ProductParams{Params: stripe.Params{Context: ctx}})
		if err != nil {
			return err
		}
		out = &Product{ID: prod.ID, Name: prod.Name, Active: prod.Active}
		if prod.DefaultPrice != nil {
			out.DefaultPrice = ExpandableID(prod.DefaultPrice.ID)
		}
		return nil
	})
	return out, err
}

// CreateCheckoutSession starts a hosted subscription checkout for one unit
// of a single price.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:           stripe.String(params.CustomerID),
		PaymentMethodTypes: []*string{stripe.String("card")},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(params.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	var out *CheckoutSession
	err := c.observe("create_checkout_session", func() error {
		s, err := c.api.CheckoutSessions.New(p)
		if err != nil {
			return err
		}
		out = &CheckoutSession{ID: s.ID, URL: s.URL, Metadata: s.Metadata}
		if s.Customer != nil {
			out.Customer = ExpandableID(s.Customer.ID)
		}
		return nil
	})
	return out, err
}

// ListActiveSubscriptions returns up to limit active subscriptions of a customer.
func (c *Client) ListActiveSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	p := &stripe.SubscriptionListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(int64(limit))},
		Customer:   stripe.String(customerID),
		Status:     stripe.String(string(stripe.SubscriptionStatusActive)),
	}

	var out []Subscription
	err := c.observe("list_subscriptions", func() error {
		it := c.api.Subscriptions.List(p)
		for len(out) < limit && it.Next() {
			out = append(out, *subscriptionFrom(it.Subscription()))
		}
		return it.Err()
	})
	return out, err
}

// CancelAtPeriodEnd schedules the subscription to end when the current
// billing period does. Access is kept until then.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	var out *Subscription
	err := c.observe("update_subscription", func() error {
		s, err := c.api.Subscriptions.Update(subscriptionID, p)
		if err != nil {
			return err
		}
		out = subscriptionFrom(s)
		return nil
	})
	return out, err
}

// observe runs one API call, records its latency and outcome, and converts
// SDK errors into *Error.
func (c *Client) observe(op string, call func() error) (err error) {
	if c.apiKey == "" {
		return errors.New("billing: secret key not configured")
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.ObserveBillingRequest(op, outcome, time.Since(start))
	}()

	if err := call(); err != nil {
		return convertError(op, err)
	}
	return nil
}

func convertError(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("billing: %s: %w", op, err)
	}
	msg := strings.TrimSpace(se.Msg)
	if msg == "" {
		msg = fmt.Sprintf("billing request failed with status %d", se.HTTPStatusCode)
	}
	return &Error{
		StatusCode: se.HTTPStatusCode,
		Type:       string(se.Type),
		Code:       string(se.Code),
		Message:    msg,
	}
}

func customerFrom(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Deleted: c.Deleted, Metadata: c.Metadata}
}

func subscriptionFrom(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.Customer = ExpandableID(s.Customer.ID)
	}
	if s.CancelAt != 0 {
		at := s.CancelAt
		out.CancelAt = &at
	}
	// Period end lives on the subscription items since API version basil.
	if s.Items != nil && len(s.Items.Data) > 0 {
		out.CurrentPeriodEnd = s.Items.Data[0].CurrentPeriodEnd
	}
	return out
}
