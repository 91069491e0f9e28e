package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/auth"
	"github.com/sakif/video-portal/internal/service"
)

// maxWebhookBody caps a webhook delivery. Real events are a few KB.
const maxWebhookBody = 1 << 20

type CheckoutStarter interface {
	StartCheckout(ctx context.Context, sess auth.Session, origin string) (string, error)
}

type SubscriptionCanceler interface {
	Cancel(ctx context.Context, sess auth.Session) (*service.CancelResult, error)
}

type WebhookReconciler interface {
	Reconcile(ctx context.Context, payload []byte, sigHeader string) (*service.WebhookResult, error)
}

// BillingHandler serves checkout, cancellation and the processor webhook.
type BillingHandler struct {
	checkout      CheckoutStarter
	subscriptions SubscriptionCanceler
	webhooks      WebhookReconciler
	siteURL       string
	logger        *slog.Logger
}

func NewBillingHandler(
	checkout CheckoutStarter,
	subscriptions SubscriptionCanceler,
	webhooks WebhookReconciler,
	siteURL string,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		checkout:      checkout,
		subscriptions: subscriptions,
		webhooks:      webhooks,
		siteURL:       strings.TrimRight(siteURL, "/"),
		logger:        logger,
	}
}

// HandleCheckout returns the hosted checkout URL.
//
// HTTP: POST /api/checkout → {"url": "..."}
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	url, err := h.checkout.StartCheckout(r.Context(), sess, h.origin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// origin is where the processor sends the browser back to: the request's
// Origin header, else the configured site URL, else this host.
func (h *BillingHandler) origin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	if h.siteURL != "" {
		return h.siteURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// HandleCancel schedules cancellation at the end of the billing period.
//
// HTTP: POST /api/subscription/cancel
func (h *BillingHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	res, err := h.subscriptions.Cancel(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleWebhook verifies and applies a processor event.
//
// HTTP: POST /api/webhooks/stripe
//
// The signature covers the exact bytes sent, so the body is read raw. Only
// verification failures get a non-2xx answer; everything else is
// acknowledged so the processor stops retrying.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		// Nothing can be verified or applied without the body. The delivery
		// is acknowledged and flagged; only a bad signature earns a 400.
		h.logger.Error("webhook body unreadable",
			slog.String("error", err.Error()),
			slog.Bool("manualFollowUp", true),
		)
		writeJSON(w, http.StatusOK, &service.WebhookResult{
			Received:                   true,
			Error:                      "Invalid webhook payload",
			RequiresManualIntervention: true,
		})
		return
	}

	res, err := h.webhooks.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
