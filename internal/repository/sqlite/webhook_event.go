package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/model"
	"github.com/sakif/video-portal/internal/repository"
)

var _ repository.WebhookEventRepository = (*WebhookEventStore)(nil)

// WebhookEventStore is the audit log of verified billing callbacks. The
// (provider, provider_event_id) pair is UNIQUE, which is what makes
// redelivered events detectable.
type WebhookEventStore struct {
	conn *sql.DB
}

// Record inserts a newly received event. If the provider event id was
// already recorded, the existing row is returned together with an
// apperror.ErrConflict.
func (s *WebhookEventStore) Record(ctx context.Context, e *model.WebhookEvent) (*model.WebhookEvent, error) {
	e.ID = xid.New().String()
	e.ReceivedAt = time.Now().UTC()
	if e.Outcome == "" {
		e.Outcome = model.OutcomeReceived
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO webhook_events (id, provider, provider_event_id, event_type, outcome, error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Provider,
		e.ProviderEventID,
		e.EventType,
		e.Outcome,
		e.Error,
		e.ReceivedAt,
	)
	if err == nil {
		return e, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("sqlite: recording webhook event %s: %w", e.ProviderEventID, err)
	}

	existing, getErr := s.get(ctx, e.Provider, e.ProviderEventID)
	if getErr != nil {
		return nil, getErr
	}
	return existing, apperror.Conflict("webhook event", e.ProviderEventID)
}

// MarkOutcome sets the final outcome of a recorded event.
func (s *WebhookEventStore) MarkOutcome(ctx context.Context, id, outcome, errMsg string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE webhook_events SET outcome = ?, error = ?, processed_at = ? WHERE id = ?`,
		outcome, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking webhook event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("webhook event", id)
	}
	return nil
}

func (s *WebhookEventStore) get(ctx context.Context, provider, providerEventID string) (*model.WebhookEvent, error) {
	var (
		e         model.WebhookEvent
		processed sql.NullTime
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, provider, provider_event_id, event_type, outcome, error, received_at, processed_at
		 FROM webhook_events WHERE provider = ? AND provider_event_id = ?`,
		provider, providerEventID,
	).Scan(
		&e.ID,
		&e.Provider,
		&e.ProviderEventID,
		&e.EventType,
		&e.Outcome,
		&e.Error,
		&e.ReceivedAt,
		&processed,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("webhook event", providerEventID)
		}
		return nil, fmt.Errorf("sqlite: getting webhook event %s: %w", providerEventID, err)
	}
	if processed.Valid {
		e.ProcessedAt = &processed.Time
	}
	return &e, nil
}
