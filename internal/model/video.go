package model

import "time"

// ContentKind distinguishes uploaded media from external links.
type ContentKind string

const (
	KindVideo ContentKind = "video"
	KindLink  ContentKind = "link"
)

// Video is a content item in the portal catalogue.
//
// MediaURL points either at an object in our media bucket (KindVideo) or at
// an external host (KindLink). Locked is never stored: it is set on read for
// callers whose role is not entitled to the media.
type Video struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  *string     `json:"description,omitempty"`
	MediaURL     string      `json:"videoUrl,omitempty"`
	ThumbnailURL *string     `json:"thumbnailUrl,omitempty"`
	Kind         ContentKind `json:"contentType"`
	Published    bool        `json:"isPublished"`
	Locked       bool        `json:"locked"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// WebhookEvent records one verified billing callback.
type WebhookEvent struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"providerEventId"`
	EventType       string     `json:"eventType"`
	Outcome         string     `json:"outcome"`
	Error           string     `json:"error,omitempty"`
	ReceivedAt      time.Time  `json:"receivedAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
}

// Webhook event outcomes.
const (
	OutcomeReceived  = "received"
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeUnmatched = "unmatched"
	OutcomeFailed    = "failed"
)
