// Package source defines the registry of upstream event sources.
package source

import (
	"errors"
	"time"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
)

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("convene: source not found")

// Kind describes how events arrive from a source.
type Kind string

// Source kinds.
const (
	KindAPI     Kind = "api"
	KindWebhook Kind = "webhook"
	KindScraper Kind = "scraper"
)

// Provider identifies the upstream payload dialect.
type Provider string

// Known providers.
const (
	ProviderEventbrite Provider = "eventbrite"
	ProviderFacebook   Provider = "facebook"
	ProviderMeetup     Provider = "meetup"
	ProviderGeneric    Provider = "generic"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderEventbrite, ProviderFacebook, ProviderMeetup, ProviderGeneric:
		return true
	}
	return false
}

// Status is the health of a source as observed by the last sync.
type Status string

// Source statuses.
const (
	StatusActive Status = "active"
	StatusError  Status = "error"
	StatusPaused Status = "paused"
)

// EventSource is an upstream feed the aggregator pulls from or receives
// webhooks from.
type EventSource struct {
	entity.Entity

	ID       id.ID    `json:"id" bson:"_id"`
	Name     string   `json:"name" bson:"name"`
	Kind     Kind     `json:"kind" bson:"kind"`
	Provider Provider `json:"provider" bson:"provider"`
	BaseURL  string   `json:"base_url,omitempty" bson:"base_url"`

	// Credential is stored encrypted and decrypted through a Cipher on use.
	Credential string `json:"-" bson:"credential"`

	// SyncFrequency is the desired pull cadence in minutes.
	SyncFrequency int `json:"sync_frequency" bson:"sync_frequency"`

	// RateLimitPerHour caps syncs per hour. Zero means unlimited.
	RateLimitPerHour int `json:"rate_limit_per_hour" bson:"rate_limit_per_hour"`

	Active        bool              `json:"active" bson:"active"`
	WebhookSecret string            `json:"-" bson:"webhook_secret"`
	Status        Status            `json:"status" bson:"status"`
	LastSyncAt    *time.Time        `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
	ErrorCount    int               `json:"error_count" bson:"error_count"`
	Config        map[string]string `json:"config,omitempty" bson:"config,omitempty"`
}

// SyncInterval returns SyncFrequency as a duration, defaulting to an hour.
func (s *EventSource) SyncInterval() time.Duration {
	if s.SyncFrequency <= 0 {
		return time.Hour
	}
	return time.Duration(s.SyncFrequency) * time.Minute
}

// Pullable reports whether the source is fetched by the orchestrator.
// Webhook sources push their events instead.
func (s *EventSource) Pullable() bool {
	return s.Kind == KindAPI || s.Kind == KindScraper
}

// ListOpts filters source listings.
type ListOpts struct {
	Kind       Kind
	Provider   Provider
	ActiveOnly bool
	Offset     int
	Limit      int
}

// Matches reports whether src passes the filter. Pagination is ignored.
func (o ListOpts) Matches(src *EventSource) bool {
	if o.ActiveOnly && !src.Active {
		return false
	}
	if o.Kind != "" && src.Kind != o.Kind {
		return false
	}
	if o.Provider != "" && src.Provider != o.Provider {
		return false
	}
	return true
}

// SyncState is the subset of a source updated at the end of a sync.
type SyncState struct {
	Status     Status
	LastSyncAt *time.Time
	ErrorCount int
}
