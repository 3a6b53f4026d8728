package convene

import (
	"errors"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// Sentinel errors returned by Aggregator operations.
var (
	// ErrNoStore is returned when an Aggregator is created without a store.
	ErrNoStore = errors.New("convene: store is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("convene: store is closed")

	// ErrInvalidConfig is returned by New when the configuration is inconsistent.
	ErrInvalidConfig = errors.New("convene: invalid config")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("convene: migration failed")

	// ErrSourceInactive is returned when a payload arrives for a paused source.
	ErrSourceInactive = errors.New("convene: source is inactive")

	// ErrUnknownProvider is returned when no connector serves a source's provider.
	ErrUnknownProvider = errors.New("convene: no connector for provider")

	// ErrNotPullable is returned when a sync is requested for a webhook-only source.
	ErrNotPullable = errors.New("convene: source is not pullable")

	// ErrInvalidLinkStatus is returned when a duplicate link is resolved to a
	// non-terminal status.
	ErrInvalidLinkStatus = errors.New("convene: duplicate links resolve to confirmed or rejected")
)

// Not-found errors owned by the subsystem packages.
var (
	ErrSourceNotFound        = source.ErrNotFound
	ErrEventNotFound         = event.ErrNotFound
	ErrLocationNotFound      = location.ErrNotFound
	ErrLinkNotFound          = duplicate.ErrNotFound
	ErrJobNotFound           = syncjob.ErrNotFound
	ErrWebhookRecordNotFound = webhook.ErrNotFound
	ErrUnknownSource         = webhook.ErrUnknownSource
)
