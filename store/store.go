// Package store defines the composite Store interface for all convene
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so a backend implements one type and every service
// depends only on the slice it needs.
package store

import (
	"context"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	source.Store
	event.Store
	location.Store
	duplicate.Store
	syncjob.Store
	webhook.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
