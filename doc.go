// Package convene aggregates events from heterogeneous upstream sources into
// one deduplicated, geocoded event store.
//
// Convene is a library, not a service. Import it into your application to
// pull events from provider APIs on a schedule, receive them over signed
// webhooks, and run every payload through the same pipeline:
//
//   - Normalization of provider payloads into one canonical shape
//   - Venue resolution against known locations, with geocoding fallback
//   - Category and feature extraction behind pluggable interfaces
//   - Weighted duplicate detection across sources
//   - A completeness-based confidence score per event
//   - Idempotent upserts keyed by source and external id
//
// Quick start:
//
//	agg, err := convene.New(
//	    convene.WithStore(memory.New()),
//	    convene.WithGeocoder(geocode.NewChain(logger, geocode.NewNominatim("", "my-app/1.0", nil))),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	job, err := agg.SyncSource(ctx, sourceID)
//
//	if err := agg.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer agg.Stop(ctx)
package convene
