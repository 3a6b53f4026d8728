// Package extension packages the aggregator for embedding in a host service.
//
// The extension:
//   - Builds the Aggregator from a Config and a store
//   - Runs database migrations on Init
//   - Serves webhook ingress and the admin routes as an http.Handler
//   - Registers the admin routes with OpenAPI metadata on a Forge router
//   - Starts the scheduler on Start and drains syncs on Stop
//   - Reports health via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(postgres.New(db)),
//	    extension.WithPrefix("/events"),
//	)
//	if err := ext.Init(ctx); err != nil {
//	    return err
//	}
//	mux.Handle("/events/", ext.Handler())
//	return ext.Start(ctx)
package extension
