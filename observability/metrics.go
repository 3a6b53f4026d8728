package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for convene, backed by any go-utils
// MetricFactory (e.g. the forge-managed metrics system via fapp.Metrics()).
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	SyncsTotal       gu.Counter
	SyncLatency      gu.Histogram
	RunningJobs      gu.Gauge
	EventsProcessed  gu.Counter
	EventsCreated    gu.Counter
	EventsUpdated    gu.Counter
	EventsSkipped    gu.Counter
	DuplicatesFound  gu.Counter
	WebhooksTotal    gu.Counter
	CleanupDeletions gu.Counter
}

// NewMetrics creates convene metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		SyncsTotal:       factory.Counter("convene_syncs_total"),
		SyncLatency:      factory.Histogram("convene_sync_latency_seconds"),
		RunningJobs:      factory.Gauge("convene_running_jobs"),
		EventsProcessed:  factory.Counter("convene_events_processed_total"),
		EventsCreated:    factory.Counter("convene_events_created_total"),
		EventsUpdated:    factory.Counter("convene_events_updated_total"),
		EventsSkipped:    factory.Counter("convene_events_skipped_total"),
		DuplicatesFound:  factory.Counter("convene_duplicates_detected_total"),
		WebhooksTotal:    factory.Counter("convene_webhooks_total"),
		CleanupDeletions: factory.Counter("convene_cleanup_deleted_total"),
	}
}

// SyncStarted marks a sync job as running.
func (m *Metrics) SyncStarted() {
	if m == nil {
		return
	}
	m.RunningJobs.Inc()
}

// RecordSync records a finished sync with its final status and latency.
func (m *Metrics) RecordSync(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.RunningJobs.Dec()
	m.SyncsTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.SyncLatency.Observe(latencySeconds)
}

// RecordEvent records one pipeline pass. created is ignored when skipped.
func (m *Metrics) RecordEvent(created, skipped bool, duplicates int) {
	if m == nil {
		return
	}
	m.EventsProcessed.Inc()
	switch {
	case skipped:
		m.EventsSkipped.Inc()
	case created:
		m.EventsCreated.Inc()
	default:
		m.EventsUpdated.Inc()
	}
	for range duplicates {
		m.DuplicatesFound.Inc()
	}
}

// RecordWebhook records a webhook delivery outcome.
func (m *Metrics) RecordWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabels(map[string]string{"provider": provider, "outcome": outcome}).Inc()
}

// RecordCleanup records rows removed by the cleanup pass.
func (m *Metrics) RecordCleanup(kind string, n int64) {
	if m == nil {
		return
	}
	for range n {
		m.CleanupDeletions.WithLabels(map[string]string{"kind": kind}).Inc()
	}
}
