package api

// ---------------------------------------------------------------------------
// Sync requests
// ---------------------------------------------------------------------------

// SyncSourceForgeRequest binds the path for POST /sources/:sourceId/sync.
type SyncSourceForgeRequest struct {
	SourceID string `description:"Source identifier" path:"sourceId"`
}

// RunFullSyncForgeRequest is the empty request for POST /sync.
type RunFullSyncForgeRequest struct{}

// SyncStartedForgeResponse acknowledges a sync that was started or skipped.
type SyncStartedForgeResponse struct {
	Status string `description:"started or skipped" json:"status"`
}

// StatusForgeRequest is the empty request for GET /status.
type StatusForgeRequest struct{}

// ListJobsForgeRequest binds query parameters for GET /jobs.
type ListJobsForgeRequest struct {
	SourceID string `description:"Filter by source"              query:"source_id"`
	Status   string `description:"Filter by status"              query:"status"`
	Offset   int    `description:"Pagination offset"             query:"offset"`
	Limit    int    `description:"Page size (default 50)"        query:"limit"`
}

// ---------------------------------------------------------------------------
// Duplicate requests
// ---------------------------------------------------------------------------

// ListDuplicatesForgeRequest binds query parameters for GET /duplicates.
type ListDuplicatesForgeRequest struct {
	Status  string `description:"detected, confirmed or rejected" query:"status"`
	EventID string `description:"Links touching this event"       query:"event_id"`
	Offset  int    `description:"Pagination offset"               query:"offset"`
	Limit   int    `description:"Page size (default 50)"          query:"limit"`
}

// ResolveDuplicateForgeRequest binds path + body for PATCH /duplicates/:linkId.
type ResolveDuplicateForgeRequest struct {
	LinkID string `description:"Duplicate link identifier" path:"linkId"`
	Status string `description:"confirmed or rejected"     json:"status"`
}

// ---------------------------------------------------------------------------
// Webhook record requests
// ---------------------------------------------------------------------------

// WebhookStatsForgeRequest is the empty request for GET /webhooks/stats.
type WebhookStatsForgeRequest struct{}

// RetryWebhookForgeRequest binds the path for POST /webhooks/:recordId/retry.
type RetryWebhookForgeRequest struct {
	RecordID string `description:"Webhook record identifier" path:"recordId"`
}
