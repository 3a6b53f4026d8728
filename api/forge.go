package api

import (
	"context"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// ForgeAPI registers the admin routes into a Forge router.
type ForgeAPI struct {
	agg *convene.Aggregator
	log forge.Logger
}

// NewForgeAPI creates a ForgeAPI for agg.
func NewForgeAPI(agg *convene.Aggregator, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{agg: agg, log: log}
}

// RegisterRoutes registers the admin API routes into the given Forge router
// with full OpenAPI metadata. Webhook ingress is served by Handler, which
// needs the raw request body for signature checks.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerSyncRoutes(router)
	a.registerDuplicateRoutes(router)
	a.registerWebhookRoutes(router)
}

// ---------------------------------------------------------------------------
// Sync routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerSyncRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("sync"))

	if err := g.POST("/sources/:sourceId/sync", a.syncSource,
		forge.WithSummary("Sync source"),
		forge.WithDescription("Pulls one source now and returns the finished sync job. A paused source or a sync already in flight is reported as skipped."),
		forge.WithOperationID("syncSource"),
		forge.WithRequestSchema(SyncSourceForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Finished sync job", syncjob.Job{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register syncSource route", forge.Error(err))
	}

	if err := g.POST("/sync", a.runFullSync,
		forge.WithSummary("Run full sync"),
		forge.WithDescription("Starts a sweep over every active pullable source in the background."),
		forge.WithOperationID("runFullSync"),
		forge.WithResponseSchema(http.StatusAccepted, "Sweep started", SyncStartedForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register runFullSync route", forge.Error(err))
	}

	if err := g.GET("/status", a.getStatus,
		forge.WithSummary("Aggregator status"),
		forge.WithDescription("Returns the running flag and aggregate counts."),
		forge.WithOperationID("getStatus"),
		forge.WithResponseSchema(http.StatusOK, "Aggregator status", convene.Status{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getStatus route", forge.Error(err))
	}

	if err := g.GET("/jobs", a.listJobs,
		forge.WithSummary("List sync jobs"),
		forge.WithDescription("Returns sync jobs, most recently started first."),
		forge.WithOperationID("listJobs"),
		forge.WithRequestSchema(ListJobsForgeRequest{}),
		forge.WithListResponse(syncjob.Job{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listJobs route", forge.Error(err))
	}
}

func (a *ForgeAPI) syncSource(ctx forge.Context, req *SyncSourceForgeRequest) (*syncjob.Job, error) {
	srcID, err := id.ParseSourceID(req.SourceID)
	if err != nil {
		return nil, forge.BadRequest("invalid source ID")
	}

	job, err := a.agg.SyncSource(ctx.Context(), srcID)
	if job != nil {
		return job, nil
	}
	if err != nil {
		return nil, mapError(err)
	}

	err = ctx.JSON(http.StatusAccepted, SyncStartedForgeResponse{Status: "skipped"})
	if err != nil {
		return nil, err
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) runFullSync(ctx forge.Context, _ *RunFullSyncForgeRequest) (*SyncStartedForgeResponse, error) {
	bg := context.WithoutCancel(ctx.Context())
	go func() {
		if _, err := a.agg.RunFullSync(bg); err != nil {
			a.log.Error("full sync failed", forge.Error(err))
		}
	}()

	err := ctx.JSON(http.StatusAccepted, SyncStartedForgeResponse{Status: "started"})
	if err != nil {
		return nil, err
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) getStatus(ctx forge.Context, _ *StatusForgeRequest) (*convene.Status, error) {
	st, err := a.agg.Status(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}
	return st, nil
}

func (a *ForgeAPI) listJobs(ctx forge.Context, req *ListJobsForgeRequest) ([]*syncjob.Job, error) {
	opts := syncjob.ListOpts{
		Status: syncjob.Status(req.Status),
		Offset: req.Offset,
		Limit:  defaultLimit(req.Limit),
	}
	if req.SourceID != "" {
		srcID, err := id.ParseSourceID(req.SourceID)
		if err != nil {
			return nil, forge.BadRequest("invalid source ID")
		}
		opts.SourceID = srcID
	}

	jobs, err := a.agg.Store().ListJobs(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}
	return jobs, nil
}

// ---------------------------------------------------------------------------
// Duplicate routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDuplicateRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("duplicates"))

	if err := g.GET("/duplicates", a.listDuplicates,
		forge.WithSummary("List duplicate links"),
		forge.WithDescription("Returns candidate duplicate links, newest first."),
		forge.WithOperationID("listDuplicates"),
		forge.WithRequestSchema(ListDuplicatesForgeRequest{}),
		forge.WithListResponse(duplicate.Link{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDuplicates route", forge.Error(err))
	}

	if err := g.PATCH("/duplicates/:linkId", a.resolveDuplicate,
		forge.WithSummary("Resolve duplicate link"),
		forge.WithDescription("Records a confirmed or rejected decision for a detected duplicate."),
		forge.WithOperationID("resolveDuplicate"),
		forge.WithRequestSchema(ResolveDuplicateForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Resolved link", duplicate.Link{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register resolveDuplicate route", forge.Error(err))
	}
}

func (a *ForgeAPI) listDuplicates(ctx forge.Context, req *ListDuplicatesForgeRequest) ([]*duplicate.Link, error) {
	opts := duplicate.ListOpts{
		Status: duplicate.Status(req.Status),
		Offset: req.Offset,
		Limit:  defaultLimit(req.Limit),
	}
	if req.EventID != "" {
		evtID, err := id.ParseEventID(req.EventID)
		if err != nil {
			return nil, forge.BadRequest("invalid event ID")
		}
		opts.EventID = evtID
	}

	links, err := a.agg.ListDuplicates(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}
	return links, nil
}

func (a *ForgeAPI) resolveDuplicate(ctx forge.Context, req *ResolveDuplicateForgeRequest) (*duplicate.Link, error) {
	linkID, err := id.ParseLinkID(req.LinkID)
	if err != nil {
		return nil, forge.BadRequest("invalid link ID")
	}

	link, err := a.agg.ResolveDuplicate(ctx.Context(), linkID, duplicate.Status(req.Status))
	if err != nil {
		return nil, mapError(err)
	}
	return link, nil
}

// ---------------------------------------------------------------------------
// Webhook record routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerWebhookRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("webhooks"))

	if err := g.GET("/webhooks/stats", a.webhookStats,
		forge.WithSummary("Webhook stats"),
		forge.WithDescription("Returns per-source delivery counts: total, processed, pending and errors."),
		forge.WithOperationID("webhookStats"),
		forge.WithListResponse(webhook.Stats{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register webhookStats route", forge.Error(err))
	}

	if err := g.POST("/webhooks/:recordId/retry", a.retryWebhook,
		forge.WithSummary("Retry webhook record"),
		forge.WithDescription("Reprocesses one stored webhook delivery."),
		forge.WithOperationID("retryWebhook"),
		forge.WithRequestSchema(RetryWebhookForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Reprocessed record", webhook.Record{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register retryWebhook route", forge.Error(err))
	}
}

func (a *ForgeAPI) webhookStats(ctx forge.Context, _ *WebhookStatsForgeRequest) ([]webhook.Stats, error) {
	stats, err := a.agg.Webhooks().Stats(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}
	return stats, nil
}

func (a *ForgeAPI) retryWebhook(ctx forge.Context, req *RetryWebhookForgeRequest) (*webhook.Record, error) {
	recID, err := id.ParseWebhookID(req.RecordID)
	if err != nil {
		return nil, forge.BadRequest("invalid record ID")
	}

	rec, err := a.agg.Webhooks().Retry(ctx.Context(), recID)
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}
