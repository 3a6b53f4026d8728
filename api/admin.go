package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/syncjob"
)

// skippedResponse reports a sync request that found nothing to do: the
// source is paused or a sync for it is already in flight.
type skippedResponse struct {
	Skipped bool `json:"skipped"`
}

// resolveRequest is the body of a duplicate adjudication.
type resolveRequest struct {
	Status duplicate.Status `json:"status"`
}

// syncSource runs one source sync inline. A job that ran is returned with
// 200 even when it failed; its status and error fields carry the outcome.
func (h *Handler) syncSource(w http.ResponseWriter, r *http.Request) {
	srcID, err := id.ParseSourceID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source ID")
		return
	}

	job, err := h.agg.SyncSource(r.Context(), srcID)
	if job != nil {
		writeJSON(w, http.StatusOK, job)
		return
	}
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, skippedResponse{Skipped: true})
}

// runFullSync starts a sweep in the background and returns immediately.
func (h *Handler) runFullSync(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.agg.RunFullSync(ctx); err != nil {
			h.logger.ErrorContext(ctx, "full sync failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.agg.Status(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) listDuplicates(w http.ResponseWriter, r *http.Request) {
	opts := duplicate.ListOpts{
		Status: duplicate.Status(queryParam(r, "status")),
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if v := queryParam(r, "event_id"); v != "" {
		evtID, err := id.ParseEventID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event ID")
			return
		}
		opts.EventID = evtID
	}

	links, err := h.agg.ListDuplicates(r.Context(), opts)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if links == nil {
		links = []*duplicate.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) resolveDuplicate(w http.ResponseWriter, r *http.Request) {
	linkID, err := id.ParseLinkID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link ID")
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	link, err := h.agg.ResolveDuplicate(r.Context(), linkID, req.Status)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	opts := syncjob.ListOpts{
		Status: syncjob.Status(queryParam(r, "status")),
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if v := queryParam(r, "source_id"); v != "" {
		srcID, err := id.ParseSourceID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source ID")
			return
		}
		opts.SourceID = srcID
	}

	jobs, err := h.agg.Store().ListJobs(r.Context(), opts)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*syncjob.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}
