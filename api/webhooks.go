package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/webhook"
)

// receiveResponse acknowledges a processed delivery.
type receiveResponse struct {
	Status   string `json:"status"`
	RecordID id.ID  `json:"record_id"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) providerWebhook(p source.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.receive(w, r, webhook.Delivery{Provider: p})
	}
}

func (h *Handler) genericWebhook(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, webhook.Delivery{
		Provider: source.ProviderGeneric,
		SourceID: chi.URLParam(r, "sourceID"),
	})
}

// receive reads the raw body and hands the delivery to the webhook service.
// The body is read before anything else so the signature covers exactly the
// bytes that were sent.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request, d webhook.Delivery) {
	tracer := h.agg.Tracer()
	ctx, span := tracer.StartWebhookSpan(r.Context(), string(d.Provider))
	r = r.WithContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		tracer.EndWebhookSpan(span, http.StatusBadRequest, err)
		return
	}
	d.Body = body
	d.Header = r.Header

	rec, err := h.agg.Webhooks().Receive(ctx, d)
	if err != nil {
		status := h.writeErr(w, r, err)
		tracer.EndWebhookSpan(span, status, err)
		return
	}

	writeJSON(w, http.StatusOK, receiveResponse{Status: "processed", RecordID: rec.ID})
	tracer.EndWebhookSpan(span, http.StatusOK, nil)
}

// facebookChallenge answers the hub verification handshake Facebook sends
// when a subscription is registered.
func (h *Handler) facebookChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.agg.Webhooks().Challenge(r.Context(), source.ProviderFacebook,
		queryParam(r, "hub.mode"),
		queryParam(r, "hub.verify_token"),
		queryParam(r, "hub.challenge"),
	)
	if err != nil {
		if statusFor(err) == http.StatusUnauthorized {
			writeError(w, http.StatusForbidden, "verification failed")
			return
		}
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, challenge) //nolint:errcheck // best effort
}

func (h *Handler) webhookStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.agg.Webhooks().Stats(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if stats == nil {
		stats = []webhook.Stats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) retryWebhook(w http.ResponseWriter, r *http.Request) {
	recID, err := id.ParseWebhookID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record ID")
		return
	}

	rec, err := h.agg.Webhooks().Retry(r.Context(), recID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
