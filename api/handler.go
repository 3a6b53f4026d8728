// Package api provides the HTTP surfaces of the aggregator: webhook ingress
// for the event providers and the administrative trigger routes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/xraph/convene"
	"github.com/xraph/convene/normalize"
	"github.com/xraph/convene/signature"
	"github.com/xraph/convene/source"
)

// MaxBodyBytes caps an inbound webhook body.
const MaxBodyBytes = 1 << 20

// Handler is the root HTTP handler for webhook ingress and admin routes.
type Handler struct {
	agg    *convene.Aggregator
	logger *slog.Logger
	router chi.Router
}

// NewHandler creates a handler serving agg.
func NewHandler(agg *convene.Aggregator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		agg:    agg,
		logger: logger,
		router: chi.NewRouter(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(h.panicRecovery, h.logging)

	r.Get("/health", h.health)

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/eventbrite", h.providerWebhook(source.ProviderEventbrite))
		r.Post("/facebook", h.providerWebhook(source.ProviderFacebook))
		r.Get("/facebook", h.facebookChallenge)
		r.Post("/meetup", h.providerWebhook(source.ProviderMeetup))
		r.Post("/generic/{sourceID}", h.genericWebhook)
		r.Get("/stats", h.webhookStats)
		r.Post("/retry/{recordID}", h.retryWebhook)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/sources/{id}/sync", h.syncSource)
		r.Post("/sync", h.runFullSync)
		r.Get("/status", h.status)
		r.Get("/duplicates", h.listDuplicates)
		r.Patch("/duplicates/{id}", h.resolveDuplicate)
		r.Get("/jobs", h.listJobs)
	})
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// statusFor maps an aggregator error to its HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, signature.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, convene.ErrUnknownSource),
		errors.Is(err, convene.ErrSourceNotFound),
		errors.Is(err, convene.ErrWebhookRecordNotFound),
		errors.Is(err, convene.ErrLinkNotFound),
		errors.Is(err, convene.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, convene.ErrNotPullable), errors.Is(err, convene.ErrSourceInactive):
		return http.StatusConflict
	case errors.Is(err, convene.ErrInvalidLinkStatus), normalize.IsPermanent(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with its mapped status. Internal errors are logged and
// their detail is withheld.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) int {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal server error")
		return status
	}
	writeError(w, status, err.Error())
	return status
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	var n int
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	return n
}
