package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/normalize"
	"github.com/xraph/convene/signature"
	"github.com/xraph/convene/source"
)

// Processor runs one decoded payload through the event pipeline.
type Processor interface {
	Process(ctx context.Context, src *source.EventSource, raw []byte) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, src *source.EventSource, raw []byte) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, src *source.EventSource, raw []byte) error {
	return f(ctx, src, raw)
}

// Sources is the slice of the source registry the service reads.
type Sources interface {
	GetSource(ctx context.Context, srcID id.ID) (*source.EventSource, error)
	ListSources(ctx context.Context, opts source.ListOpts) ([]*source.EventSource, error)
}

// Scheme is how a provider signs deliveries.
type Scheme struct {
	SignatureHeader string
	EventTypeHeader string
	Algorithm       signature.Algorithm
}

var schemes = map[source.Provider]Scheme{
	source.ProviderEventbrite: {"X-Eventbrite-Signature", "X-Eventbrite-Event", signature.SHA256},
	source.ProviderFacebook:   {"X-Hub-Signature-256", "X-Facebook-Event", signature.SHA256},
	source.ProviderMeetup:     {"X-Meetup-Signature", "X-Meetup-Event", signature.SHA1},
	source.ProviderGeneric:    {"X-Webhook-Signature", "X-Event-Type", signature.SHA256},
}

// SchemeFor returns the signing scheme of p. Unknown providers use the
// generic scheme.
func SchemeFor(p source.Provider) Scheme {
	if s, ok := schemes[p]; ok {
		return s
	}
	return schemes[source.ProviderGeneric]
}

// Delivery is one inbound webhook request.
type Delivery struct {
	// Provider selects the source for provider routes.
	Provider source.Provider
	// SourceID selects the source for the generic route.
	SourceID string
	Body     []byte
	Header   http.Header
}

// Outcome labels for observers.
const (
	OutcomeProcessed     = "processed"
	OutcomeFailed        = "failed"
	OutcomeRejected      = "rejected"
	OutcomeUnknownSource = "unknown_source"
)

// Service verifies, records and processes webhook deliveries.
type Service struct {
	sources   Sources
	store     Store
	processor Processor
	logger    *slog.Logger
	now       func() time.Time
	observe   func(provider source.Provider, outcome string)
}

// NewService returns a Service.
func NewService(sources Sources, store Store, processor Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sources:   sources,
		store:     store,
		processor: processor,
		logger:    logger,
		now:       time.Now,
		observe:   func(source.Provider, string) {},
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// OnOutcome registers fn to be called once per delivery with its outcome.
func (s *Service) OnOutcome(fn func(provider source.Provider, outcome string)) {
	if fn != nil {
		s.observe = fn
	}
}

// Receive handles one delivery. Unknown sources return ErrUnknownSource and
// bad signatures return signature.ErrInvalidSignature; neither is recorded.
// Provider routes always require a signature, so a source without a webhook
// secret cannot receive them. Only the generic route accepts unsigned
// deliveries, and only for sources without a secret.
// Verified deliveries are recorded before processing, and the record is
// returned even when processing fails.
func (s *Service) Receive(ctx context.Context, d Delivery) (*Record, error) {
	src, err := s.resolve(ctx, d)
	if err != nil {
		if errors.Is(err, ErrUnknownSource) {
			s.observe(d.Provider, OutcomeUnknownSource)
		}
		return nil, err
	}

	scheme := SchemeFor(src.Provider)
	sig := d.Header.Get(scheme.SignatureHeader)
	if err := verify(d, src, scheme, sig); err != nil {
		s.logger.WarnContext(ctx, "webhook signature rejected",
			"source_id", src.ID,
			"provider", src.Provider,
			"error", err,
		)
		s.observe(src.Provider, OutcomeRejected)
		return nil, err
	}

	now := s.now().UTC()
	rec := &Record{
		Entity:    entity.At(now),
		ID:        id.NewWebhookID(),
		SourceID:  src.ID,
		EventType: eventType(d.Header.Get(scheme.EventTypeHeader), d.Body),
		Payload:   append(json.RawMessage(nil), d.Body...),
		Signature: sig,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("convene: record webhook: %w", err)
	}

	s.logger.DebugContext(ctx, "webhook received",
		"record_id", rec.ID,
		"source_id", src.ID,
		"event_type", rec.EventType,
	)
	return rec, s.process(ctx, src, rec)
}

// Retry reprocesses a stored record.
func (s *Service) Retry(ctx context.Context, recID id.ID) (*Record, error) {
	rec, err := s.store.GetRecord(ctx, recID)
	if err != nil {
		return nil, err
	}
	src, err := s.sources.GetSource(ctx, rec.SourceID)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, rec.SourceID)
		}
		return nil, fmt.Errorf("convene: load webhook source: %w", err)
	}
	return rec, s.process(ctx, src, rec)
}

// Stats returns per-source delivery counts.
func (s *Service) Stats(ctx context.Context) ([]Stats, error) {
	return s.store.WebhookStats(ctx)
}

// Challenge answers a subscription handshake for provider p: when mode is
// "subscribe" and token matches the source's verify token, the challenge is
// echoed back. The verify token is the source config "verify_token", or the
// webhook secret when unset.
func (s *Service) Challenge(ctx context.Context, p source.Provider, mode, token, challenge string) (string, error) {
	src, err := s.resolve(ctx, Delivery{Provider: p})
	if err != nil {
		return "", err
	}
	want := src.Config["verify_token"]
	if want == "" {
		want = src.WebhookSecret
	}
	if mode != "subscribe" || want == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return "", signature.ErrInvalidSignature
	}
	return challenge, nil
}

func (s *Service) process(ctx context.Context, src *source.EventSource, rec *Record) error {
	procErr := s.processor.Process(ctx, src, normalize.Unwrap(rec.Payload))

	now := s.now().UTC()
	rec.ProcessedAt = &now
	rec.UpdatedAt = now
	rec.Processed = procErr == nil
	rec.Error = ""
	if procErr != nil {
		rec.Error = procErr.Error()
	}
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to record webhook outcome",
			"record_id", rec.ID,
			"error", err,
		)
	}

	if procErr != nil {
		s.logger.ErrorContext(ctx, "webhook processing failed",
			"record_id", rec.ID,
			"source_id", src.ID,
			"error", procErr,
		)
		s.observe(src.Provider, OutcomeFailed)
		return fmt.Errorf("convene: process webhook: %w", procErr)
	}
	s.observe(src.Provider, OutcomeProcessed)
	return nil
}

// verify checks the delivery signature against the source secret.
func verify(d Delivery, src *source.EventSource, scheme Scheme, sig string) error {
	if src.WebhookSecret == "" {
		if d.SourceID != "" {
			return nil
		}
		return fmt.Errorf("%w: source %s has no webhook secret", signature.ErrInvalidSignature, src.ID)
	}
	return signature.Verify(scheme.Algorithm, d.Body, src.WebhookSecret, sig)
}

// resolve picks the source a delivery belongs to. Provider routes take the
// first active webhook-kind source of that provider; the generic route names
// the source explicitly.
func (s *Service) resolve(ctx context.Context, d Delivery) (*source.EventSource, error) {
	if d.SourceID != "" {
		srcID, err := id.ParseSourceID(d.SourceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, d.SourceID)
		}
		src, err := s.sources.GetSource(ctx, srcID)
		if err != nil {
			if errors.Is(err, source.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSource, d.SourceID)
			}
			return nil, fmt.Errorf("convene: load webhook source: %w", err)
		}
		if !src.Active {
			return nil, fmt.Errorf("%w: %s is inactive", ErrUnknownSource, d.SourceID)
		}
		return src, nil
	}

	srcs, err := s.sources.ListSources(ctx, source.ListOpts{
		Kind:       source.KindWebhook,
		Provider:   d.Provider,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("convene: list webhook sources: %w", err)
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("%w: no webhook source for %s", ErrUnknownSource, d.Provider)
	}
	return srcs[0], nil
}

// eventType reads the delivery's type tag from the header, then from the
// envelope's "type", "action" or "event_type" field.
func eventType(header string, body []byte) string {
	if header = strings.TrimSpace(header); header != "" {
		return header
	}
	var env struct {
		Type      string `json:"type"`
		Action    string `json:"action"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		for _, v := range []string{env.Type, env.Action, env.EventType} {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return "event"
}
