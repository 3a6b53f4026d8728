package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/signature"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/store/memory"
	"github.com/xraph/convene/webhook"
)

type recordingProcessor struct {
	payloads [][]byte
	err      error
}

func (p *recordingProcessor) Process(_ context.Context, _ *source.EventSource, raw []byte) error {
	p.payloads = append(p.payloads, raw)
	return p.err
}

func setup(t *testing.T, src *source.EventSource) (*webhook.Service, *memory.Store, *recordingProcessor) {
	t.Helper()
	s := memory.New()
	if src != nil {
		if err := s.CreateSource(context.Background(), src); err != nil {
			t.Fatal(err)
		}
	}
	proc := &recordingProcessor{}
	return webhook.NewService(s, s, proc, nil), s, proc
}

func webhookSource(p source.Provider, secret string) *source.EventSource {
	return &source.EventSource{
		Entity:        entity.New(),
		ID:            id.NewSourceID(),
		Name:          string(p) + " hooks",
		Kind:          source.KindWebhook,
		Provider:      p,
		Active:        true,
		WebhookSecret: secret,
	}
}

const body = `{"id":"ev1","name":{"text":"Jazz Night"},"start":{"utc":"2025-07-12T20:00:00Z"}}`

func TestReceive_ValidSignatureIsRecordedAndProcessed(t *testing.T) {
	src := webhookSource(source.ProviderEventbrite, "s3cret")
	svc, store, proc := setup(t, src)

	h := http.Header{}
	h.Set("X-Eventbrite-Signature", signature.Sign(signature.SHA256, []byte(body), "s3cret"))
	h.Set("X-Eventbrite-Event", "event.published")

	rec, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderEventbrite, Body: []byte(body), Header: h})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(proc.payloads) != 1 {
		t.Fatalf("processed %d payloads", len(proc.payloads))
	}

	stored, err := store.GetRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Processed || stored.ProcessedAt == nil || stored.Error != "" {
		t.Fatalf("record outcome = %+v", stored)
	}
	if stored.EventType != "event.published" || stored.SourceID != src.ID {
		t.Fatalf("record = %+v", stored)
	}
}

func TestReceive_TamperedBodyIsRejectedAndNotRecorded(t *testing.T) {
	src := webhookSource(source.ProviderEventbrite, "s3cret")
	svc, store, proc := setup(t, src)

	h := http.Header{}
	h.Set("X-Eventbrite-Signature", signature.Sign(signature.SHA256, []byte(body), "s3cret"))
	tampered := []byte(`{"id":"ev1","name":{"text":"Free Beer"},"start":{"utc":"2025-07-12T20:00:00Z"}}`)

	_, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderEventbrite, Body: tampered, Header: h})
	if !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(proc.payloads) != 0 {
		t.Fatal("rejected payload reached the pipeline")
	}
	stats, _ := store.WebhookStats(context.Background())
	if len(stats) != 0 {
		t.Fatalf("rejected delivery was recorded: %+v", stats)
	}
}

func TestReceive_ProviderSchemes(t *testing.T) {
	tests := []struct {
		provider source.Provider
		header   string
		value    func(payload []byte) string
	}{
		{source.ProviderFacebook, "X-Hub-Signature-256", func(p []byte) string { return signature.Header(signature.SHA256, p, "k") }},
		{source.ProviderMeetup, "X-Meetup-Signature", func(p []byte) string { return signature.Sign(signature.SHA1, p, "k") }},
		{source.ProviderGeneric, "X-Webhook-Signature", func(p []byte) string { return signature.Sign(signature.SHA256, p, "k") }},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			src := webhookSource(tt.provider, "k")
			svc, _, _ := setup(t, src)

			h := http.Header{}
			h.Set(tt.header, tt.value([]byte(body)))
			d := webhook.Delivery{Provider: tt.provider, Body: []byte(body), Header: h}
			if tt.provider == source.ProviderGeneric {
				d.SourceID = src.ID.String()
			}
			if _, err := svc.Receive(context.Background(), d); err != nil {
				t.Fatalf("Receive: %v", err)
			}
		})
	}
}

func TestReceive_NoSecretSkipsVerification(t *testing.T) {
	src := webhookSource(source.ProviderGeneric, "")
	svc, _, proc := setup(t, src)

	_, err := svc.Receive(context.Background(), webhook.Delivery{
		Provider: source.ProviderGeneric,
		SourceID: src.ID.String(),
		Body:     []byte(body),
		Header:   http.Header{},
	})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(proc.payloads) != 1 {
		t.Fatal("payload not processed")
	}
}

func TestReceive_ProviderRouteRequiresSecret(t *testing.T) {
	src := webhookSource(source.ProviderMeetup, "")
	svc, store, proc := setup(t, src)

	_, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderMeetup, Body: []byte(body), Header: http.Header{}})
	if !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(proc.payloads) != 0 {
		t.Fatal("unsigned payload reached the pipeline")
	}
	if stats, _ := store.WebhookStats(context.Background()); len(stats) != 0 {
		t.Fatalf("unsigned delivery was recorded: %+v", stats)
	}
}

func TestReceive_ProviderRouteIgnoresPullSources(t *testing.T) {
	src := webhookSource(source.ProviderEventbrite, "")
	src.Kind = source.KindAPI
	svc, _, proc := setup(t, src)

	_, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderEventbrite, Body: []byte(body), Header: http.Header{}})
	if !errors.Is(err, webhook.ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
	if len(proc.payloads) != 0 {
		t.Fatal("payload reached the pipeline")
	}
}

func TestReceive_UnknownSource(t *testing.T) {
	svc, _, _ := setup(t, nil)

	_, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderMeetup, Body: []byte(body), Header: http.Header{}})
	if !errors.Is(err, webhook.ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
	_, err = svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderGeneric, SourceID: id.NewSourceID().String(), Body: []byte(body), Header: http.Header{}})
	if !errors.Is(err, webhook.ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
	_, err = svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderGeneric, SourceID: "not-an-id", Body: []byte(body), Header: http.Header{}})
	if !errors.Is(err, webhook.ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
}

func TestReceive_EnvelopeIsUnwrapped(t *testing.T) {
	src := webhookSource(source.ProviderGeneric, "")
	svc, store, proc := setup(t, src)

	envelope := `{"type":"event.created","event":{"title":"Book Club","start_date":"2025-07-13"}}`
	rec, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderGeneric, SourceID: src.ID.String(), Body: []byte(envelope), Header: http.Header{}})
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(proc.payloads[0]) != `{"title":"Book Club","start_date":"2025-07-13"}` {
		t.Fatalf("processor got %s", proc.payloads[0])
	}
	stored, _ := store.GetRecord(context.Background(), rec.ID)
	if stored.EventType != "event.created" {
		t.Fatalf("event type = %q", stored.EventType)
	}
	if string(stored.Payload) != envelope {
		t.Fatal("record must keep the delivered body")
	}
}

func TestReceive_ProcessingFailureIsRecordedAndRetryable(t *testing.T) {
	src := webhookSource(source.ProviderGeneric, "")
	svc, store, proc := setup(t, src)
	proc.err = errors.New("database unavailable")

	rec, err := svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderGeneric, SourceID: src.ID.String(), Body: []byte(body), Header: http.Header{}})
	if err == nil || rec == nil {
		t.Fatalf("rec = %v err = %v", rec, err)
	}
	stored, _ := store.GetRecord(context.Background(), rec.ID)
	if stored.Processed || stored.Error != "database unavailable" {
		t.Fatalf("failure not recorded: %+v", stored)
	}
	if n, _ := store.CountUnprocessed(context.Background()); n != 1 {
		t.Fatalf("unprocessed = %d, want 1", n)
	}

	proc.err = nil
	if _, err := svc.Retry(context.Background(), rec.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	stored, _ = store.GetRecord(context.Background(), rec.ID)
	if !stored.Processed || stored.Error != "" {
		t.Fatalf("retry outcome = %+v", stored)
	}

	stats, _ := svc.Stats(context.Background())
	if len(stats) != 1 || stats[0].Processed != 1 || stats[0].Total != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	if _, err := svc.Retry(context.Background(), id.NewWebhookID()); !errors.Is(err, webhook.ErrNotFound) {
		t.Fatalf("retry of missing record: %v", err)
	}
}

func TestChallenge(t *testing.T) {
	src := webhookSource(source.ProviderFacebook, "app-secret")
	src.Config = map[string]string{"verify_token": "hub-token"}
	svc, _, _ := setup(t, src)

	got, err := svc.Challenge(context.Background(), source.ProviderFacebook, "subscribe", "hub-token", "12345")
	if err != nil || got != "12345" {
		t.Fatalf("challenge = %q, %v", got, err)
	}
	if _, err := svc.Challenge(context.Background(), source.ProviderFacebook, "subscribe", "wrong", "12345"); !errors.Is(err, signature.ErrInvalidSignature) {
		t.Fatalf("wrong token err = %v", err)
	}
}

func TestOnOutcome(t *testing.T) {
	src := webhookSource(source.ProviderEventbrite, "s3cret")
	svc, _, _ := setup(t, src)

	var outcomes []string
	svc.OnOutcome(func(_ source.Provider, o string) { outcomes = append(outcomes, o) })

	_, _ = svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderEventbrite, Body: []byte(body), Header: http.Header{}})
	h := http.Header{}
	h.Set("X-Eventbrite-Signature", signature.Sign(signature.SHA256, []byte(body), "s3cret"))
	_, _ = svc.Receive(context.Background(), webhook.Delivery{Provider: source.ProviderEventbrite, Body: []byte(body), Header: h})

	if len(outcomes) != 2 || outcomes[0] != webhook.OutcomeRejected || outcomes[1] != webhook.OutcomeProcessed {
		t.Fatalf("outcomes = %v", outcomes)
	}
}
