package extension_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/convene/extension"
	"github.com/xraph/convene/store/memory"
)

func TestConfigToOptions(t *testing.T) {
	if got := len(extension.Config{}.ToOptions()); got != 0 {
		t.Fatalf("zero config produced %d options, want 0", got)
	}
	if got := len(extension.DefaultConfig().ToOptions()); got != 5 {
		t.Fatalf("default config produced %d options, want 5", got)
	}
}

func TestExtension_NotInitialized(t *testing.T) {
	ext := extension.New(extension.WithStore(memory.New()))
	ctx := context.Background()

	if err := ext.Start(ctx); !errors.Is(err, extension.ErrNotInitialized) {
		t.Fatalf("Start before Init: got %v", err)
	}
	if err := ext.Health(ctx); !errors.Is(err, extension.ErrNotInitialized) {
		t.Fatalf("Health before Init: got %v", err)
	}
	if err := ext.Stop(ctx); err != nil {
		t.Fatalf("Stop before Init: %v", err)
	}

	rec := httptest.NewRecorder()
	ext.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestExtension_InitWithoutStore(t *testing.T) {
	ext := extension.New()
	if err := ext.Init(context.Background()); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestExtension_Lifecycle(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithPrefix("/events/"),
	)
	ctx := context.Background()

	if err := ext.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if ext.Aggregator() == nil {
		t.Fatal("aggregator not built")
	}
	if got := ext.Prefix(); got != "/events" {
		t.Fatalf("Prefix = %q", got)
	}
	if err := ext.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	srv := httptest.NewServer(ext.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	if err := ext.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ext.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestExtension_DisableScheduler(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithDisableScheduler(),
	)
	ctx := context.Background()
	if err := ext.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ext.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ext.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
