package connector_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/convene/connector"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/source"
)

func newSource(p source.Provider, baseURL string, cfg map[string]string) *source.EventSource {
	return &source.EventSource{
		ID:       id.NewSourceID(),
		Name:     string(p),
		Kind:     source.KindAPI,
		Provider: p,
		BaseURL:  baseURL,
		Active:   true,
		Config:   cfg,
	}
}

func newClient() *connector.Client {
	return connector.NewClient(5*time.Second, nil)
}

func TestEventbrite_PaginatesWithContinuation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/organizations/42/events/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("continuation") == "" {
			_, _ = w.Write([]byte(`{"events":[{"id":"1"},{"id":"2"}],"pagination":{"has_more_items":true,"continuation":"c2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"events":[{"id":"3"}],"pagination":{"has_more_items":false}}`))
	}))
	defer srv.Close()

	c := connector.NewEventbrite(newClient())
	src := newSource(source.ProviderEventbrite, srv.URL, map[string]string{"organization_id": "42"})
	got, err := c.Fetch(context.Background(), src, "tok")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d payloads, want 3", len(got))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if string(got[2]) != `{"id":"3"}` {
		t.Errorf("payload = %s", got[2])
	}
}

func TestFacebook_FollowsPagingNext(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "fbtok" {
			t.Errorf("access_token = %q", r.URL.Query().Get("access_token"))
		}
		if r.URL.Query().Get("after") == "" {
			_, _ = w.Write([]byte(`{"data":[{"id":"a"}],"paging":{"next":"` + srv.URL + `/page/events?access_token=fbtok&after=x"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"b"}],"paging":{}}`))
	}))
	defer srv.Close()

	c := connector.NewFacebook(newClient())
	got, err := c.Fetch(context.Background(), newSource(source.ProviderFacebook, srv.URL, map[string]string{"page_id": "page"}), "fbtok")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d payloads, want 2", len(got))
	}
}

func TestMeetup_StopsOnShortPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
	}))
	defer srv.Close()

	c := connector.NewMeetup(newClient())
	got, err := c.Fetch(context.Background(), newSource(source.ProviderMeetup, srv.URL, map[string]string{"group_urlname": "go-nyc"}), "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 || calls.Load() != 1 {
		t.Fatalf("payloads = %d calls = %d", len(got), calls.Load())
	}
}

func TestGeneric_FeedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"title":"a"},{"title":"b"}]`, 2},
		{"events object", `{"events":[{"title":"a"}]}`, 1},
		{"data object", `{"data":[{"title":"a"},{"title":"b"},{"title":"c"}]}`, 3},
		{"malformed", `<html>`, 0},
		{"unknown object", `{"results":[]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := connector.NewGeneric(newClient())
			got, err := c.Fetch(context.Background(), newSource(source.ProviderGeneric, srv.URL, nil), "")
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d payloads, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFetch_Non2xxIsRetryableFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := connector.NewGeneric(newClient())
	_, err := c.Fetch(context.Background(), newSource(source.ProviderGeneric, srv.URL, nil), "")
	var fe *connector.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != http.StatusBadGateway || !fe.Retryable() {
		t.Errorf("status = %d retryable = %v", fe.StatusCode, fe.Retryable())
	}
}

func TestClient_BreakerOpensPerSource(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := connector.NewGeneric(newClient())
	src := newSource(source.ProviderGeneric, srv.URL, nil)
	for i := 0; i < 5; i++ {
		_, _ = c.Fetch(context.Background(), src, "")
	}
	if calls.Load() != 3 {
		t.Fatalf("upstream calls = %d, want 3 before the circuit opens", calls.Load())
	}

	other := newSource(source.ProviderGeneric, srv.URL, nil)
	_, _ = c.Fetch(context.Background(), other, "")
	if calls.Load() != 4 {
		t.Fatalf("other source was blocked by a foreign breaker")
	}
}

func TestRegistry(t *testing.T) {
	r := connector.Defaults(newClient())
	for _, p := range []source.Provider{
		source.ProviderEventbrite, source.ProviderFacebook,
		source.ProviderMeetup, source.ProviderGeneric,
	} {
		c, ok := r.Get(p)
		if !ok || c.Provider() != p {
			t.Errorf("Get(%s) = %v, %v", p, c, ok)
		}
	}
	if _, ok := r.Get("myspace"); ok {
		t.Error("unknown provider resolved")
	}
}
