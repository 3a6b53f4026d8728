package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/convene/id"
)

func TestNewCarriesPrefix(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() id.ID
		prefix id.Prefix
	}{
		{"source", id.NewSourceID, id.PrefixSource},
		{"event", id.NewEventID, id.PrefixEvent},
		{"location", id.NewLocationID, id.PrefixLocation},
		{"link", id.NewLinkID, id.PrefixLink},
		{"job", id.NewJobID, id.PrefixJob},
		{"webhook", id.NewWebhookID, id.PrefixWebhook},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if got.Prefix() != tt.prefix {
				t.Fatalf("prefix = %q, want %q", got.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
				t.Fatalf("unexpected string form %q", got.String())
			}
		})
	}
}

func TestParseWithPrefixRejectsMismatch(t *testing.T) {
	src := id.NewSourceID()
	if _, err := id.ParseEventID(src.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	parsed, err := id.ParseSourceID(src.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != src {
		t.Fatalf("round trip mismatch: %s != %s", parsed, src)
	}
}

func TestNilScansAndValues(t *testing.T) {
	var i id.ID
	if err := i.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !i.IsNil() {
		t.Fatal("expected nil ID")
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Fatalf("Value() = %v, %v; want nil, nil", v, err)
	}

	loc := id.NewLocationID()
	if err := i.Scan(loc.String()); err != nil {
		t.Fatal(err)
	}
	if i != loc {
		t.Fatalf("scanned %s, want %s", i, loc)
	}
}
