// Package id defines the TypeID identifiers shared by sources, events,
// locations, duplicate links, sync jobs and webhook records.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Entity prefixes.
const (
	PrefixSource   Prefix = "src"
	PrefixEvent    Prefix = "evt"
	PrefixLocation Prefix = "loc"
	PrefixLink     Prefix = "dup"
	PrefixJob      Prefix = "job"
	PrefixWebhook  Prefix = "whk"
)

// ID wraps a TypeID. The zero value is Nil and stores as NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "evt_01h455vb4pex5vsknk084sn02q")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────

// NewSourceID generates a new event source ID.
func NewSourceID() ID { return New(PrefixSource) }

// NewEventID generates a new canonical event ID.
func NewEventID() ID { return New(PrefixEvent) }

// NewLocationID generates a new location ID.
func NewLocationID() ID { return New(PrefixLocation) }

// NewLinkID generates a new duplicate link ID.
func NewLinkID() ID { return New(PrefixLink) }

// NewJobID generates a new sync job ID.
func NewJobID() ID { return New(PrefixJob) }

// NewWebhookID generates a new webhook record ID.
func NewWebhookID() ID { return New(PrefixWebhook) }

// ──────────────────────────────────────────────────
// Parsers
// ──────────────────────────────────────────────────

// ParseSourceID parses s and checks the "src" prefix.
func ParseSourceID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSource) }

// ParseEventID parses s and checks the "evt" prefix.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseLocationID parses s and checks the "loc" prefix.
func ParseLocationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLocation) }

// ParseLinkID parses s and checks the "dup" prefix.
func ParseLinkID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLink) }

// ParseJobID parses s and checks the "job" prefix.
func ParseJobID(s string) (ID, error) { return ParseWithPrefix(s, PrefixJob) }

// ParseWebhookID parses s and checks the "whk" prefix.
func ParseWebhookID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWebhook) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
