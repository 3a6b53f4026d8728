// Package normalize maps provider payloads onto a single event shape.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/source"
)

// Data errors. They are permanent: retrying the same payload cannot succeed.
var (
	ErrInvalidPayload = errors.New("convene: invalid payload")
	ErrMissingField   = errors.New("convene: missing required field")
)

// IsPermanent reports whether err is a data error that should be skipped
// rather than retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrMissingField)
}

// NormalizedEvent is the provider-independent form of an upstream event.
// Optional fields are left empty or nil when the provider omits them.
type NormalizedEvent struct {
	ExternalID  string          `json:"external_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Venue       string          `json:"venue,omitempty"`
	Address     string          `json:"address,omitempty"`
	City        string          `json:"city,omitempty"`
	State       string          `json:"state,omitempty"`
	Country     string          `json:"country,omitempty"`
	PostalCode  string          `json:"postal_code,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	URL         string          `json:"url,omitempty"`
	SourceID    id.ID           `json:"source_id"`
	Provider    source.Provider `json:"provider"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
}

// HasCoordinates reports whether both coordinates are present.
func (e *NormalizedEvent) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// ExternalIDFor derives a stable identifier for payloads that carry none.
func ExternalIDFor(title string, start time.Time, venue string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(title) + "|" + start.UTC().Format(time.RFC3339) + "|" + strings.TrimSpace(venue)))
	return hex.EncodeToString(h[:16])
}

func (e *NormalizedEvent) finish() error {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	if e.Title == "" {
		return missing("title")
	}
	if e.StartDate.IsZero() {
		return missing("start_date")
	}
	e.StartDate = e.StartDate.UTC()
	if e.EndDate != nil {
		end := e.EndDate.UTC()
		e.EndDate = &end
	}
	if e.ExternalID == "" {
		e.ExternalID = ExternalIDFor(e.Title, e.StartDate, e.Venue)
	}
	return nil
}

func missing(field string) error {
	return &FieldError{Field: field, err: ErrMissingField}
}

// FieldError names the field that failed normalization.
type FieldError struct {
	Field string
	err   error
}

func (e *FieldError) Error() string { return e.err.Error() + ": " + e.Field }

func (e *FieldError) Unwrap() error { return e.err }
