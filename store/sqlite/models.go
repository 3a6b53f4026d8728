package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/xraph/grove"

	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/feature"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/internal/entity"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// --- Source models ---

type sourceModel struct {
	grove.BaseModel `grove:"table:convene_sources"`

	ID               string     `grove:"id,pk"`
	Name             string     `grove:"name"`
	Kind             string     `grove:"kind"`
	Provider         string     `grove:"provider"`
	BaseURL          string     `grove:"base_url"`
	Credential       string     `grove:"credential"`
	SyncFrequency    int        `grove:"sync_frequency"`
	RateLimitPerHour int        `grove:"rate_limit_per_hour"`
	Active           bool       `grove:"active"`
	WebhookSecret    string     `grove:"webhook_secret"`
	Status           string     `grove:"status"`
	LastSyncAt       *time.Time `grove:"last_sync_at"`
	ErrorCount       int        `grove:"error_count"`
	Config           string     `grove:"config"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toSourceModel(src *source.EventSource) *sourceModel {
	config, _ := json.Marshal(src.Config) //nolint:errcheck // map[string]string always marshals

	return &sourceModel{
		ID:               src.ID.String(),
		Name:             src.Name,
		Kind:             string(src.Kind),
		Provider:         string(src.Provider),
		BaseURL:          src.BaseURL,
		Credential:       src.Credential,
		SyncFrequency:    src.SyncFrequency,
		RateLimitPerHour: src.RateLimitPerHour,
		Active:           src.Active,
		WebhookSecret:    src.WebhookSecret,
		Status:           string(src.Status),
		LastSyncAt:       src.LastSyncAt,
		ErrorCount:       src.ErrorCount,
		Config:           string(config),
		CreatedAt:        src.CreatedAt,
		UpdatedAt:        src.UpdatedAt,
	}
}

func fromSourceModel(m *sourceModel) (*source.EventSource, error) {
	srcID, err := id.ParseSourceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse source ID %q: %w", m.ID, err)
	}

	var config map[string]string
	if m.Config != "" {
		if err := json.Unmarshal([]byte(m.Config), &config); err != nil {
			return nil, fmt.Errorf("unmarshal source config: %w", err)
		}
	}

	return &source.EventSource{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               srcID,
		Name:             m.Name,
		Kind:             source.Kind(m.Kind),
		Provider:         source.Provider(m.Provider),
		BaseURL:          m.BaseURL,
		Credential:       m.Credential,
		SyncFrequency:    m.SyncFrequency,
		RateLimitPerHour: m.RateLimitPerHour,
		Active:           m.Active,
		WebhookSecret:    m.WebhookSecret,
		Status:           source.Status(m.Status),
		LastSyncAt:       m.LastSyncAt,
		ErrorCount:       m.ErrorCount,
		Config:           config,
	}, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:convene_events"`

	ID           string     `grove:"id,pk"`
	SourceID     string     `grove:"source_id"`
	ExternalID   string     `grove:"external_id"`
	Title        string     `grove:"title"`
	Description  string     `grove:"description"`
	StartDate    time.Time  `grove:"start_date"`
	EndDate      *time.Time `grove:"end_date"`
	Venue        string     `grove:"venue"`
	Address      string     `grove:"address"`
	URL          string     `grove:"url"`
	LocationID   string     `grove:"location_id"`
	Latitude     *float64   `grove:"latitude"`
	Longitude    *float64   `grove:"longitude"`
	Category     string     `grove:"category"`
	Confidence   float64    `grove:"confidence"`
	DuplicateIDs string     `grove:"duplicate_ids"`
	Features     string     `grove:"features"`
	RawPayload   string     `grove:"raw_payload"`
	ContentHash  string     `grove:"content_hash"`
	CreatedAt    time.Time  `grove:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	var features string
	if evt.Features != nil {
		b, err := json.Marshal(evt.Features)
		if err != nil {
			return nil, fmt.Errorf("marshal features: %w", err)
		}
		features = string(b)
	}
	dups := make([]string, len(evt.DuplicateIDs))
	for i, d := range evt.DuplicateIDs {
		dups[i] = d.String()
	}
	return &eventModel{
		ID:           evt.ID.String(),
		SourceID:     evt.SourceID.String(),
		ExternalID:   evt.ExternalID,
		Title:        evt.Title,
		Description:  evt.Description,
		StartDate:    evt.StartDate,
		EndDate:      evt.EndDate,
		Venue:        evt.Venue,
		Address:      evt.Address,
		URL:          evt.URL,
		LocationID:   evt.LocationID.String(),
		Latitude:     evt.Latitude,
		Longitude:    evt.Longitude,
		Category:     evt.Category,
		Confidence:   evt.Confidence,
		DuplicateIDs: strings.Join(dups, ","),
		Features:     features,
		RawPayload:   string(evt.RawPayload),
		ContentHash:  evt.ContentHash,
		CreatedAt:    evt.CreatedAt,
		UpdatedAt:    evt.UpdatedAt,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	srcID, err := id.ParseSourceID(m.SourceID)
	if err != nil {
		return nil, fmt.Errorf("parse source ID %q: %w", m.SourceID, err)
	}
	evt := &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          evtID,
		SourceID:    srcID,
		ExternalID:  m.ExternalID,
		Title:       m.Title,
		Description: m.Description,
		StartDate:   m.StartDate,
		EndDate:     m.EndDate,
		Venue:       m.Venue,
		Address:     m.Address,
		URL:         m.URL,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Category:    m.Category,
		Confidence:  m.Confidence,
		ContentHash: m.ContentHash,
	}
	if m.RawPayload != "" {
		evt.RawPayload = json.RawMessage(m.RawPayload)
	}
	if m.LocationID != "" {
		if evt.LocationID, err = id.ParseLocationID(m.LocationID); err != nil {
			return nil, fmt.Errorf("parse location ID %q: %w", m.LocationID, err)
		}
	}
	if m.DuplicateIDs != "" {
		for _, s := range strings.Split(m.DuplicateIDs, ",") {
			dupID, err := id.ParseEventID(s)
			if err != nil {
				return nil, fmt.Errorf("parse duplicate ID %q: %w", s, err)
			}
			evt.DuplicateIDs = append(evt.DuplicateIDs, dupID)
		}
	}
	if m.Features != "" {
		evt.Features = new(feature.Features)
		if err := json.Unmarshal([]byte(m.Features), evt.Features); err != nil {
			return nil, fmt.Errorf("unmarshal features: %w", err)
		}
	}
	return evt, nil
}

// --- Location models ---

type locationModel struct {
	grove.BaseModel `grove:"table:convene_locations"`

	ID          string    `grove:"id,pk"`
	Name        string    `grove:"name"`
	Address     string    `grove:"address"`
	City        string    `grove:"city"`
	State       string    `grove:"state"`
	Country     string    `grove:"country"`
	PostalCode  string    `grove:"postal_code"`
	Latitude    *float64  `grove:"latitude"`
	Longitude   *float64  `grove:"longitude"`
	Timezone    string    `grove:"timezone"`
	VenueType   string    `grove:"venue_type"`
	ProviderIDs string    `grove:"provider_ids"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toLocationModel(loc *location.Location) *locationModel {
	providerIDs, _ := json.Marshal(loc.ProviderIDs) //nolint:errcheck // map[string]string always marshals

	return &locationModel{
		ID:          loc.ID.String(),
		Name:        loc.Name,
		Address:     loc.Address,
		City:        loc.City,
		State:       loc.State,
		Country:     loc.Country,
		PostalCode:  loc.PostalCode,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Timezone:    loc.Timezone,
		VenueType:   string(loc.VenueType),
		ProviderIDs: string(providerIDs),
		CreatedAt:   loc.CreatedAt,
		UpdatedAt:   loc.UpdatedAt,
	}
}

func fromLocationModel(m *locationModel) (*location.Location, error) {
	locID, err := id.ParseLocationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse location ID %q: %w", m.ID, err)
	}

	var providerIDs map[string]string
	if m.ProviderIDs != "" {
		if err := json.Unmarshal([]byte(m.ProviderIDs), &providerIDs); err != nil {
			return nil, fmt.Errorf("unmarshal provider IDs: %w", err)
		}
	}

	return &location.Location{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          locID,
		Name:        m.Name,
		Address:     m.Address,
		City:        m.City,
		State:       m.State,
		Country:     m.Country,
		PostalCode:  m.PostalCode,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Timezone:    m.Timezone,
		VenueType:   location.VenueType(m.VenueType),
		ProviderIDs: providerIDs,
	}, nil
}

// --- Duplicate link models ---

type linkModel struct {
	grove.BaseModel `grove:"table:convene_duplicate_links"`

	ID            string     `grove:"id,pk"`
	EventID       string     `grove:"event_id"`
	DuplicateOfID string     `grove:"duplicate_of_id"`
	Score         float64    `grove:"score"`
	Breakdown     string     `grove:"breakdown"`
	Method        string     `grove:"method"`
	Status        string     `grove:"status"`
	ResolvedAt    *time.Time `grove:"resolved_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toLinkModel(l *duplicate.Link) *linkModel {
	breakdown, _ := json.Marshal(l.Breakdown) //nolint:errcheck // plain value struct

	return &linkModel{
		ID:            l.ID.String(),
		EventID:       l.EventID.String(),
		DuplicateOfID: l.DuplicateOfID.String(),
		Score:         l.Score,
		Breakdown:     string(breakdown),
		Method:        l.Method,
		Status:        string(l.Status),
		ResolvedAt:    l.ResolvedAt,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func fromLinkModel(m *linkModel) (*duplicate.Link, error) {
	linkID, err := id.ParseLinkID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse link ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	ofID, err := id.ParseEventID(m.DuplicateOfID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.DuplicateOfID, err)
	}

	var breakdown duplicate.Breakdown
	if m.Breakdown != "" {
		if err := json.Unmarshal([]byte(m.Breakdown), &breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}

	return &duplicate.Link{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            linkID,
		EventID:       evtID,
		DuplicateOfID: ofID,
		Score:         m.Score,
		Breakdown:     breakdown,
		Method:        m.Method,
		Status:        duplicate.Status(m.Status),
		ResolvedAt:    m.ResolvedAt,
	}, nil
}

// --- Sync job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:convene_sync_jobs"`

	ID          string     `grove:"id,pk"`
	SourceID    string     `grove:"source_id"`
	Type        string     `grove:"type"`
	Status      string     `grove:"status"`
	StartedAt   time.Time  `grove:"started_at"`
	CompletedAt *time.Time `grove:"completed_at"`
	Processed   int        `grove:"processed"`
	Created     int        `grove:"created"`
	Updated     int        `grove:"updated"`
	Failed      int        `grove:"failed"`
	Error       string     `grove:"error"`
	Metadata    string     `grove:"metadata"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toJobModel(job *syncjob.Job) *jobModel {
	metadata, _ := json.Marshal(job.Metadata) //nolint:errcheck // best-effort

	m := &jobModel{
		ID:          job.ID.String(),
		Type:        string(job.Type),
		Status:      string(job.Status),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Processed:   job.Processed,
		Created:     job.Created,
		Updated:     job.Updated,
		Failed:      job.Failed,
		Error:       job.Error,
		Metadata:    string(metadata),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if !job.SourceID.IsNil() {
		m.SourceID = job.SourceID.String()
	}
	return m
}

func fromJobModel(m *jobModel) (*syncjob.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	job := &syncjob.Job{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          jobID,
		Type:        syncjob.Type(m.Type),
		Status:      syncjob.Status(m.Status),
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Processed:   m.Processed,
		Created:     m.Created,
		Updated:     m.Updated,
		Failed:      m.Failed,
		Error:       m.Error,
	}
	if m.SourceID != "" {
		if job.SourceID, err = id.ParseSourceID(m.SourceID); err != nil {
			return nil, fmt.Errorf("parse source ID %q: %w", m.SourceID, err)
		}
	}
	if m.Metadata != "" && m.Metadata != "null" {
		_ = json.Unmarshal([]byte(m.Metadata), &job.Metadata) //nolint:errcheck // best-effort
	}
	return job, nil
}

// --- Webhook record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:convene_webhook_records"`

	ID          string     `grove:"id,pk"`
	SourceID    string     `grove:"source_id"`
	EventType   string     `grove:"event_type"`
	Payload     []byte     `grove:"payload"`
	Signature   string     `grove:"signature"`
	Processed   bool       `grove:"processed"`
	ProcessedAt *time.Time `grove:"processed_at"`
	Error       string     `grove:"error"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toRecordModel(rec *webhook.Record) *recordModel {
	return &recordModel{
		ID:          rec.ID.String(),
		SourceID:    rec.SourceID.String(),
		EventType:   rec.EventType,
		Payload:     rec.Payload,
		Signature:   rec.Signature,
		Processed:   rec.Processed,
		ProcessedAt: rec.ProcessedAt,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) (*webhook.Record, error) {
	recID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook record ID %q: %w", m.ID, err)
	}
	srcID, err := id.ParseSourceID(m.SourceID)
	if err != nil {
		return nil, fmt.Errorf("parse source ID %q: %w", m.SourceID, err)
	}
	return &webhook.Record{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          recID,
		SourceID:    srcID,
		EventType:   m.EventType,
		Payload:     m.Payload,
		Signature:   m.Signature,
		Processed:   m.Processed,
		ProcessedAt: m.ProcessedAt,
		Error:       m.Error,
	}, nil
}

type statsRow struct {
	SourceID  string `grove:"source_id"`
	Total     int64  `grove:"total"`
	Processed int64  `grove:"processed"`
	Pending   int64  `grove:"pending"`
	Errors    int64  `grove:"errors"`
}

type avgRow struct {
	Value float64 `grove:"value"`
}
