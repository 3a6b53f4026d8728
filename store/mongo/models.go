package mongo

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

	ID               string            `grove:"id,pk"               bson:"_id"`
	Name             string            `grove:"name"                bson:"name"`
	Kind             string            `grove:"kind"                bson:"kind"`
	Provider         string            `grove:"provider"            bson:"provider"`
	BaseURL          string            `grove:"base_url"            bson:"base_url"`
	Credential       string            `grove:"credential"          bson:"credential"`
	SyncFrequency    int               `grove:"sync_frequency"      bson:"sync_frequency"`
	RateLimitPerHour int               `grove:"rate_limit_per_hour" bson:"rate_limit_per_hour"`
	Active           bool              `grove:"active"              bson:"active"`
	WebhookSecret    string            `grove:"webhook_secret"      bson:"webhook_secret"`
	Status           string            `grove:"status"              bson:"status"`
	LastSyncAt       *time.Time        `grove:"last_sync_at"        bson:"last_sync_at,omitempty"`
	ErrorCount       int               `grove:"error_count"         bson:"error_count"`
	Config           map[string]string `grove:"config"              bson:"config,omitempty"`
	CreatedAt        time.Time         `grove:"created_at"          bson:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"          bson:"updated_at"`
}

func toSourceModel(src *source.EventSource) *sourceModel {
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
		Config:           src.Config,
		CreatedAt:        src.CreatedAt,
		UpdatedAt:        src.UpdatedAt,
	}
}

func fromSourceModel(m *sourceModel) (*source.EventSource, error) {
	srcID, err := id.ParseSourceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse source ID %q: %w", m.ID, err)
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
		Config:           m.Config,
	}, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:convene_events"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	SourceID     string            `grove:"source_id"     bson:"source_id"`
	ExternalID   string            `grove:"external_id"   bson:"external_id"`
	Title        string            `grove:"title"         bson:"title"`
	Description  string            `grove:"description"   bson:"description"`
	StartDate    time.Time         `grove:"start_date"    bson:"start_date"`
	EndDate      *time.Time        `grove:"end_date"      bson:"end_date,omitempty"`
	Venue        string            `grove:"venue"         bson:"venue"`
	Address      string            `grove:"address"       bson:"address"`
	URL          string            `grove:"url"           bson:"url"`
	LocationID   string            `grove:"location_id"   bson:"location_id,omitempty"`
	Latitude     *float64          `grove:"latitude"      bson:"latitude,omitempty"`
	Longitude    *float64          `grove:"longitude"     bson:"longitude,omitempty"`
	Category     string            `grove:"category"      bson:"category"`
	Confidence   float64           `grove:"confidence"    bson:"confidence"`
	DuplicateIDs []string          `grove:"duplicate_ids" bson:"duplicate_ids,omitempty"`
	Features     *feature.Features `grove:"features"      bson:"features,omitempty"`
	RawPayload   []byte            `grove:"raw_payload"   bson:"raw_payload,omitempty"`
	ContentHash  string            `grove:"content_hash"  bson:"content_hash"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
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
		DuplicateIDs: dups,
		Features:     evt.Features,
		RawPayload:   evt.RawPayload,
		ContentHash:  evt.ContentHash,
		CreatedAt:    evt.CreatedAt,
		UpdatedAt:    evt.UpdatedAt,
	}
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
		Features:    m.Features,
		ContentHash: m.ContentHash,
	}

	if len(m.RawPayload) > 0 {
		evt.RawPayload = json.RawMessage(m.RawPayload)
	}

	if m.LocationID != "" {
		if evt.LocationID, err = id.ParseLocationID(m.LocationID); err != nil {
			return nil, fmt.Errorf("parse location ID %q: %w", m.LocationID, err)
		}
	}

	for _, s := range m.DuplicateIDs {
		dupID, err := id.ParseEventID(s)
		if err != nil {
			return nil, fmt.Errorf("parse duplicate ID %q: %w", s, err)
		}

		evt.DuplicateIDs = append(evt.DuplicateIDs, dupID)
	}

	return evt, nil
}

// --- Location models ---

// geoPoint is a GeoJSON point; coordinates are [longitude, latitude].
type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type locationModel struct {
	grove.BaseModel `grove:"table:convene_locations"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	Name        string            `grove:"name"         bson:"name"`
	Address     string            `grove:"address"      bson:"address"`
	City        string            `grove:"city"         bson:"city"`
	State       string            `grove:"state"        bson:"state"`
	Country     string            `grove:"country"      bson:"country"`
	PostalCode  string            `grove:"postal_code"  bson:"postal_code"`
	Latitude    *float64          `grove:"latitude"     bson:"latitude,omitempty"`
	Longitude   *float64          `grove:"longitude"    bson:"longitude,omitempty"`
	Geo         *geoPoint         `grove:"geo"          bson:"geo,omitempty"`
	Timezone    string            `grove:"timezone"     bson:"timezone"`
	VenueType   string            `grove:"venue_type"   bson:"venue_type"`
	ProviderIDs map[string]string `grove:"provider_ids" bson:"provider_ids,omitempty"`

	// Lowercased lookup keys for case-insensitive matching.
	NameKey    string `grove:"name_key"    bson:"name_key"`
	AddressKey string `grove:"address_key" bson:"address_key"`
	CityKey    string `grove:"city_key"    bson:"city_key"`
	StateKey   string `grove:"state_key"   bson:"state_key"`

	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toLocationModel(loc *location.Location) *locationModel {
	m := &locationModel{
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
		ProviderIDs: loc.ProviderIDs,
		NameKey:     strings.ToLower(loc.Name),
		AddressKey:  strings.ToLower(loc.Address),
		CityKey:     strings.ToLower(loc.City),
		StateKey:    strings.ToLower(loc.State),
		CreatedAt:   loc.CreatedAt,
		UpdatedAt:   loc.UpdatedAt,
	}

	if loc.HasCoordinates() {
		m.Geo = &geoPoint{
			Type:        "Point",
			Coordinates: []float64{*loc.Longitude, *loc.Latitude},
		}
	}

	return m
}

func fromLocationModel(m *locationModel) (*location.Location, error) {
	locID, err := id.ParseLocationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse location ID %q: %w", m.ID, err)
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
		ProviderIDs: m.ProviderIDs,
	}, nil
}

// --- Duplicate link models ---

type linkModel struct {
	grove.BaseModel `grove:"table:convene_duplicate_links"`

	ID            string              `grove:"id,pk"           bson:"_id"`
	EventID       string              `grove:"event_id"        bson:"event_id"`
	DuplicateOfID string              `grove:"duplicate_of_id" bson:"duplicate_of_id"`
	PairKey       string              `grove:"pair_key"        bson:"pair_key"`
	Score         float64             `grove:"score"           bson:"score"`
	Breakdown     duplicate.Breakdown `grove:"breakdown"       bson:"breakdown"`
	Method        string              `grove:"method"          bson:"method"`
	Status        string              `grove:"status"          bson:"status"`
	ResolvedAt    *time.Time          `grove:"resolved_at"     bson:"resolved_at,omitempty"`
	CreatedAt     time.Time           `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time           `grove:"updated_at"      bson:"updated_at"`
}

// pairKey orders the two event IDs so a pair has one key in either direction.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func toLinkModel(l *duplicate.Link) *linkModel {
	evtID, ofID := l.EventID.String(), l.DuplicateOfID.String()

	return &linkModel{
		ID:            l.ID.String(),
		EventID:       evtID,
		DuplicateOfID: ofID,
		PairKey:       pairKey(evtID, ofID),
		Score:         l.Score,
		Breakdown:     l.Breakdown,
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

	return &duplicate.Link{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            linkID,
		EventID:       evtID,
		DuplicateOfID: ofID,
		Score:         m.Score,
		Breakdown:     m.Breakdown,
		Method:        m.Method,
		Status:        duplicate.Status(m.Status),
		ResolvedAt:    m.ResolvedAt,
	}, nil
}

// --- Sync job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:convene_sync_jobs"`

	ID          string         `grove:"id,pk"        bson:"_id"`
	SourceID    string         `grove:"source_id"    bson:"source_id"`
	Type        string         `grove:"type"         bson:"type"`
	Status      string         `grove:"status"       bson:"status"`
	StartedAt   time.Time      `grove:"started_at"   bson:"started_at"`
	CompletedAt *time.Time     `grove:"completed_at" bson:"completed_at,omitempty"`
	Processed   int            `grove:"processed"    bson:"processed"`
	Created     int            `grove:"created"      bson:"created"`
	Updated     int            `grove:"updated"      bson:"updated"`
	Failed      int            `grove:"failed"       bson:"failed"`
	Error       string         `grove:"error"        bson:"error"`
	Metadata    map[string]any `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt   time.Time      `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time      `grove:"updated_at"   bson:"updated_at"`
}

func toJobModel(job *syncjob.Job) *jobModel {
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
		Metadata:    job.Metadata,
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
		Metadata:    m.Metadata,
	}

	if m.SourceID != "" {
		if job.SourceID, err = id.ParseSourceID(m.SourceID); err != nil {
			return nil, fmt.Errorf("parse source ID %q: %w", m.SourceID, err)
		}
	}

	return job, nil
}

// --- Webhook record models ---

type recordModel struct {
	grove.BaseModel `grove:"table:convene_webhook_records"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	SourceID    string     `grove:"source_id"    bson:"source_id"`
	EventType   string     `grove:"event_type"   bson:"event_type"`
	Payload     []byte     `grove:"payload"      bson:"payload"`
	Signature   string     `grove:"signature"    bson:"signature"`
	Processed   bool       `grove:"processed"    bson:"processed"`
	ProcessedAt *time.Time `grove:"processed_at" bson:"processed_at,omitempty"`
	Error       string     `grove:"error"        bson:"error"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
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
