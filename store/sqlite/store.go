package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/convene"
	"github.com/xraph/convene/duplicate"
	"github.com/xraph/convene/event"
	"github.com/xraph/convene/id"
	"github.com/xraph/convene/location"
	"github.com/xraph/convene/source"
	convenestore "github.com/xraph/convene/store"
	"github.com/xraph/convene/syncjob"
	"github.com/xraph/convene/webhook"
)

// compile-time interface check
var _ convenestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("convene/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", convene.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Source Store ====================

func (s *Store) CreateSource(ctx context.Context, src *source.EventSource) error {
	_, err := s.sdb.NewInsert(toSourceModel(src)).Exec(ctx)
	return err
}

func (s *Store) GetSource(ctx context.Context, srcID id.ID) (*source.EventSource, error) {
	m := new(sourceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", srcID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrSourceNotFound
		}
		return nil, err
	}
	return fromSourceModel(m)
}

func (s *Store) UpdateSource(ctx context.Context, src *source.EventSource) error {
	existing, err := s.GetSource(ctx, src.ID)
	if err != nil {
		return err
	}
	m := toSourceModel(src)
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	_, err = s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	return err
}

func (s *Store) ListSources(ctx context.Context, opts source.ListOpts) ([]*source.EventSource, error) {
	var models []sourceModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = 1")
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Provider != "" {
		q = q.Where("provider = ?", string(opts.Provider))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("name ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*source.EventSource, len(models))
	for i := range models {
		src, err := fromSourceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = src
	}
	return result, nil
}

func (s *Store) UpdateSyncState(ctx context.Context, srcID id.ID, state source.SyncState) error {
	q := s.sdb.NewUpdate((*sourceModel)(nil)).
		Set("status = ?", string(state.Status)).
		Set("error_count = ?", state.ErrorCount).
		Set("updated_at = ?", time.Now().UTC())
	if state.LastSyncAt != nil {
		q = q.Set("last_sync_at = ?", state.LastSyncAt.UTC()).
			Where("id = ?", srcID.String())
	} else {
		q = q.Where("id = ?", srcID.String())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return convene.ErrSourceNotFound
	}
	return nil
}

// ==================== Event Store ====================

// UpsertEvent writes evt keyed on (source_id, external_id). The conflict
// clause keeps the stored id and created_at, so concurrent webhook and sync
// writes of the same event converge on one row.
func (s *Store) UpsertEvent(ctx context.Context, evt *event.Event) (bool, error) {
	existing, err := s.GetEventByExternalID(ctx, evt.SourceID, evt.ExternalID)
	switch {
	case err == nil:
		evt.ID = existing.ID
		evt.CreatedAt = existing.CreatedAt
	case !errors.Is(err, convene.ErrEventNotFound):
		return false, err
	}

	m, err := toEventModel(evt)
	if err != nil {
		return false, err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(source_id, external_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Set("venue = EXCLUDED.venue").
		Set("address = EXCLUDED.address").
		Set("url = EXCLUDED.url").
		Set("location_id = EXCLUDED.location_id").
		Set("latitude = EXCLUDED.latitude").
		Set("longitude = EXCLUDED.longitude").
		Set("category = EXCLUDED.category").
		Set("confidence = EXCLUDED.confidence").
		Set("duplicate_ids = EXCLUDED.duplicate_ids").
		Set("features = EXCLUDED.features").
		Set("raw_payload = EXCLUDED.raw_payload").
		Set("content_hash = EXCLUDED.content_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	// A concurrent writer may have inserted first; read back the winner.
	stored, err := s.GetEventByExternalID(ctx, evt.SourceID, evt.ExternalID)
	if err != nil {
		return false, err
	}
	created := stored.ID == evt.ID
	evt.ID = stored.ID
	evt.CreatedAt = stored.CreatedAt
	return created, nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) GetEventByExternalID(ctx context.Context, srcID id.ID, externalID string) (*event.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("source_id = ?", srcID.String()).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

// FindCandidates prefilters on the time window and a bounding box, then
// applies the exact query in Go. Times are stored as UTC text, so bounds
// are converted before comparison.
func (s *Store) FindCandidates(ctx context.Context, q event.CandidateQuery) ([]*event.Event, error) {
	var models []eventModel
	sel := s.sdb.NewSelect(&models).
		Where("start_date <= ?", q.To.UTC()).
		Where("(end_date >= ? OR start_date >= ?)", q.From.UTC(), q.From.Add(-event.DefaultDuration).UTC())
	if q.Spatial() {
		minLat, maxLat, minLon, maxLon := location.BoundingBox(*q.Latitude, *q.Longitude, q.RadiusKm*1000)
		sel = sel.
			Where("latitude BETWEEN ? AND ?", minLat, maxLat).
			Where("longitude BETWEEN ? AND ?", minLon, maxLon)
	}
	sel = sel.OrderExpr("start_date ASC, id ASC")

	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}

	var result []*event.Event
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		if !q.Matches(evt) {
			continue
		}
		result = append(result, evt)
		if q.Limit > 0 && len(result) == q.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models)

	if !opts.SourceID.IsNil() {
		q = q.Where("source_id = ?", opts.SourceID.String())
	}
	if opts.From != nil {
		q = q.Where("start_date >= ?", opts.From.UTC())
	}
	if opts.To != nil {
		q = q.Where("start_date <= ?", opts.To.UTC())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("start_date DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	return s.sdb.NewSelect((*eventModel)(nil)).Count(ctx)
}

func (s *Store) AverageConfidence(ctx context.Context) (float64, error) {
	var rows []avgRow
	err := s.sdb.NewRaw(`SELECT COALESCE(AVG(confidence), 0) AS value FROM convene_events`).
		Scan(ctx, &rows)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Value, nil
}

// ==================== Location Store ====================

func (s *Store) CreateLocation(ctx context.Context, loc *location.Location) error {
	_, err := s.sdb.NewInsert(toLocationModel(loc)).Exec(ctx)
	return err
}

func (s *Store) GetLocation(ctx context.Context, locID id.ID) (*location.Location, error) {
	m := new(locationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", locID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrLocationNotFound
		}
		return nil, err
	}
	return fromLocationModel(m)
}

func (s *Store) UpdateLocation(ctx context.Context, loc *location.Location) error {
	m := toLocationModel(loc)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return convene.ErrLocationNotFound
	}
	return nil
}

func (s *Store) FindLocationByAddress(ctx context.Context, name, address string) (*location.Location, error) {
	m := new(locationModel)
	err := s.sdb.NewSelect(m).
		Where("LOWER(name) = LOWER(?)", name).
		Where("LOWER(address) = LOWER(?)", address).
		OrderExpr("created_at ASC, id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrLocationNotFound
		}
		return nil, err
	}
	return fromLocationModel(m)
}

func (s *Store) FindLocationByCity(ctx context.Context, name, city, state string) (*location.Location, error) {
	m := new(locationModel)
	q := s.sdb.NewSelect(m).
		Where("LOWER(name) = LOWER(?)", name).
		Where("LOWER(city) = LOWER(?)", city)
	if state != "" {
		q = q.Where("LOWER(state) = LOWER(?)", state)
	}
	err := q.OrderExpr("created_at ASC, id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrLocationNotFound
		}
		return nil, err
	}
	return fromLocationModel(m)
}

// FindLocationsNear selects the bounding box of the radius and keeps the
// rows within the exact distance, nearest first.
func (s *Store) FindLocationsNear(ctx context.Context, lat, lon, radiusMeters float64) ([]*location.Location, error) {
	minLat, maxLat, minLon, maxLon := location.BoundingBox(lat, lon, radiusMeters)

	var models []locationModel
	err := s.sdb.NewSelect(&models).
		Where("latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("longitude BETWEEN ? AND ?", minLon, maxLon).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return nearest(models, lat, lon, radiusMeters)
}

func nearest(models []locationModel, lat, lon, radiusMeters float64) ([]*location.Location, error) {
	type hit struct {
		loc  *location.Location
		dist float64
	}
	var hits []hit
	for i := range models {
		loc, err := fromLocationModel(&models[i])
		if err != nil {
			return nil, err
		}
		if !loc.HasCoordinates() {
			continue
		}
		if d := location.Distance(lat, lon, *loc.Latitude, *loc.Longitude); d <= radiusMeters {
			hits = append(hits, hit{loc: loc, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	result := make([]*location.Location, len(hits))
	for i, h := range hits {
		result[i] = h.loc
	}
	return result, nil
}

// ==================== Duplicate Link Store ====================

// CreateLinks inserts links one at a time; the unordered pair index turns a
// pair already linked in either direction into a no-op.
func (s *Store) CreateLinks(ctx context.Context, links []*duplicate.Link) (int, error) {
	inserted := 0
	for _, l := range links {
		res, err := s.sdb.NewInsert(toLinkModel(l)).
			OnConflict("DO NOTHING").
			Exec(ctx)
		if err != nil {
			return inserted, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(rows)
	}
	return inserted, nil
}

func (s *Store) GetLink(ctx context.Context, linkID id.ID) (*duplicate.Link, error) {
	m := new(linkModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", linkID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrLinkNotFound
		}
		return nil, err
	}
	return fromLinkModel(m)
}

func (s *Store) ListLinks(ctx context.Context, opts duplicate.ListOpts) ([]*duplicate.Link, error) {
	var models []linkModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.EventID.IsNil() {
		q = q.Where("(event_id = ? OR duplicate_of_id = ?)",
			opts.EventID.String(), opts.EventID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*duplicate.Link, len(models))
	for i := range models {
		l, err := fromLinkModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) SetLinkStatus(ctx context.Context, linkID id.ID, status duplicate.Status, at time.Time) error {
	at = at.UTC()
	var resolvedAt *time.Time
	if status.Terminal() {
		resolvedAt = &at
	}
	res, err := s.sdb.NewUpdate((*linkModel)(nil)).
		Set("status = ?", string(status)).
		Set("resolved_at = ?", resolvedAt).
		Set("updated_at = ?", at).
		Where("id = ?", linkID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return convene.ErrLinkNotFound
	}
	return nil
}

func (s *Store) CountLinks(ctx context.Context, status duplicate.Status) (int64, error) {
	q := s.sdb.NewSelect((*linkModel)(nil))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return q.Count(ctx)
}

func (s *Store) PurgeResolvedLinks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*linkModel)(nil)).
		Where("status IN (?, ?)", string(duplicate.StatusConfirmed), string(duplicate.StatusRejected)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Sync Job Store ====================

func (s *Store) CreateJob(ctx context.Context, job *syncjob.Job) error {
	_, err := s.sdb.NewInsert(toJobModel(job)).Exec(ctx)
	return err
}

func (s *Store) UpdateJob(ctx context.Context, job *syncjob.Job) error {
	m := toJobModel(job)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return convene.ErrJobNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*syncjob.Job, error) {
	m := new(jobModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) ListJobs(ctx context.Context, opts syncjob.ListOpts) ([]*syncjob.Job, error) {
	var models []jobModel
	q := s.sdb.NewSelect(&models)

	if !opts.SourceID.IsNil() {
		q = q.Where("source_id = ?", opts.SourceID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("started_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromJobModels(models)
}

func (s *Store) CountJobs(ctx context.Context, status syncjob.Status) (int64, error) {
	q := s.sdb.NewSelect((*jobModel)(nil))
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return q.Count(ctx)
}

func (s *Store) ListStaleJobs(ctx context.Context, startedBefore time.Time) ([]*syncjob.Job, error) {
	var models []jobModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(syncjob.StatusRunning)).
		Where("started_at < ?", startedBefore.UTC()).
		OrderExpr("started_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fromJobModels(models)
}

func (s *Store) PurgeJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*jobModel)(nil)).
		Where("status IN (?, ?)", string(syncjob.StatusCompleted), string(syncjob.StatusFailed)).
		Where("started_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func fromJobModels(models []jobModel) ([]*syncjob.Job, error) {
	result := make([]*syncjob.Job, len(models))
	for i := range models {
		job, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = job
	}
	return result, nil
}

// ==================== Webhook Record Store ====================

func (s *Store) CreateRecord(ctx context.Context, rec *webhook.Record) error {
	_, err := s.sdb.NewInsert(toRecordModel(rec)).Exec(ctx)
	return err
}

func (s *Store) GetRecord(ctx context.Context, recID id.ID) (*webhook.Record, error) {
	m := new(recordModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", recID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, convene.ErrWebhookRecordNotFound
		}
		return nil, err
	}
	return fromRecordModel(m)
}

// UpdateRecord writes only the outcome columns; the payload is immutable.
func (s *Store) UpdateRecord(ctx context.Context, rec *webhook.Record) error {
	res, err := s.sdb.NewUpdate((*recordModel)(nil)).
		Set("processed = ?", rec.Processed).
		Set("processed_at = ?", rec.ProcessedAt).
		Set("error = ?", rec.Error).
		Set("updated_at = ?", rec.UpdatedAt).
		Where("id = ?", rec.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return convene.ErrWebhookRecordNotFound
	}
	return nil
}

func (s *Store) WebhookStats(ctx context.Context) ([]webhook.Stats, error) {
	var rows []statsRow
	err := s.sdb.NewRaw(`
		SELECT source_id,
			COUNT(*) AS total,
			SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END) AS processed,
			SUM(CASE WHEN processed = 0 AND error = '' THEN 1 ELSE 0 END) AS pending,
			SUM(CASE WHEN processed = 0 AND error != '' THEN 1 ELSE 0 END) AS errors
		FROM convene_webhook_records
		GROUP BY source_id
		ORDER BY source_id
	`).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return toStats(rows)
}

func toStats(rows []statsRow) ([]webhook.Stats, error) {
	result := make([]webhook.Stats, len(rows))
	for i, r := range rows {
		srcID, err := id.ParseSourceID(r.SourceID)
		if err != nil {
			return nil, fmt.Errorf("parse source ID %q: %w", r.SourceID, err)
		}
		result[i] = webhook.Stats{
			SourceID:  srcID,
			Total:     r.Total,
			Processed: r.Processed,
			Pending:   r.Pending,
			Errors:    r.Errors,
		}
	}
	return result, nil
}

func (s *Store) CountUnprocessed(ctx context.Context) (int64, error) {
	return s.sdb.NewSelect((*recordModel)(nil)).
		Where("processed = 0").
		Count(ctx)
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*recordModel)(nil)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
