package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scour/internal/domain"
	"scour/internal/geo"
)

// SourceRepository

const sourceColumns = `id, name, url, country, topics, type, enabled, min_severity_floor`

func scanSource(row pgx.Row) (domain.Source, error) {
	var src domain.Source
	var typ, floor string
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Country, &src.Topics, &typ, &src.Enabled, &floor)
	src.Type = domain.SourceType(typ)
	src.MinSeverityFloor = domain.Severity(floor)
	return src, err
}

func (db *DB) GetSource(ctx context.Context, id string) (domain.Source, error) {
	src, err := scanSource(db.Pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
	return src, notFound(err)
}

func (db *DB) ListEnabledSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (db *DB) SetSourceEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE sources SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) UpsertSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Type == "" {
		src.Type = domain.SourceTypeWeb
	}
	if src.MinSeverityFloor == "" {
		src.MinSeverityFloor = domain.SeverityInformative
	}
	if src.Topics == nil {
		src.Topics = []string{}
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sources (id, name, url, country, topics, type, enabled, min_severity_floor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, country = EXCLUDED.country, topics = EXCLUDED.topics,
			type = EXCLUDED.type, enabled = EXCLUDED.enabled, min_severity_floor = EXCLUDED.min_severity_floor,
			updated_at = now()
	`, src.ID, src.Name, src.URL, src.Country, src.Topics, string(src.Type), src.Enabled, string(src.MinSeverityFloor))
	return src, err
}

// IncidentRepository

const incidentBaseColumns = `id, source_id, title, country, location, summary, advice, sources, severity, event_type,
	geo_scope, event_start_at, event_end_at, status, published, trend_id, ai_confidence, ai_reason, created_at`

func (db *DB) incidentColumns() string {
	if db.geo {
		return incidentBaseColumns + `, lat, lng, radius_km, geojson`
	}
	return incidentBaseColumns
}

func (db *DB) scanIncident(row pgx.Row) (domain.Incident, error) {
	var inc domain.Incident
	var severity, status string
	var geojson []byte
	dest := []any{&inc.ID, &inc.SourceID, &inc.Title, &inc.Country, &inc.Location, &inc.Summary, &inc.Advice,
		&inc.Sources, &severity, &inc.EventType, &inc.GeoScope, &inc.EventStartAt, &inc.EventEndAt, &status,
		&inc.Published, &inc.TrendID, &inc.AIConfidence, &inc.AIReason, &inc.CreatedAt}
	if db.geo {
		dest = append(dest, &inc.Lat, &inc.Lng, &inc.RadiusKm, &geojson)
	}
	if err := row.Scan(dest...); err != nil {
		return domain.Incident{}, err
	}
	inc.Severity = domain.Severity(severity)
	inc.Status = domain.IncidentStatus(status)
	if len(geojson) > 0 {
		inc.GeoJSON = geojson
	}
	return inc, nil
}

func (db *DB) queryIncidents(ctx context.Context, where string, args ...any) ([]domain.Incident, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+db.incidentColumns()+` FROM incidents `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Incident{}
	for rows.Next() {
		inc, err := db.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// CreateIncident inserts inc, leaving out the geo columns when the schema
// lacks them.
func (db *DB) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	if inc == nil {
		return fmt.Errorf("incident is nil")
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentDraftStatus
	}
	cols := []string{"id", "source_id", "title", "country", "location", "summary", "advice", "sources", "severity",
		"event_type", "geo_scope", "event_start_at", "event_end_at", "status", "published", "ai_confidence",
		"ai_reason", "created_at"}
	args := []any{inc.ID, inc.SourceID, inc.Title, inc.Country, inc.Location, inc.Summary, nonNil(inc.Advice),
		nonNil(inc.Sources), string(inc.Severity), inc.EventType, inc.GeoScope, inc.EventStartAt, inc.EventEndAt,
		string(inc.Status), inc.Published, inc.AIConfidence, inc.AIReason, inc.CreatedAt}
	if db.geo {
		cols = append(cols, "lat", "lng", "radius_km", "geojson")
		var geojson any
		if len(inc.GeoJSON) > 0 {
			geojson = string(inc.GeoJSON)
		}
		args = append(args, inc.Lat, inc.Lng, inc.RadiusKm, geojson)
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	_, err := db.Pool.Exec(ctx, `INSERT INTO incidents (`+strings.Join(cols, ", ")+`) VALUES (`+strings.Join(placeholders, ", ")+`)`, args...)
	return err
}

func (db *DB) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	inc, err := db.scanIncident(db.Pool.QueryRow(ctx, `SELECT `+db.incidentColumns()+` FROM incidents WHERE id = $1`, id))
	return inc, notFound(err)
}

// ListIncidentsByCountrySince matches every known spelling of country, so
// "USA" finds incidents stored as "United States".
func (db *DB) ListIncidentsByCountrySince(ctx context.Context, country string, since time.Time) ([]domain.Incident, error) {
	spellings := geo.CountrySpellings(country)
	if len(spellings) == 0 {
		return nil, nil
	}
	return db.queryIncidents(ctx, `WHERE lower(btrim(country)) = ANY($1) AND created_at >= $2 ORDER BY created_at DESC`, spellings, since)
}

func (db *DB) ListRecentIncidents(ctx context.Context, since time.Time, limit int) ([]domain.Incident, error) {
	return db.queryIncidents(ctx, `WHERE created_at >= $1 ORDER BY created_at DESC LIMIT $2`, since, limit)
}

func (db *DB) ListUnmatchedIncidents(ctx context.Context, since time.Time, limit int) ([]domain.Incident, error) {
	return db.queryIncidents(ctx, `
		WHERE trend_id IS NULL AND (status IN ('approved', 'dismissed') OR published) AND created_at >= $1
		ORDER BY created_at DESC LIMIT $2`, since, limit)
}

// MergeIncidentSources appends urls not already cited, preserving order.
func (db *DB) MergeIncidentSources(ctx context.Context, id string, urls []string) (domain.Incident, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE incidents SET sources = sources || ARRAY(
			SELECT u FROM unnest($2::text[]) WITH ORDINALITY AS t(u, ord)
			WHERE u <> '' AND NOT (u = ANY(incidents.sources))
			ORDER BY ord
		)
		WHERE id = $1
	`, id, nonNil(urls))
	if err != nil {
		return domain.Incident{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Incident{}, ErrNotFound
	}
	return db.GetIncident(ctx, id)
}

func (db *DB) UpdateIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) (domain.Incident, error) {
	return db.updateIncident(ctx, id, `status = $2`, string(status))
}

func (db *DB) MarkIncidentPublished(ctx context.Context, id string) (domain.Incident, error) {
	return db.updateIncident(ctx, id, `published = true`)
}

func (db *DB) SetIncidentTrend(ctx context.Context, id, trendID string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE incidents SET trend_id = $2 WHERE id = $1`, id, trendID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) updateIncident(ctx context.Context, id, set string, args ...any) (domain.Incident, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE incidents SET `+set+` WHERE id = $1`, append([]any{id}, args...)...)
	if err != nil {
		return domain.Incident{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.Incident{}, ErrNotFound
	}
	return db.GetIncident(ctx, id)
}

// TrendRepository

const trendColumns = `id, title, country, countries, event_type, severity, description, predictive_analysis,
	alert_ids, incident_count, status, first_seen, last_seen, auto_generated`

func scanTrend(row pgx.Row) (domain.Trend, error) {
	var tr domain.Trend
	var severity, status string
	err := row.Scan(&tr.ID, &tr.Title, &tr.Country, &tr.Countries, &tr.EventType, &severity, &tr.Description,
		&tr.PredictiveAnalysis, &tr.AlertIDs, &tr.IncidentCount, &status, &tr.FirstSeen, &tr.LastSeen, &tr.AutoGenerated)
	tr.Severity = domain.Severity(severity)
	tr.Status = domain.TrendStatus(status)
	return tr, err
}

func (db *DB) GetTrend(ctx context.Context, id string) (domain.Trend, error) {
	tr, err := scanTrend(db.Pool.QueryRow(ctx, `SELECT `+trendColumns+` FROM trends WHERE id = $1`, id))
	return tr, notFound(err)
}

func (db *DB) ListActiveTrends(ctx context.Context) ([]domain.Trend, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+trendColumns+` FROM trends WHERE status IN ('open', 'monitoring') ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Trend{}
	for rows.Next() {
		tr, err := scanTrend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (db *DB) CreateTrend(ctx context.Context, tr *domain.Trend) error {
	if tr == nil {
		return fmt.Errorf("trend is nil")
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO trends (id, title, country, countries, event_type, severity, description, predictive_analysis,
			alert_ids, incident_count, status, first_seen, last_seen, auto_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, tr.ID, tr.Title, tr.Country, nonNil(tr.Countries), tr.EventType, string(tr.Severity), tr.Description,
		tr.PredictiveAnalysis, nonNil(tr.AlertIDs), tr.IncidentCount, string(tr.Status), tr.FirstSeen, tr.LastSeen,
		tr.AutoGenerated)
	return err
}

func (db *DB) UpdateTrend(ctx context.Context, tr domain.Trend) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE trends SET title = $2, country = $3, countries = $4, event_type = $5, severity = $6, description = $7,
			predictive_analysis = $8, alert_ids = $9, incident_count = $10, status = $11, last_seen = $12
		WHERE id = $1
	`, tr.ID, tr.Title, tr.Country, nonNil(tr.Countries), tr.EventType, string(tr.Severity), tr.Description,
		tr.PredictiveAnalysis, nonNil(tr.AlertIDs), tr.IncidentCount, string(tr.Status), tr.LastSeen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// nonNil keeps NOT NULL text[] columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
