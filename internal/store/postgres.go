package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/pipeline"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore persists sessions, patterns, recommendations, and business
// profiles. Raw tracking events live in ClickHouse (see ClickHouseStore).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if the database
// is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by the health endpoint to validate connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// --- SessionStore ---

const sessionColumns = `site_id, session_id, entry_page, exit_page, duration_seconds,
	page_count, bounced, converted, order_value, journey_path, started_at`

// SessionsInWindow returns a site's sessions started within [from, to).
func (p *PostgresStore) SessionsInWindow(ctx context.Context, siteID string, from, to time.Time) ([]models.Session, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE site_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at
	`, siteID, from, to)
	if err != nil {
		return nil, pipeline.Transient("query sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// SessionsForSites returns sessions across several sites within [from, to).
func (p *PostgresStore) SessionsForSites(ctx context.Context, siteIDs []string, from, to time.Time) ([]models.Session, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE site_id = ANY($1) AND started_at >= $2 AND started_at < $3
	`, siteIDs, from, to)
	if err != nil {
		return nil, pipeline.Transient("query sessions", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var (
			s        models.Session
			pathJSON []byte
		)
		if err := rows.Scan(
			&s.SiteID, &s.SessionID, &s.EntryPage, &s.ExitPage, &s.DurationSeconds,
			&s.PageCount, &s.Bounced, &s.Converted, &s.OrderValue, &pathJSON, &s.StartedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pathJSON, &s.JourneyPath); err != nil {
			return nil, fmt.Errorf("decode journey path for %s: %w", s.SessionID, err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// --- PatternStore ---

const insertPatternSQL = `
	INSERT INTO patterns (id, site_id, type, target, description, severity,
		session_count, confidence_score, metadata, window_start, detected_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (site_id, type, target, window_start) DO NOTHING
`

// InsertPatterns bulk-inserts detector output, skipping rows that duplicate
// an existing (site, type, target, window) detection.
func (p *PostgresStore) InsertPatterns(ctx context.Context, patterns []models.Pattern, windowStart time.Time) error {
	if len(patterns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pat := range patterns {
		args, err := patternArgs(pat, windowStart)
		if err != nil {
			return err
		}
		batch.Queue(insertPatternSQL, args...)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return pipeline.Transient("bulk insert patterns", err)
	}
	return nil
}

// InsertPattern is the single-row fallback used when a bulk write fails.
func (p *PostgresStore) InsertPattern(ctx context.Context, pattern models.Pattern, windowStart time.Time) error {
	args, err := patternArgs(pattern, windowStart)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, insertPatternSQL, args...); err != nil {
		return pipeline.Transient("insert pattern", err)
	}
	return nil
}

func patternArgs(pat models.Pattern, windowStart time.Time) ([]interface{}, error) {
	meta, err := json.Marshal(pat.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode pattern metadata: %w", err)
	}
	return []interface{}{
		pat.ID, pat.SiteID, string(pat.Type), pat.Metadata.Target(), pat.Description,
		pat.Severity, pat.SessionCount, pat.ConfidenceScore, meta, windowStart, pat.DetectedAt,
	}, nil
}

// PatternsBySite returns patterns detected within [from, to) with
// severity >= minSeverity, newest first.
func (p *PostgresStore) PatternsBySite(ctx context.Context, siteID string, from, to time.Time, minSeverity float64) ([]models.Pattern, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, site_id, type, description, severity, session_count,
			confidence_score, metadata, detected_at
		FROM patterns
		WHERE site_id = $1 AND detected_at >= $2 AND detected_at < $3 AND severity >= $4
		ORDER BY detected_at DESC
	`, siteID, from, to, minSeverity)
	if err != nil {
		return nil, pipeline.Transient("query patterns", err)
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		var (
			pat      models.Pattern
			typeStr  string
			metaJSON []byte
		)
		if err := rows.Scan(
			&pat.ID, &pat.SiteID, &typeStr, &pat.Description, &pat.Severity,
			&pat.SessionCount, &pat.ConfidenceScore, &metaJSON, &pat.DetectedAt,
		); err != nil {
			return nil, err
		}
		pat.Type = models.PatternType(typeStr)
		meta, err := models.UnmarshalPatternMetadata(pat.Type, metaJSON)
		if err != nil {
			return nil, fmt.Errorf("decode metadata for pattern %s: %w", pat.ID, err)
		}
		pat.Metadata = meta
		patterns = append(patterns, pat)
	}
	return patterns, rows.Err()
}

// --- RecommendationStore ---

const recommendationColumns = `id, business_id, template_key, target, title, problem, steps,
	expected_impact, impact_level, confidence_level, peer_insight, status, notes,
	created_at, implemented_at, dismissed_at`

// CreateRecommendation inserts rec unless an unaddressed NEW recommendation
// with the same (business, template, target) exists. RETURNING 1 produces no
// rows on conflict, which signals the duplicate.
func (p *PostgresStore) CreateRecommendation(ctx context.Context, rec models.Recommendation) (bool, error) {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return false, fmt.Errorf("encode steps: %w", err)
	}

	var one int
	err = p.pool.QueryRow(ctx, `
		INSERT INTO recommendations (`+recommendationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (business_id, template_key, target) WHERE status = 'NEW' DO NOTHING
		RETURNING 1
	`, rec.ID, rec.BusinessID, rec.TemplateKey, rec.Target, rec.Title, rec.Problem, steps,
		rec.ExpectedImpact, string(rec.ImpactLevel), string(rec.ConfidenceLevel),
		rec.PeerInsight, string(rec.Status), rec.Notes,
		rec.CreatedAt, rec.ImplementedAt, rec.DismissedAt,
	).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, pipeline.Transient("insert recommendation", err)
}

// ListRecommendations returns a business's recommendations matching the
// filter, newest first. Display ranking is applied by the caller.
func (p *PostgresStore) ListRecommendations(ctx context.Context, businessID string, f RecommendationFilter) ([]models.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE business_id = $1`
	args := []interface{}{businessID}

	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Impact != "" {
		args = append(args, string(f.Impact))
		query += fmt.Sprintf(" AND impact_level = $%d", len(args))
	}
	if f.Confidence != "" {
		args = append(args, string(f.Confidence))
		query += fmt.Sprintf(" AND confidence_level = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pipeline.Transient("query recommendations", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetRecommendation fetches one recommendation scoped to its owner. A
// non-owner probing an existing ID gets ErrNotFound, same as a missing row.
func (p *PostgresStore) GetRecommendation(ctx context.Context, businessID, id string) (models.Recommendation, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+recommendationColumns+`
		FROM recommendations
		WHERE id = $1 AND business_id = $2
	`, id, businessID)

	rec, err := scanRecommendation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recommendation{}, pipeline.ErrNotFound
	}
	if err != nil {
		return models.Recommendation{}, pipeline.Transient("query recommendation", err)
	}
	return rec, nil
}

// UpdateRecommendationStatus persists a lifecycle transition. The WHERE
// clause re-checks ownership so a stale caller cannot cross businesses.
func (p *PostgresStore) UpdateRecommendationStatus(ctx context.Context, businessID string, rec models.Recommendation) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE recommendations
		SET status = $3, notes = $4, implemented_at = $5, dismissed_at = $6
		WHERE id = $1 AND business_id = $2
	`, rec.ID, businessID, string(rec.Status), rec.Notes, rec.ImplementedAt, rec.DismissedAt)
	if err != nil {
		return pipeline.Transient("update recommendation", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}

// PeerImplementationStats reports how many of the given businesses
// implemented a recommendation from templateKey, and their average relative
// conversion improvement (percent) comparing 30 days before and after
// implementation.
func (p *PostgresStore) PeerImplementationStats(ctx context.Context, businessIDs []string, templateKey string) (int, float64, error) {
	if len(businessIDs) == 0 {
		return 0, 0, nil
	}

	var (
		count       int
		improvement float64
	)
	err := p.pool.QueryRow(ctx, `
		WITH impl AS (
			SELECT r.business_id, b.site_id, MIN(r.implemented_at) AS implemented_at
			FROM recommendations r
			JOIN businesses b ON b.id = r.business_id
			WHERE r.business_id = ANY($1)
			  AND r.template_key = $2
			  AND r.status = 'IMPLEMENTED'
			  AND r.implemented_at IS NOT NULL
			GROUP BY r.business_id, b.site_id
		), rates AS (
			SELECT i.business_id,
				AVG(CASE WHEN s.started_at <  i.implemented_at THEN s.converted::int END) AS before_rate,
				AVG(CASE WHEN s.started_at >= i.implemented_at THEN s.converted::int END) AS after_rate
			FROM impl i
			JOIN sessions s ON s.site_id = i.site_id
				AND s.started_at >= i.implemented_at - INTERVAL '30 days'
				AND s.started_at <  i.implemented_at + INTERVAL '30 days'
			GROUP BY i.business_id
		)
		SELECT
			(SELECT COUNT(*) FROM impl),
			COALESCE((
				SELECT AVG((after_rate - before_rate) / NULLIF(before_rate, 0) * 100)
				FROM rates
				WHERE before_rate IS NOT NULL AND after_rate IS NOT NULL
			), 0)
	`, businessIDs, templateKey).Scan(&count, &improvement)
	if err != nil {
		return 0, 0, pipeline.Transient("query peer implementations", err)
	}
	return count, improvement, nil
}

func scanRecommendation(row pgx.Row) (models.Recommendation, error) {
	var (
		rec                 models.Recommendation
		stepsJSON           []byte
		impact, conf, state string
	)
	err := row.Scan(
		&rec.ID, &rec.BusinessID, &rec.TemplateKey, &rec.Target, &rec.Title, &rec.Problem,
		&stepsJSON, &rec.ExpectedImpact, &impact, &conf, &rec.PeerInsight, &state,
		&rec.Notes, &rec.CreatedAt, &rec.ImplementedAt, &rec.DismissedAt,
	)
	if err != nil {
		return models.Recommendation{}, err
	}
	if err := json.Unmarshal(stepsJSON, &rec.Steps); err != nil {
		return models.Recommendation{}, fmt.Errorf("decode steps for %s: %w", rec.ID, err)
	}
	rec.ImpactLevel = models.Level(impact)
	rec.ConfidenceLevel = models.Level(conf)
	rec.Status = models.RecStatus(state)
	return rec, nil
}

// --- BusinessStore ---

const businessColumns = `id, site_id, name, industry, revenue_range, product_types, platform, peer_group_id`

// GetBusiness fetches a business profile by ID.
func (p *PostgresStore) GetBusiness(ctx context.Context, id string) (models.Business, error) {
	return p.businessBy(ctx, "id", id)
}

// BusinessBySite fetches the business owning a site.
func (p *PostgresStore) BusinessBySite(ctx context.Context, siteID string) (models.Business, error) {
	return p.businessBy(ctx, "site_id", siteID)
}

func (p *PostgresStore) businessBy(ctx context.Context, column, value string) (models.Business, error) {
	var b models.Business
	err := p.pool.QueryRow(ctx, `
		SELECT `+businessColumns+` FROM businesses WHERE `+column+` = $1
	`, value).Scan(&b.ID, &b.SiteID, &b.Name, &b.Industry, &b.RevenueRange, &b.ProductTypes, &b.Platform, &b.PeerGroupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Business{}, pipeline.ErrNotFound
	}
	if err != nil {
		return models.Business{}, pipeline.Transient("query business", err)
	}
	return b, nil
}

// ListBusinesses returns every business profile, the peer-matching candidate
// pool.
func (p *PostgresStore) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY id`)
	if err != nil {
		return nil, pipeline.Transient("query businesses", err)
	}
	defer rows.Close()

	var businesses []models.Business
	for rows.Next() {
		var b models.Business
		if err := rows.Scan(&b.ID, &b.SiteID, &b.Name, &b.Industry, &b.RevenueRange,
			&b.ProductTypes, &b.Platform, &b.PeerGroupID); err != nil {
			return nil, err
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}

// ListSiteIDs returns every site with a business attached.
func (p *PostgresStore) ListSiteIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT site_id FROM businesses ORDER BY site_id`)
	if err != nil {
		return nil, pipeline.Transient("query site ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPeerGroup records the peer group a business was assigned to.
func (p *PostgresStore) SetPeerGroup(ctx context.Context, businessID, peerGroupID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE businesses SET peer_group_id = $2 WHERE id = $1
	`, businessID, peerGroupID)
	if err != nil {
		return pipeline.Transient("update peer group", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrNotFound
	}
	return nil
}
