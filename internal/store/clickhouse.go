package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/pipeline"
)

// eventsDDL bootstraps the tracking-event table. ReplacingMergeTree keyed on
// event_id collapses the duplicates the at-least-once buffer contract allows;
// the TTL enforces the bounded retention window for raw telemetry.
const eventsDDL = `
CREATE TABLE IF NOT EXISTS tracking_events (
	event_id   String,
	site_id    String,
	session_id String,
	event_type LowCardinality(String),
	ts         DateTime64(3),
	payload    String
) ENGINE = ReplacingMergeTree()
ORDER BY (site_id, ts, event_id)
TTL toDateTime(ts) + INTERVAL 90 DAY
`

// ClickHouseConfig holds connection settings for the event store.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore is the time-series store for raw tracking events.
type ClickHouseStore struct {
	conn clickhouse.Conn
}

// NewClickHouseStore opens a native-protocol connection and fails fast if
// ClickHouse is unreachable.
func NewClickHouseStore(cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// EnsureSchema creates the events table. Safe to run multiple times.
func (c *ClickHouseStore) EnsureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.conn.Exec(ctx, eventsDDL)
}

// Ping is used by the health endpoint to validate connectivity.
func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close shuts down the connection.
func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}

// InsertEvents performs one bulk write for the batch. A failure leaves no
// partial state the caller needs to reason about: the buffer re-queues the
// whole batch and retries.
func (c *ClickHouseStore) InsertEvents(ctx context.Context, events []models.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO tracking_events (event_id, site_id, session_id, event_type, ts, payload)
	`)
	if err != nil {
		return pipeline.Transient("prepare event batch", err)
	}

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for event %s: %w", e.EventID, err)
		}
		if err := batch.Append(
			e.EventID,
			e.SiteID,
			e.SessionID,
			string(e.Type),
			time.UnixMilli(e.TimestampMs).UTC(),
			string(payload),
		); err != nil {
			return pipeline.Transient("append event to batch", err)
		}
	}

	if err := batch.Send(); err != nil {
		return pipeline.Transient("send event batch", err)
	}
	return nil
}

// FormEvents returns a site's form-interaction events within [from, to),
// ordered by timestamp. The hesitation detector groups these by
// (session, field).
func (c *ClickHouseStore) FormEvents(ctx context.Context, siteID string, from, to time.Time) ([]models.TrackingEvent, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT event_id, site_id, session_id, event_type, ts, payload
		FROM tracking_events
		WHERE site_id = ? AND event_type = ? AND ts >= ? AND ts < ?
		ORDER BY ts
	`, siteID, string(models.EventForm), from, to)
	if err != nil {
		return nil, pipeline.Transient("query form events", err)
	}
	defer rows.Close()

	var events []models.TrackingEvent
	for rows.Next() {
		var (
			e         models.TrackingEvent
			eventType string
			ts        time.Time
			payload   string
		)
		if err := rows.Scan(&e.EventID, &e.SiteID, &e.SessionID, &eventType, &ts, &payload); err != nil {
			return nil, err
		}
		e.Type = models.EventType(eventType)
		e.TimestampMs = ts.UnixMilli()
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode payload for event %s: %w", e.EventID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
