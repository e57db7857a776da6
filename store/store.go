// Package store is the SQL client: connection lifecycle plus the two
// parameterized upserts into videos and analyses.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	doomdb "github.com/scrollsafe/doomscroller/db"
	"github.com/scrollsafe/doomscroller/model"
)

// Store wraps a pooled SQL connection.
type Store struct {
	conn *sql.DB
}

// Open connects to databaseURL (lazily, per database/sql convention) and
// verifies connectivity with a bounded ping.
func Open(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{conn: conn}, nil
}

// New wraps an already-opened *sql.DB, used by tests with go-sqlmock.
func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ApplySchema executes the embedded schema.sql, mirroring
// scripts/apply_schema.py. It's idempotent (CREATE TABLE IF NOT EXISTS).
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, doomdb.Schema()); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// upsertVideoSQL preserves existing non-null metadata via COALESCE and
// always refreshes last_seen_at.
const upsertVideoSQL = `
INSERT INTO videos (platform, video_id, first_seen_at, last_seen_at, title, channel, published_at, region, source_url, views_per_hour)
VALUES ($1, $2, now(), now(), $3, $4, $5, $6, $7, $8)
ON CONFLICT (platform, video_id) DO UPDATE SET
	last_seen_at   = now(),
	title          = COALESCE(EXCLUDED.title, videos.title),
	channel        = COALESCE(EXCLUDED.channel, videos.channel),
	published_at   = COALESCE(EXCLUDED.published_at, videos.published_at),
	region         = COALESCE(EXCLUDED.region, videos.region),
	source_url     = COALESCE(EXCLUDED.source_url, videos.source_url),
	views_per_hour = COALESCE(EXCLUDED.views_per_hour, videos.views_per_hour)
`

// upsertAnalysisSQL fully replaces the non-key analysis columns on conflict.
const upsertAnalysisSQL = `
INSERT INTO analyses (platform, video_id, analyzed_at, label, confidence, reason, features, model_version, frame_policy, batch_time_ms, frames_count, source_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (platform, video_id) DO UPDATE SET
	analyzed_at   = EXCLUDED.analyzed_at,
	label         = EXCLUDED.label,
	confidence    = EXCLUDED.confidence,
	reason        = EXCLUDED.reason,
	features      = EXCLUDED.features,
	model_version = EXCLUDED.model_version,
	frame_policy  = EXCLUDED.frame_policy,
	batch_time_ms = EXCLUDED.batch_time_ms,
	frames_count  = EXCLUDED.frames_count,
	source_url    = EXCLUDED.source_url
`

// UpsertAnalysis runs both upserts inside a single transaction so a video
// row and its analysis row never diverge on partial failure.
func (s *Store) UpsertAnalysis(ctx context.Context, rec model.AnalysisRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, upsertVideoSQL,
		rec.Platform, rec.VideoID, rec.Title, rec.Channel, rec.PublishedAt, rec.Region,
		rec.SourceURL, rec.ViewsPerHour,
	); err != nil {
		return fmt.Errorf("upserting video: %w", err)
	}

	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("marshaling features: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertAnalysisSQL,
		rec.Platform, rec.VideoID, rec.AnalyzedAt, string(rec.Label), rec.Confidence, rec.Reason,
		featuresJSON, rec.ModelVersion, rec.FramePolicy, rec.BatchTimeMs, rec.FramesCount, rec.SourceURL,
	); err != nil {
		return fmt.Errorf("upserting analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
