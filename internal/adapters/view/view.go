// Package view is the query-side store: an embedded SQL database holding
// the win-probability history and per-bucket contribution rollups that the
// read operations serve.
package view

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

const watermarkKey = "contrib_watermark"

// schema is executed statement by statement at open.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS winprob_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gid TEXT NOT NULL,
		ts INTEGER NOT NULL,
		p_win REAL NOT NULL,
		raw REAL NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_winprob_points_gid_ts ON winprob_points (gid, ts)`,
	`CREATE TABLE IF NOT EXISTS contributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gid TEXT NOT NULL,
		ts INTEGER NOT NULL,
		bucket TEXT NOT NULL,
		total REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contributions_gid_bucket ON contributions (gid, bucket)`,
	`CREATE TABLE IF NOT EXISTS feature_impact (
		bucket TEXT PRIMARY KEY,
		total REAL NOT NULL,
		points INTEGER NOT NULL,
		refreshed_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS view_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
}

// BucketImpact is one aggregated row of the contribution rollup.
type BucketImpact struct {
	Bucket string  `json:"bucket"`
	Total  float64 `json:"total"`
	Points int     `json:"points"`
}

// Option applies a configuration option to the View.
type Option func(*View)

// WithPath sets the database file backing the view.
func WithPath(path string) Option {
	return func(v *View) {
		if path != "" {
			v.path = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(v *View) {
		if log != nil {
			v.log = log
		}
	}
}

// View wraps the embedded SQL database. The feature_impact table is a
// materialized rollup of contributions; Refresh rebuilds it and skips the
// rebuild entirely when no contribution rows arrived since the last one.
type View struct {
	log  logger.Logger
	path string
	db   *sql.DB
}

// Open opens or creates the view database and ensures the schema.
func Open(opts ...Option) (*View, error) {
	v := &View{}

	// Apply all options
	for _, opt := range opts {
		opt(v)
	}

	if v.log == nil {
		v.log = logger.Get().Named("view")
	}
	if v.path == "" {
		return nil, fmt.Errorf("%w: no path", ErrOpenFailed)
	}

	dsn := v.path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrOpenFailed, err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: schema: %v", ErrOpenFailed, err)
		}
	}

	v.db = db
	v.log.Info(context.Background(), "view opened", logger.String("path", v.path))
	return v, nil
}

// Close closes the database.
func (v *View) Close() error {
	if err := v.db.Close(); err != nil {
		return fmt.Errorf("close view: %w", err)
	}
	return nil
}

// InsertPoint records one smoothed message: a history point plus one
// contribution row per bucket, atomically.
func (v *View) InsertPoint(ctx context.Context, msg model.WinProbMessage) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin point insert: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: rollback point insert: %v", cause, rbErr)
		}
		return cause
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO winprob_points (gid, ts, p_win, raw, created_at)
VALUES (?, ?, ?, ?, ?)
`, msg.GID, msg.TS, msg.PWin, msg.Explain.Raw, time.Now().UTC().UnixMilli())
	if err != nil {
		return rollbackWith(fmt.Errorf("insert point: %w", err))
	}

	for bucket, total := range msg.Explain.Buckets {
		_, err = tx.ExecContext(ctx, `
INSERT INTO contributions (gid, ts, bucket, total)
VALUES (?, ?, ?, ?)
`, msg.GID, msg.TS, bucket, total)
		if err != nil {
			return rollbackWith(fmt.Errorf("insert contribution: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit point insert: %w", err)
	}
	metrics.RecordViewInsert()
	return nil
}

// Refresh rebuilds the feature_impact rollup. When no contribution rows
// arrived since the previous refresh the rebuild is skipped.
func (v *View) Refresh(ctx context.Context) error {
	started := time.Now()

	var maxID int64
	if err := v.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM contributions`).Scan(&maxID); err != nil {
		return fmt.Errorf("read contribution watermark: %w", err)
	}

	var watermark int64
	err := v.db.QueryRowContext(ctx, `SELECT value FROM view_meta WHERE key = ?`, watermarkKey).Scan(&watermark)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read stored watermark: %w", err)
	}
	if maxID == watermark {
		metrics.RecordViewRefreshSkipped()
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: rollback refresh: %v", cause, rbErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM feature_impact`); err != nil {
		return rollbackWith(fmt.Errorf("clear rollup: %w", err))
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO feature_impact (bucket, total, points, refreshed_at)
SELECT bucket, SUM(total), COUNT(*), ?
FROM contributions
GROUP BY bucket
`, time.Now().UTC().UnixMilli())
	if err != nil {
		return rollbackWith(fmt.Errorf("rebuild rollup: %w", err))
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO view_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, watermarkKey, maxID)
	if err != nil {
		return rollbackWith(fmt.Errorf("store watermark: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh: %w", err)
	}

	metrics.RecordViewRefresh()
	metrics.RecordViewRefreshDuration(float64(time.Since(started)) / float64(time.Millisecond))
	v.log.Debug(ctx, "rollup refreshed", logger.Int64("watermark", maxID))
	return nil
}

// History returns every point recorded for a contest at or after since, in
// ascending time order. A since of 0 returns the full history.
func (v *View) History(ctx context.Context, gid string, since int64) ([]model.HistoryPoint, error) {
	started := time.Now()

	rows, err := v.db.QueryContext(ctx, `
SELECT ts, p_win FROM winprob_points
WHERE gid = ? AND ts >= ?
ORDER BY ts ASC, id ASC
`, gid, since)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var points []model.HistoryPoint
	for rows.Next() {
		var p model.HistoryPoint
		if err := rows.Scan(&p.TS, &p.PWin); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	metrics.RecordViewQueryLatency(float64(time.Since(started)) / float64(time.Millisecond))
	return points, nil
}

// TopContributions returns the k buckets with the largest absolute
// contribution totals for a contest.
func (v *View) TopContributions(ctx context.Context, gid string, k int) ([]BucketImpact, error) {
	started := time.Now()
	if k <= 0 {
		return nil, nil
	}

	rows, err := v.db.QueryContext(ctx, `
SELECT bucket, SUM(total) AS total, COUNT(*) AS points
FROM contributions
WHERE gid = ?
GROUP BY bucket
ORDER BY ABS(SUM(total)) DESC, bucket ASC
LIMIT ?
`, gid, k)
	if err != nil {
		return nil, fmt.Errorf("query top contributions: %w", err)
	}
	defer rows.Close()

	impacts := make([]BucketImpact, 0, k)
	for rows.Next() {
		var b BucketImpact
		if err := rows.Scan(&b.Bucket, &b.Total, &b.Points); err != nil {
			return nil, fmt.Errorf("scan contribution row: %w", err)
		}
		impacts = append(impacts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contribution rows: %w", err)
	}

	metrics.RecordViewQueryLatency(float64(time.Since(started)) / float64(time.Millisecond))
	return impacts, nil
}

// FeatureImpact returns the materialized cross-contest rollup ordered by
// absolute total.
func (v *View) FeatureImpact(ctx context.Context) ([]BucketImpact, error) {
	rows, err := v.db.QueryContext(ctx, `
SELECT bucket, total, points
FROM feature_impact
ORDER BY ABS(total) DESC, bucket ASC
`)
	if err != nil {
		return nil, fmt.Errorf("query rollup: %w", err)
	}
	defer rows.Close()

	var impacts []BucketImpact
	for rows.Next() {
		var b BucketImpact
		if err := rows.Scan(&b.Bucket, &b.Total, &b.Points); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		impacts = append(impacts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollup rows: %w", err)
	}
	return impacts, nil
}

// Stats reports how many points and distinct contests the view holds.
func (v *View) Stats(ctx context.Context) (points int, contests int, err error) {
	err = v.db.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(DISTINCT gid) FROM winprob_points
`).Scan(&points, &contests)
	if err != nil {
		return 0, 0, fmt.Errorf("query stats: %w", err)
	}
	return points, contests, nil
}
