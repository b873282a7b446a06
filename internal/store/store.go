// Package store persists classified activities in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskpulse/deskpulse/internal/classifier"
)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	activity_type TEXT NOT NULL,
	confidence REAL NOT NULL,
	duration REAL NOT NULL DEFAULT 0,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON activities(timestamp);
CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
`

// Activity is one persisted classification row.
type Activity struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"activity_type"`
	Confidence float64   `json:"confidence"`
	Duration   float64   `json:"duration"`
	Metadata   string    `json:"metadata,omitempty"`
}

// TypeStats aggregates one activity type over a period.
type TypeStats struct {
	Count         int     `json:"count"`
	AvgDuration   float64 `json:"avg_duration"`
	TotalDuration float64 `json:"total_duration"`
}

// Stats is the aggregate view over a period.
type Stats struct {
	Period        string               `json:"period"`
	Since         time.Time            `json:"since"`
	Activities    map[string]TypeStats `json:"activities"`
	TotalCount    int                  `json:"total_count"`
	TotalDuration float64              `json:"total_duration"`
}

// Store wraps the activities database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The driver is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	slog.Info("activity database ready", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveActivity inserts one classification result. The full result is
// kept as JSON metadata alongside the indexed columns.
func (s *Store) SaveActivity(result classifier.Result) error {
	meta, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO activities (timestamp, activity_type, confidence, duration, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		result.Timestamp.UTC(), result.Type, result.Confidence, result.Duration, string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// Activities returns rows in the [start, end] window, newest first.
// Zero times leave that bound open.
func (s *Store) Activities(start, end time.Time, limit, offset int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, timestamp, activity_type, confidence, duration, COALESCE(metadata, '')
		FROM activities WHERE 1=1`
	args := []any{}
	if !start.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, end.UTC())
	}
	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Type, &a.Confidence, &a.Duration, &a.Metadata); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// LatestActivity returns the newest row, or ok=false when the table is
// empty.
func (s *Store) LatestActivity() (Activity, bool, error) {
	var a Activity
	err := s.db.QueryRow(
		`SELECT id, timestamp, activity_type, confidence, duration, COALESCE(metadata, '')
		 FROM activities ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&a.ID, &a.Timestamp, &a.Type, &a.Confidence, &a.Duration, &a.Metadata)
	if err == sql.ErrNoRows {
		return Activity{}, false, nil
	}
	if err != nil {
		return Activity{}, false, fmt.Errorf("query latest activity: %w", err)
	}
	return a, true, nil
}

// periodStart maps a period name to its window start. Unknown periods
// fall back to a day.
func periodStart(period string, now time.Time) time.Time {
	switch period {
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// StatsForPeriod aggregates counts and durations per activity type
// since the period start. period is one of day, week, month.
func (s *Store) StatsForPeriod(period string) (Stats, error) {
	if period != "day" && period != "week" && period != "month" {
		period = "day"
	}
	since := periodStart(period, time.Now())

	rows, err := s.db.Query(
		`SELECT activity_type, COUNT(*), AVG(duration), SUM(duration)
		 FROM activities WHERE timestamp >= ?
		 GROUP BY activity_type`,
		since.UTC(),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	stats := Stats{
		Period:     period,
		Since:      since,
		Activities: map[string]TypeStats{},
	}
	for rows.Next() {
		var typ string
		var ts TypeStats
		if err := rows.Scan(&typ, &ts.Count, &ts.AvgDuration, &ts.TotalDuration); err != nil {
			return Stats{}, fmt.Errorf("scan statistics: %w", err)
		}
		stats.Activities[typ] = ts
		stats.TotalCount += ts.Count
		stats.TotalDuration += ts.TotalDuration
	}
	return stats, rows.Err()
}
