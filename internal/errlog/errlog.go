// Package errlog keeps a bounded, newest-first record of runtime
// errors, persisted as a JSON file across restarts.
package errlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one captured error.
type Record struct {
	ID      string            `json:"id"`
	Time    time.Time         `json:"timestamp"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// Stats summarizes the current records.
type Stats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	ByDay  map[string]int `json:"by_day"`
}

// Sink is the bounded error store. Oldest records are evicted once the
// cap is reached.
type Sink struct {
	path string
	max  int

	mu      sync.Mutex
	records []Record // newest first
}

// NewSink loads existing records from path (missing or corrupt files
// start empty). path may be empty to disable persistence.
func NewSink(path string, max int) *Sink {
	if max <= 0 {
		max = 100
	}
	s := &Sink{path: path, max: max}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, &s.records); err != nil {
				slog.Warn("error log unreadable, starting empty", "path", path, "error", err)
				s.records = nil
			}
		}
		if len(s.records) > max {
			s.records = s.records[:max]
		}
	}
	return s
}

// Log records an error by type and message with optional context.
func (s *Sink) Log(errType, message string, context map[string]string) Record {
	rec := Record{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Type:    errType,
		Message: message,
		Context: context,
	}

	s.mu.Lock()
	s.records = append([]Record{rec}, s.records...)
	if len(s.records) > s.max {
		s.records = s.records[:s.max]
	}
	s.persistLocked()
	s.mu.Unlock()

	slog.Error("error recorded", "type", errType, "message", message)
	return rec
}

// LogError records a Go error under the given type.
func (s *Sink) LogError(errType string, err error, context map[string]string) Record {
	return s.Log(errType, err.Error(), context)
}

// Errors returns records newest first, optionally filtered by type.
func (s *Sink) Errors(limit, offset int, errType string) []Record {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.records
	if errType != "" {
		filtered = nil
		for _, r := range s.records {
			if r.Type == errType {
				filtered = append(filtered, r)
			}
		}
	}

	if offset >= len(filtered) {
		return []Record{}
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	out := make([]Record, end-offset)
	copy(out, filtered[offset:end])
	return out
}

// Types returns the distinct error types currently recorded.
func (s *Sink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	types := []string{}
	for _, r := range s.records {
		if !seen[r.Type] {
			seen[r.Type] = true
			types = append(types, r.Type)
		}
	}
	return types
}

// Stats counts records by type and by calendar day.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Total:  len(s.records),
		ByType: map[string]int{},
		ByDay:  map[string]int{},
	}
	for _, r := range s.records {
		stats.ByType[r.Type]++
		stats.ByDay[r.Time.Format("2006-01-02")]++
	}
	return stats
}

// Clear drops all records and rewrites the file.
func (s *Sink) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = nil
	s.persistLocked()
	return n
}

func (s *Sink) persistLocked() {
	if s.path == "" {
		return
	}
	records := s.records
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		slog.Error("error log encode failed", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Error("error log write failed", "path", s.path, "error", err)
	}
}
