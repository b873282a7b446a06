// Package server exposes the capture pipeline over a REST API.
package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/deskpulse/deskpulse/internal/audio"
	"github.com/deskpulse/deskpulse/internal/classifier"
	"github.com/deskpulse/deskpulse/internal/errlog"
	"github.com/deskpulse/deskpulse/internal/store"
)

// Streams is the live capture state the API reports on.
type Streams interface {
	IsVideoAvailable() bool
	IsAudioAvailable() bool
	Sources() []string
	MediaSources() []string
	Motion() int
	FrameJPEG(quality int) []byte
	AudioStatus() audio.BufferStatus
}

// Analyzer produces and recalls classification results.
type Analyzer interface {
	Current() (classifier.Result, bool)
	AnalyzeCurrent() (classifier.Result, bool)
}

// History reads persisted activities.
type History interface {
	Activities(start, end time.Time, limit, offset int) ([]store.Activity, error)
	LatestActivity() (store.Activity, bool, error)
	StatsForPeriod(period string) (store.Stats, error)
}

// Server handles the REST API.
type Server struct {
	streams  Streams
	analyzer Analyzer
	history  History
	errors   *errlog.Sink
}

// New creates a new server.
func New(streams Streams, analyzer Analyzer, history History, errors *errlog.Sink) *Server {
	return &Server{streams: streams, analyzer: analyzer, history: history, errors: errors}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/current-activity", s.handleCurrentActivity)
	mux.HandleFunc("POST /api/classify", s.handleClassify)
	mux.HandleFunc("GET /api/activities", s.handleActivities)
	mux.HandleFunc("GET /api/statistics", s.handleStatistics)

	mux.HandleFunc("GET /api/video-status", s.handleVideoStatus)
	mux.HandleFunc("GET /api/video-snapshot", s.handleVideoSnapshot)
	mux.HandleFunc("GET /api/audio-status", s.handleAudioStatus)

	mux.HandleFunc("GET /api/errors", s.handleErrors)
	mux.HandleFunc("GET /api/errors/stats", s.handleErrorStats)
	mux.HandleFunc("POST /api/errors/clear", s.handleErrorsClear)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleCurrentActivity returns the latest classification. Before the
// first in-memory cycle it falls back to the newest persisted row, then
// to an idle default.
func (s *Server) handleCurrentActivity(w http.ResponseWriter, r *http.Request) {
	result, ok := s.analyzer.Current()
	if !ok {
		if act, found, err := s.history.LatestActivity(); err == nil && found {
			result = classifier.Result{
				Type:       act.Type,
				Confidence: act.Confidence,
				Timestamp:  act.Timestamp,
				Duration:   act.Duration,
			}
			ok = true
		}
	}
	if !ok {
		result = classifier.Result{
			Type:       classifier.ActivityIdle,
			Confidence: 1.0,
			Timestamp:  time.Now(),
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleClassify forces an analysis cycle outside the regular cadence.
// A cycle with no synchronized data reports failure instead of a result.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	result, ok := s.analyzer.AnalyzeCurrent()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "no synchronized data available",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"activity": result,
	})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var start, end time.Time
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		end = t
	}
	limit := intParam(q.Get("limit"), 100)
	offset := intParam(q.Get("offset"), 0)

	activities, err := s.history.Activities(start, end, limit, offset)
	if err != nil {
		slog.Error("activity query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query activities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activities": activities,
		"count":      len(activities),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "day"
	}
	stats, err := s.history.StatsForPeriod(period)
	if err != nil {
		slog.Error("statistics query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	sources := s.streams.Sources()
	if sources == nil {
		sources = []string{}
	}
	media := s.streams.MediaSources()
	if media == nil {
		media = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":          s.streams.IsVideoAvailable(),
		"sources":         sources,
		"media_sources":   media,
		"motion_distance": s.streams.Motion(),
	})
}

// handleVideoSnapshot serves the current frame as JPEG, or a labeled
// placeholder when no frame is available.
func (s *Server) handleVideoSnapshot(w http.ResponseWriter, r *http.Request) {
	quality := intParam(r.URL.Query().Get("quality"), 85)

	data := s.streams.FrameJPEG(quality)
	if data == nil {
		data = placeholderJPEG()
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleAudioStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":        s.streams.IsAudioAvailable(),
		"buffer_status": s.streams.AudioStatus(),
	})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records := s.errors.Errors(intParam(q.Get("limit"), 50), intParam(q.Get("offset"), 0), q.Get("type"))
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": records,
		"count":  len(records),
		"types":  s.errors.Types(),
	})
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.errors.Stats())
}

func (s *Server) handleErrorsClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.errors.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

func intParam(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// placeholderJPEG renders a gray frame with a centered notice for
// clients polling the snapshot endpoint while video is down.
func placeholderJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 64, G: 64, B: 64, A: 255}}, image.Point{}, draw.Src)

	label := "No video available"
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(label)
	d.Dot = fixed.Point26_6{
		X: (fixed.I(640) - width) / 2,
		Y: fixed.I(240),
	}
	d.DrawString(label)

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}
