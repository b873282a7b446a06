// Package classifier turns synchronized frame/audio pairs into activity
// labels with a rule cascade over extracted features.
package classifier

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/deskpulse/deskpulse/internal/features"
	"github.com/deskpulse/deskpulse/internal/syncx"
)

// Source provides the synchronized pair the classifier analyzes.
type Source interface {
	SyncData() (image.Image, []float64, time.Time)
}

// Sink persists classification results.
type Sink interface {
	SaveActivity(result Result) error
}

// Result is one classification outcome. Metadata carries the feature
// values the decision was based on.
type Result struct {
	Type       string             `json:"type"`
	Confidence float64            `json:"confidence"`
	Timestamp  time.Time          `json:"timestamp"`
	Duration   float64            `json:"duration"`
	Metadata   map[string]float64 `json:"metadata,omitempty"`
}

// Activity labels produced by the cascade.
const (
	ActivityIdle        = "idle"
	ActivityReading     = "reading"
	ActivityWebBrowsing = "web-browsing"
	ActivityVideoMedia  = "video/media"
	ActivityVideoCall   = "video-call"
)

// Classifier runs the periodic analysis loop and keeps the latest
// result. Results below the confidence floor are kept in memory but
// not persisted.
type Classifier struct {
	source        Source
	sink          Sink
	interval      time.Duration
	minConfidence float64

	current syncx.Slot[Result]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a classifier over the given source. sink may be nil to
// disable persistence.
func New(source Source, sink Sink, interval time.Duration, minConfidence float64) *Classifier {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Classifier{
		source:        source,
		sink:          sink,
		interval:      interval,
		minConfidence: minConfidence,
	}
}

// Classify applies the rule cascade to one feature pair. Either input
// may be absent; both absent yields a low-confidence idle.
func Classify(video *features.Video, audio *features.Audio, ts time.Time) Result {
	result := Result{Type: ActivityIdle, Confidence: 0.6, Timestamp: ts}

	switch {
	case audio != nil && audio.Energy > 0.1:
		if audio.ZeroCrossingRate > 0.2 {
			result.Type = ActivityVideoCall
			result.Confidence = min(0.7+audio.Energy, 0.95)
		} else {
			result.Type = ActivityVideoMedia
			result.Confidence = min(0.65+audio.Energy, 0.9)
		}
	case video != nil:
		switch {
		case video.StdIntensity < 20:
			if video.MeanIntensity < 100 {
				result.Type = ActivityIdle
				result.Confidence = 0.8
			} else {
				result.Type = ActivityReading
				result.Confidence = 0.7
			}
		case video.StdIntensity > 50:
			result.Type = ActivityVideoMedia
			result.Confidence = 0.75
		default:
			result.Type = ActivityWebBrowsing
			result.Confidence = 0.65
		}
	}

	// Busy screen plus some audio outranks either rule alone.
	if video != nil && audio != nil && video.StdIntensity > 30 && audio.Energy > 0.05 {
		result.Type = ActivityVideoCall
		result.Confidence = 0.85
	}

	return result
}

// AnalyzeCurrent classifies the source's current snapshot, records the
// result, and persists it when confident enough. A cycle with no
// synchronized pair is skipped: nothing is published or persisted.
func (c *Classifier) AnalyzeCurrent() (Result, bool) {
	frame, samples, _ := c.source.SyncData()
	if frame == nil || len(samples) == 0 {
		slog.Debug("no synchronized data, skipping analysis cycle")
		return Result{}, false
	}

	var vf *features.Video
	if f, ok := features.ExtractVideo(frame); ok {
		vf = &f
	}
	var af *features.Audio
	if f, ok := features.ExtractAudio(samples); ok {
		af = &f
	}

	result := Classify(vf, af, time.Now())
	result.Metadata = featureMetadata(vf, af)
	c.current.Set(result)

	if c.sink != nil && result.Confidence >= c.minConfidence {
		if err := c.sink.SaveActivity(result); err != nil {
			slog.Error("failed to save activity", "error", err)
		}
	}

	slog.Info("activity classified",
		"type", result.Type,
		"confidence", result.Confidence)
	return result, true
}

// featureMetadata records the feature values behind a decision so the
// stored row can be audited later.
func featureMetadata(video *features.Video, audio *features.Audio) map[string]float64 {
	if video == nil && audio == nil {
		return nil
	}
	meta := map[string]float64{}
	if video != nil {
		meta["mean_intensity"] = video.MeanIntensity
		meta["std_intensity"] = video.StdIntensity
		meta["left_right_diff"] = video.LeftRightDiff
		meta["top_bottom_diff"] = video.TopBottomDiff
	}
	if audio != nil {
		meta["energy"] = audio.Energy
		meta["zero_crossing_rate"] = audio.ZeroCrossingRate
	}
	return meta
}

// Current returns the most recent result and whether one exists.
func (c *Classifier) Current() (Result, bool) {
	return c.current.Get()
}

// Start launches the periodic analysis loop.
func (c *Classifier) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		slog.Warn("classifier already running")
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.loop(c.stopCh, c.doneCh)

	slog.Info("activity analysis started", "interval", c.interval)
}

func (c *Classifier) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.analyzeSafely()
		}
	}
}

func (c *Classifier) analyzeSafely() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analysis panic", "panic", r)
			time.Sleep(5 * time.Second)
		}
	}()
	c.AnalyzeCurrent()
}

// Stop signals the loop and joins it with a bounded timeout. Idempotent.
func (c *Classifier) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	doneCh := c.doneCh
	c.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		slog.Warn("analysis loop did not stop in time")
	}
	slog.Info("activity analysis stopped")
}
