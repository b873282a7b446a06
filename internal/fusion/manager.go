// Package fusion pairs the latest frame and audio window into one
// atomically published snapshot.
package fusion

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/deskpulse/deskpulse/internal/audio"
	"github.com/deskpulse/deskpulse/internal/stream"
	"github.com/deskpulse/deskpulse/internal/syncx"
)

// VideoSource is the frame producer the manager coordinates.
type VideoSource interface {
	StartContinuous(source string, interval time.Duration) error
	Stop()
	CurrentFrame() (image.Image, time.Time, bool)
	Sources() []string
	MediaSources() []string
}

// AudioSource is the sample producer the manager coordinates.
type AudioSource interface {
	Start() error
	Stop()
	Latest(window time.Duration) []int16
	Status() audio.BufferStatus
}

// Snapshot is the current synchronized pair. Frame, audio, and
// timestamp are always replaced together.
type Snapshot struct {
	Frame  image.Image
	Audio  []float64
	Time   time.Time
	Motion int // perceptual hash distance from the previous snapshot frame
}

// Options configure the sync cadence.
type Options struct {
	SyncInterval  time.Duration
	VideoInterval time.Duration
	AudioWindow   time.Duration
	VideoSource   string // empty = first discovered source
}

func (o Options) withDefaults() Options {
	if o.SyncInterval <= 0 {
		o.SyncInterval = 50 * time.Millisecond
	}
	if o.VideoInterval <= 0 {
		o.VideoInterval = 100 * time.Millisecond
	}
	if o.AudioWindow <= 0 {
		o.AudioWindow = 500 * time.Millisecond
	}
	return o
}

// Manager runs the fixed-period sync loop. A tick with both modalities
// present processes and publishes them as one snapshot; a tick with
// either missing is skipped, leaving the previous snapshot visible.
type Manager struct {
	video VideoSource
	audio AudioSource
	proc  *stream.Processor
	opts  Options

	snap syncx.Slot[Snapshot]

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastHash *goimagehash.ImageHash
}

// NewManager wires the two sources and the processor together.
func NewManager(video VideoSource, audio AudioSource, proc *stream.Processor, opts Options) *Manager {
	return &Manager{video: video, audio: audio, proc: proc, opts: opts.withDefaults()}
}

// Start launches the audio device, continuous video capture, and the
// sync loop. A missing video source is logged and tolerated.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		slog.Warn("sync manager already running")
		return nil
	}

	if err := m.audio.Start(); err != nil {
		slog.Warn("audio capture unavailable", "error", err)
	}
	if err := m.video.StartContinuous(m.opts.VideoSource, m.opts.VideoInterval); err != nil {
		slog.Warn("no video source available, video capture disabled", "error", err)
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.syncLoop(m.stopCh, m.doneCh)

	slog.Info("synchronized capture started", "interval", m.opts.SyncInterval)
	return nil
}

func (m *Manager) syncLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick reads both sources and, when both have data, publishes one
// processed snapshot. Panics stay inside the iteration.
func (m *Manager) tick() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync tick panic", "panic", r)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	frame, _, okFrame := m.video.CurrentFrame()
	samples := m.audio.Latest(m.opts.AudioWindow)
	if !okFrame || len(samples) == 0 {
		return
	}

	processed := m.proc.Video(frame)
	normalized := m.proc.Audio(samples)
	if processed == nil || normalized == nil {
		return
	}

	m.snap.Set(Snapshot{
		Frame:  processed,
		Audio:  normalized,
		Time:   time.Now(),
		Motion: m.motionDistance(processed),
	})
}

// motionDistance compares the frame's perceptual hash to the previous
// snapshot's; 0 on the first frame or on hash failure.
func (m *Manager) motionDistance(frame image.Image) int {
	hash, err := goimagehash.PerceptionHash(frame)
	if err != nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.lastHash
	m.lastHash = hash
	if prev == nil {
		return 0
	}
	dist, err := prev.Distance(hash)
	if err != nil {
		return 0
	}
	return dist
}

// Stop signals the loop, joins it with a bounded timeout, then stops
// both sources. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		slog.Warn("sync loop did not stop in time")
	}

	m.audio.Stop()
	m.video.Stop()
	slog.Info("synchronized capture stopped")
}

// SyncData returns the current snapshot, or (nil, nil, zero) when no
// complete pair has been published yet.
func (m *Manager) SyncData() (image.Image, []float64, time.Time) {
	snap, ok := m.snap.Get()
	if !ok {
		return nil, nil, time.Time{}
	}
	return snap.Frame, snap.Audio, snap.Time
}

// CurrentFrame prefers the live source's freshest frame, falling back
// to the synchronized one.
func (m *Manager) CurrentFrame() image.Image {
	if frame, _, ok := m.video.CurrentFrame(); ok {
		return frame
	}
	if snap, ok := m.snap.Get(); ok {
		return snap.Frame
	}
	return nil
}

// IsVideoAvailable reports whether any frame can currently be served.
func (m *Manager) IsVideoAvailable() bool {
	return m.CurrentFrame() != nil
}

// IsAudioAvailable reports whether synchronized audio exists.
func (m *Manager) IsAudioAvailable() bool {
	snap, ok := m.snap.Get()
	return ok && len(snap.Audio) > 0
}

// Motion returns the latest inter-frame perceptual hash distance.
func (m *Manager) Motion() int {
	snap, _ := m.snap.Get()
	return snap.Motion
}

// Sources passes through the video source list for the status API.
func (m *Manager) Sources() []string { return m.video.Sources() }

// MediaSources passes through the discovered media inputs.
func (m *Manager) MediaSources() []string { return m.video.MediaSources() }

// AudioStatus passes through the audio buffer state.
func (m *Manager) AudioStatus() audio.BufferStatus { return m.audio.Status() }

// FrameJPEG encodes the current frame at the given quality, or nil
// when no frame is available.
func (m *Manager) FrameJPEG(quality int) []byte {
	frame := m.CurrentFrame()
	if frame == nil {
		return nil
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		slog.Error("frame encode failed", "error", err)
		return nil
	}
	return buf.Bytes()
}
