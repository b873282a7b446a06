// Package video polls the capture backend for still frames.
package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // frame decoder
	_ "image/png"  // frame decoder
	"log/slog"
	"sync"
	"time"

	"github.com/deskpulse/deskpulse/internal/obs"
	"github.com/deskpulse/deskpulse/internal/syncx"
)

// Backend is the slice of the capture backend the video source needs.
type Backend interface {
	Inputs(ctx context.Context) ([]obs.Input, error)
	SourcesLegacy(ctx context.Context) ([]obs.Input, error)
	Screenshot(ctx context.Context, source, format string, width, height, quality int) ([]byte, error)
	Connected() bool
}

var (
	videoKinds = map[string]bool{"dshow_input": true, "v4l2_input": true}
	mediaKinds = map[string]bool{"ffmpeg_source": true, "vlc_source": true}
)

// Frame is a decoded still plus its capture time.
type Frame struct {
	Image image.Image
	Time  time.Time
}

// Capturer owns the "latest frame" slot and the continuous capture loop.
type Capturer struct {
	backend Backend
	width   int
	height  int
	quality int

	sources      []string
	mediaSources []string

	frame syncx.Slot[Frame]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCapturer discovers available sources and returns a capturer.
// Discovery failure is not fatal: capture stays disabled and reads
// return empty until the backend comes back.
func NewCapturer(ctx context.Context, backend Backend, width, height int) *Capturer {
	c := &Capturer{backend: backend, width: width, height: height, quality: 75}
	if backend != nil && backend.Connected() {
		c.discover(ctx)
	}
	return c
}

// discover queries the legacy source list first, then the newer input
// list for backends that dropped it.
func (c *Capturer) discover(ctx context.Context) {
	inputs, err := c.backend.SourcesLegacy(ctx)
	if err != nil {
		slog.Debug("legacy source query failed, trying input list", "error", err)
		inputs, err = c.backend.Inputs(ctx)
	}
	if err != nil {
		slog.Warn("source discovery failed, video capture disabled", "error", err)
		return
	}

	for _, in := range inputs {
		switch {
		case videoKinds[in.Kind]:
			c.sources = append(c.sources, in.Name)
		case mediaKinds[in.Kind]:
			c.mediaSources = append(c.mediaSources, in.Name)
		}
	}
	slog.Info("discovered capture sources", "video", c.sources, "media", c.mediaSources)
}

// Sources returns the discovered video-capable source names.
func (c *Capturer) Sources() []string { return c.sources }

// MediaSources returns the discovered media source names.
func (c *Capturer) MediaSources() []string { return c.mediaSources }

// resolveSource falls back to the first discovered video source.
func (c *Capturer) resolveSource(source string) (string, error) {
	if source != "" {
		return source, nil
	}
	if len(c.sources) == 0 {
		return "", fmt.Errorf("no video source available")
	}
	return c.sources[0], nil
}

// CaptureFrame requests one screenshot, decodes it, and replaces the
// current frame.
func (c *Capturer) CaptureFrame(ctx context.Context, source string) (image.Image, error) {
	if c.backend == nil || !c.backend.Connected() {
		return nil, fmt.Errorf("capture backend not connected")
	}
	source, err := c.resolveSource(source)
	if err != nil {
		return nil, err
	}

	data, err := c.backend.Screenshot(ctx, source, "jpg", c.width, c.height, c.quality)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", source, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	c.frame.Set(Frame{Image: img, Time: time.Now()})
	return img, nil
}

// StartContinuous begins polling the named source at the given interval.
// A failed tick is logged and skipped; the loop keeps its cadence.
func (c *Capturer) StartContinuous(source string, interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	source, err := c.resolveSource(source)
	if err != nil {
		return err
	}

	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})

	go c.captureLoop(source, interval, c.stopCh, c.doneCh)
	slog.Info("continuous capture started", "source", source, "interval", interval)
	return nil
}

func (c *Capturer) captureLoop(source string, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.tick(source)
		}
	}
}

// tick runs one capture attempt; panics stay inside the iteration.
func (c *Capturer) tick(source string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capture tick panic", "source", source, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.CaptureFrame(ctx, source); err != nil {
		slog.Debug("capture tick failed", "source", source, "error", err)
	}
}

// Stop halts the capture loop. Idempotent; bounded join.
func (c *Capturer) Stop() {
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
		slog.Warn("capture loop did not stop in time")
	}
	slog.Info("continuous capture stopped")
}

// CurrentFrame returns the most recent frame, or ok=false if none yet.
func (c *Capturer) CurrentFrame() (image.Image, time.Time, bool) {
	f, ok := c.frame.Get()
	if !ok {
		return nil, time.Time{}, false
	}
	return f.Image, f.Time, true
}
