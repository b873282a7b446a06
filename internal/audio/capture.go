// Package audio handles microphone capture into a rolling sample buffer.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// BufferStatus describes the state of the capture buffer.
type BufferStatus struct {
	Streaming      bool    `json:"is_streaming"`
	BufferSize     int     `json:"buffer_size"`
	BufferDuration float64 `json:"buffer_duration_seconds"`
	CurrentIndex   int     `json:"current_index"`
	DeviceIndex    int     `json:"device_index"`
	SampleRate     int     `json:"sample_rate"`
}

// Capturer records signed 16-bit mono audio from an input device. The
// driver callback fills a fixed ring of chunks; Latest reassembles the
// trailing window on demand.
type Capturer struct {
	deviceIndex int
	sampleRate  int
	chunkSize   int
	ring        *ring

	mu        sync.Mutex
	stream    *portaudio.Stream
	streaming bool
}

// NewCapturer initializes the audio host and sizes the ring for
// bufferSeconds of audio. deviceIndex -1 selects the default input.
func NewCapturer(deviceIndex, sampleRate, chunkSize, bufferSeconds int) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio host: %w", err)
	}

	chunksPerSecond := float64(sampleRate) / float64(chunkSize)
	capacity := int(chunksPerSecond * float64(bufferSeconds))
	if capacity < 1 {
		capacity = 1
	}

	c := &Capturer{
		deviceIndex: deviceIndex,
		sampleRate:  sampleRate,
		chunkSize:   chunkSize,
		ring:        newRing(capacity, chunkSize),
	}
	c.logDevices()
	return c, nil
}

func (c *Capturer) logDevices() {
	devices, err := portaudio.Devices()
	if err != nil {
		slog.Warn("device enumeration failed", "error", err)
		return
	}
	for i, dev := range devices {
		if dev.MaxInputChannels > 0 {
			slog.Info("input device", "index", i, "name", dev.Name)
		}
	}
}

// Start opens the device stream. On failure with an explicit device it
// falls back once to the default input; a second failure is returned
// (capture stays off, reads return empty).
func (c *Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming {
		slog.Warn("audio capture already running")
		return nil
	}

	err := c.open(c.deviceIndex)
	if err != nil && c.deviceIndex >= 0 {
		slog.Warn("audio device open failed, falling back to default input", "device", c.deviceIndex, "error", err)
		c.deviceIndex = -1
		err = c.open(c.deviceIndex)
	}
	if err != nil {
		return fmt.Errorf("open audio stream: %w", err)
	}

	if err := c.stream.Start(); err != nil {
		_ = c.stream.Close()
		c.stream = nil
		return fmt.Errorf("start audio stream: %w", err)
	}

	c.streaming = true
	slog.Info("audio capture started", "device", c.deviceIndex, "sample_rate", c.sampleRate, "chunk", c.chunkSize)
	return nil
}

func (c *Capturer) open(deviceIndex int) error {
	dev, err := c.device(deviceIndex)
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(c.sampleRate)
	params.FramesPerBuffer = c.chunkSize

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		c.ring.write(in)
	})
	if err != nil {
		return err
	}
	c.stream = stream
	return nil
}

func (c *Capturer) device(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("audio device index %d out of range", index)
	}
	return devices[index], nil
}

// Stop closes the device stream. The stream is torn down before the
// ring can be abandoned so no callback fires afterwards. Idempotent.
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.streaming || c.stream == nil {
		return
	}
	_ = c.stream.Stop()
	_ = c.stream.Close()
	c.stream = nil
	c.streaming = false
	slog.Info("audio capture stopped")
}

// Terminate releases the audio host. Call once at process shutdown.
func (c *Capturer) Terminate() {
	c.Stop()
	_ = portaudio.Terminate()
}

// Latest returns the trailing window of samples, oldest first, or nil
// when the stream is down or the window is empty. The window is clamped
// to the buffer capacity.
func (c *Capturer) Latest(window time.Duration) []int16 {
	c.mu.Lock()
	streaming := c.streaming
	c.mu.Unlock()
	if !streaming {
		return nil
	}

	samples := c.ring.latest(chunksForWindow(c.sampleRate, c.chunkSize, window))
	if len(samples) == 0 {
		return nil
	}
	return samples
}

// chunksForWindow converts a time window into whole buffer chunks.
func chunksForWindow(sampleRate, chunkSize int, window time.Duration) int {
	chunksPerMs := float64(sampleRate) / float64(chunkSize*1000)
	return int(chunksPerMs * float64(window.Milliseconds()))
}

// Status reports the buffer state for the status API.
func (c *Capturer) Status() BufferStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalSamples := c.ring.capacity() * c.chunkSize
	return BufferStatus{
		Streaming:      c.streaming,
		BufferSize:     totalSamples,
		BufferDuration: float64(totalSamples) / float64(c.sampleRate),
		CurrentIndex:   c.ring.index(),
		DeviceIndex:    c.deviceIndex,
		SampleRate:     c.sampleRate,
	}
}
