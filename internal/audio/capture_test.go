package audio

import (
	"testing"
	"time"
)

func TestChunksForWindow(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		chunkSize  int
		window     time.Duration
		want       int
	}{
		{"500ms at 16k/1024", 16000, 1024, 500 * time.Millisecond, 7},
		{"one second at 16k/1024", 16000, 1024, time.Second, 15},
		{"500ms at 48k/1024", 48000, 1024, 500 * time.Millisecond, 23},
		{"window shorter than a chunk", 16000, 1024, 10 * time.Millisecond, 0},
		{"zero window", 16000, 1024, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunksForWindow(tt.sampleRate, tt.chunkSize, tt.window)
			if got != tt.want {
				t.Errorf("chunksForWindow(%d, %d, %v) = %d, want %d",
					tt.sampleRate, tt.chunkSize, tt.window, got, tt.want)
			}
		})
	}
}

func TestStatusShape(t *testing.T) {
	// Exercise the status math without touching a device.
	c := &Capturer{
		deviceIndex: -1,
		sampleRate:  16000,
		chunkSize:   1024,
		ring:        newRing(78, 1024),
	}

	st := c.Status()
	if st.Streaming {
		t.Error("fresh capturer reports streaming")
	}
	if st.BufferSize != 78*1024 {
		t.Errorf("BufferSize = %d, want %d", st.BufferSize, 78*1024)
	}
	if st.BufferDuration < 4.9 || st.BufferDuration > 5.1 {
		t.Errorf("BufferDuration = %v, want ~5s", st.BufferDuration)
	}
	if st.SampleRate != 16000 {
		t.Errorf("SampleRate = %d", st.SampleRate)
	}
}

func TestLatestWhenNotStreaming(t *testing.T) {
	c := &Capturer{sampleRate: 16000, chunkSize: 1024, ring: newRing(4, 1024)}
	c.ring.write(make([]int16, 1024))

	if got := c.Latest(500 * time.Millisecond); got != nil {
		t.Errorf("Latest on stopped capturer = %d samples, want nil", len(got))
	}
}
