package fusion

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/deskpulse/deskpulse/internal/audio"
	"github.com/deskpulse/deskpulse/internal/stream"
)

// world hands out tagged frame/audio pairs. The sync loop always reads
// the frame first, so the audio response repeats the tag of the frame
// just handed out; a correctly synchronized snapshot carries one tag.
type world struct {
	mu        sync.Mutex
	tag       uint8 // 100 or 200
	handedTag uint8
	noFrame   bool
	noAudio   bool
}

func (w *world) setTag(tag uint8) {
	w.mu.Lock()
	w.tag = tag
	w.mu.Unlock()
}

type fakeVideo struct{ w *world }

func (v *fakeVideo) StartContinuous(source string, interval time.Duration) error { return nil }
func (v *fakeVideo) Stop()                                                      {}
func (v *fakeVideo) Sources() []string                                          { return []string{"Webcam"} }
func (v *fakeVideo) MediaSources() []string                                     { return nil }

func (v *fakeVideo) CurrentFrame() (image.Image, time.Time, bool) {
	v.w.mu.Lock()
	defer v.w.mu.Unlock()
	if v.w.noFrame {
		return nil, time.Time{}, false
	}
	v.w.handedTag = v.w.tag
	img := image.NewGray(image.Rect(0, 0, 16, 12))
	for i := range img.Pix {
		img.Pix[i] = v.w.tag
	}
	return img, time.Now(), true
}

type fakeAudio struct{ w *world }

func (a *fakeAudio) Start() error              { return nil }
func (a *fakeAudio) Stop()                     {}
func (a *fakeAudio) Status() audio.BufferStatus { return audio.BufferStatus{Streaming: true} }

func (a *fakeAudio) Latest(window time.Duration) []int16 {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	if a.w.noAudio {
		return nil
	}
	return []int16{int16(a.w.handedTag), 255}
}

func frameTag(t *testing.T, frame image.Image) uint8 {
	t.Helper()
	gray, _, _, _ := frame.At(frame.Bounds().Min.X, frame.Bounds().Min.Y).RGBA()
	if uint8(gray>>8) < 128 {
		return 100
	}
	return 200
}

func audioTag(t *testing.T, samples []float64) uint8 {
	t.Helper()
	if len(samples) == 0 {
		t.Fatal("empty audio in snapshot")
	}
	if samples[0] < 0.6 {
		return 100
	}
	return 200
}

func newTestManager(w *world) *Manager {
	return NewManager(&fakeVideo{w: w}, &fakeAudio{w: w}, stream.NewProcessor(16, 12), Options{
		SyncInterval: time.Millisecond,
		AudioWindow:  100 * time.Millisecond,
	})
}

func waitForSnapshot(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if frame, _, _ := m.SyncData(); frame != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no snapshot published within deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSnapshotPairsStayConsistent(t *testing.T) {
	w := &world{tag: 100}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitForSnapshot(t, m)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Flip the world tag while readers watch the snapshot.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tag := uint8(100)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if tag == 100 {
				tag = 200
			} else {
				tag = 100
			}
			w.setTag(tag)
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				frame, samples, ts := m.SyncData()
				if frame == nil {
					continue
				}
				if len(samples) == 0 {
					t.Error("snapshot has frame but no audio")
					return
				}
				if ts.IsZero() {
					t.Error("snapshot has data but zero timestamp")
					return
				}
				if ft, at := frameTag(t, frame), audioTag(t, samples); ft != at {
					t.Errorf("mixed-age snapshot: frame tag %d, audio tag %d", ft, at)
					return
				}
			}
		}()
	}

	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestSkipTickKeepsPreviousSnapshot(t *testing.T) {
	w := &world{tag: 200}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitForSnapshot(t, m)

	// Drop the audio side: ticks must skip, old snapshot stays visible.
	w.mu.Lock()
	w.noAudio = true
	w.mu.Unlock()
	time.Sleep(10 * time.Millisecond) // let any in-flight tick land
	_, _, before := m.SyncData()
	time.Sleep(20 * time.Millisecond)

	frame, samples, after := m.SyncData()
	if frame == nil || len(samples) == 0 {
		t.Fatal("snapshot vanished while audio was missing")
	}
	if after != before {
		t.Errorf("snapshot timestamp advanced during skip: %v -> %v", before, after)
	}
}

func TestSyncDataEmptyBeforeBothProduce(t *testing.T) {
	w := &world{tag: 100, noAudio: true}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	time.Sleep(20 * time.Millisecond)
	frame, samples, ts := m.SyncData()
	if frame != nil || samples != nil || !ts.IsZero() {
		t.Errorf("SyncData = (%v, %d samples, %v), want empty", frame, len(samples), ts)
	}
	if m.IsAudioAvailable() {
		t.Error("IsAudioAvailable true with no synchronized audio")
	}
}

func TestCurrentFramePrefersLiveSource(t *testing.T) {
	w := &world{tag: 100}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitForSnapshot(t, m)

	// Live frame available: served directly (16x12 raw, not processed copy).
	if frame := m.CurrentFrame(); frame == nil {
		t.Fatal("CurrentFrame nil with live source")
	}

	// Live source dry: fall back to the synchronized frame.
	w.mu.Lock()
	w.noFrame = true
	w.mu.Unlock()
	if frame := m.CurrentFrame(); frame == nil {
		t.Error("CurrentFrame should fall back to synchronized frame")
	}
	if !m.IsVideoAvailable() {
		t.Error("IsVideoAvailable should be true via synchronized frame")
	}
}

func TestFrameJPEG(t *testing.T) {
	w := &world{tag: 200}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitForSnapshot(t, m)

	data := m.FrameJPEG(85)
	if len(data) == 0 {
		t.Fatal("FrameJPEG returned no data")
	}
	// JPEG SOI marker.
	if data[0] != 0xff || data[1] != 0xd8 {
		t.Errorf("output does not start with JPEG marker: %x", data[:2])
	}
}

func TestStopIdempotentAndBounded(t *testing.T) {
	w := &world{tag: 100}
	m := newTestManager(w)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	m.Stop()
	m.Stop()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Stop took %v, want bounded join", elapsed)
	}

	// Restart works after stop.
	if err := m.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	m.Stop()
}
