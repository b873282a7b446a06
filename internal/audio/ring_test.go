package audio

import (
	"testing"
)

// fill writes chunks of a monotonically increasing counter.
func fill(r *ring, chunkSize, chunks int, start int16) int16 {
	v := start
	for i := 0; i < chunks; i++ {
		chunk := make([]int16, chunkSize)
		for j := range chunk {
			chunk[j] = v
			v++
		}
		r.write(chunk)
	}
	return v
}

func monotonic(t *testing.T, samples []int16) {
	t.Helper()
	for i := 1; i < len(samples); i++ {
		if samples[i] != samples[i-1]+1 {
			t.Fatalf("order break at %d: %d then %d", i, samples[i-1], samples[i])
		}
	}
}

func TestLatestBeforeWrap(t *testing.T) {
	r := newRing(8, 4)
	fill(r, 4, 3, 0)

	got := r.latest(2)
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}
	if got[0] != 4 || got[7] != 11 {
		t.Errorf("window = [%d..%d], want [4..11]", got[0], got[7])
	}
	monotonic(t, got)
}

func TestLatestAcrossWrap(t *testing.T) {
	r := newRing(4, 2)
	// 6 chunks through a 4-chunk ring: two full wraps worth of overwrites.
	fill(r, 2, 6, 0)

	// Most recent 3 chunks straddle the physical boundary.
	got := r.latest(3)
	if len(got) != 6 {
		t.Fatalf("len = %d, want 6", len(got))
	}
	if got[0] != 6 || got[5] != 11 {
		t.Errorf("window = [%d..%d], want [6..11]", got[0], got[5])
	}
	monotonic(t, got)
}

func TestLatestManyWraps(t *testing.T) {
	r := newRing(5, 3)
	fill(r, 3, 57, 0)

	got := r.latest(5)
	if len(got) != 15 {
		t.Fatalf("len = %d, want full capacity 15", len(got))
	}
	monotonic(t, got)
	if got[len(got)-1] != 57*3-1 {
		t.Errorf("last sample = %d, want %d", got[len(got)-1], 57*3-1)
	}
}

func TestLatestClampsToCapacity(t *testing.T) {
	r := newRing(4, 2)
	fill(r, 2, 10, 0)

	got := r.latest(100)
	if len(got) != 8 {
		t.Errorf("len = %d, want capacity 8", len(got))
	}
	monotonic(t, got)
}

func TestLatestZeroChunks(t *testing.T) {
	r := newRing(4, 2)
	fill(r, 2, 3, 0)

	if got := r.latest(0); got != nil {
		t.Errorf("latest(0) = %v, want nil", got)
	}
	if got := r.latest(-1); got != nil {
		t.Errorf("latest(-1) = %v, want nil", got)
	}
}

func TestWriteShortChunkZeroPads(t *testing.T) {
	r := newRing(2, 4)
	r.write([]int16{7, 7})
	r.write([]int16{9, 9, 9, 9})

	got := r.latest(2)
	want := []int16{7, 7, 0, 0, 9, 9, 9, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
