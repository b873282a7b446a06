package audio

import "sync"

// ring is a fixed-capacity chunk buffer with a modular write cursor.
// The device callback writes one chunk per invocation; readers
// reassemble the most recent chunks in logical order across the wrap.
type ring struct {
	mu        sync.Mutex
	chunks    [][]int16
	chunkSize int
	writeIdx  int
}

func newRing(capacity, chunkSize int) *ring {
	chunks := make([][]int16, capacity)
	for i := range chunks {
		chunks[i] = make([]int16, chunkSize)
	}
	return &ring{chunks: chunks, chunkSize: chunkSize}
}

// write copies one chunk into the current slot and advances the cursor.
// Short critical section only: the device callback must never wait on a
// slow reader for long.
func (r *ring) write(samples []int16) {
	r.mu.Lock()
	n := copy(r.chunks[r.writeIdx], samples)
	for i := n; i < r.chunkSize; i++ {
		r.chunks[r.writeIdx][i] = 0
	}
	r.writeIdx = (r.writeIdx + 1) % len(r.chunks)
	r.mu.Unlock()
}

// latest returns the most recent n chunks flattened into one sequence,
// oldest first. When the read window straddles the physical end of the
// buffer it is reassembled from the two contiguous ranges.
func (r *ring) latest(n int) []int16 {
	if n <= 0 {
		return nil
	}
	if n > len(r.chunks) {
		n = len(r.chunks)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := ((r.writeIdx - n) % len(r.chunks) + len(r.chunks)) % len(r.chunks)

	out := make([]int16, 0, n*r.chunkSize)
	if start < r.writeIdx {
		for _, chunk := range r.chunks[start:r.writeIdx] {
			out = append(out, chunk...)
		}
	} else {
		for _, chunk := range r.chunks[start:] {
			out = append(out, chunk...)
		}
		for _, chunk := range r.chunks[:r.writeIdx] {
			out = append(out, chunk...)
		}
	}
	return out
}

// index returns the current write cursor.
func (r *ring) index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeIdx
}

// capacity returns the number of chunk slots.
func (r *ring) capacity() int { return len(r.chunks) }
