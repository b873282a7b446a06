package syncx

import (
	"sync"
	"testing"
)

func TestSlotEmpty(t *testing.T) {
	var s Slot[int]

	v, ok := s.Get()
	if ok {
		t.Error("Get() on empty slot reported a value")
	}
	if v != 0 {
		t.Errorf("Get() on empty slot = %d, want zero value", v)
	}
}

func TestSlotSetGet(t *testing.T) {
	var s Slot[string]

	s.Set("hello")
	v, ok := s.Get()
	if !ok || v != "hello" {
		t.Errorf("Get() = (%q, %v), want (hello, true)", v, ok)
	}

	s.Set("world")
	if v, _ := s.Get(); v != "world" {
		t.Errorf("Get() after second Set = %q, want world", v)
	}
}

func TestSlotClear(t *testing.T) {
	var s Slot[int]
	s.Set(42)
	s.Clear()

	if _, ok := s.Get(); ok {
		t.Error("Get() after Clear reported a value")
	}
}

func TestSlotConcurrent(t *testing.T) {
	type pair struct{ a, b int }
	var s Slot[pair]
	var wg sync.WaitGroup

	// Writers always store matching fields; readers must never see a torn pair.
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Set(pair{a: n, b: n})
		}(i)
		go func() {
			defer wg.Done()
			if p, ok := s.Get(); ok && p.a != p.b {
				t.Errorf("observed torn pair %+v", p)
			}
		}()
	}
	wg.Wait()
}
