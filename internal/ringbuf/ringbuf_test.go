package ringbuf_test

import (
	"testing"

	"github.com/nxtwrld/medscribe/internal/ringbuf"
)

func TestRing_PushBelowCapacity(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := r.Slice(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Slice() = %v, want [1 2 3]", got)
	}
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	got := r.Slice()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Slice() = %v, want %v", got, want)
			break
		}
	}
}

func TestRing_NeverGrowsPastCapacity(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[float64](10)
	for i := 0; i < 1000; i++ {
		r.Push(float64(i))
		if r.Len() > r.Cap() {
			t.Fatalf("after %d pushes: Len() = %d exceeds Cap() = %d", i+1, r.Len(), r.Cap())
		}
	}
	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
}

func TestRing_Last(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[int](5)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}

	got := r.Last(3)
	want := []int{5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("Last(3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Last(3) = %v, want %v", got, want)
			break
		}
	}

	// Asking for more than stored returns everything.
	if got := r.Last(100); len(got) != 5 {
		t.Errorf("Last(100) returned %d elements, want 5", len(got))
	}
}

func TestRing_PopOldest(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c") // evicts "a"

	v, ok := r.PopOldest()
	if !ok || v != "b" {
		t.Fatalf("PopOldest() = (%q, %v), want (\"b\", true)", v, ok)
	}
	v, ok = r.PopOldest()
	if !ok || v != "c" {
		t.Fatalf("PopOldest() = (%q, %v), want (\"c\", true)", v, ok)
	}
	if _, ok := r.PopOldest(); ok {
		t.Error("PopOldest() on empty buffer reported ok=true")
	}
}

func TestRing_Reset(t *testing.T) {
	t.Parallel()

	r := ringbuf.New[int](3)
	r.Push(1)
	r.Push(2)
	r.Reset()

	if r.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", r.Len())
	}
	r.Push(9)
	if got := r.Slice(); len(got) != 1 || got[0] != 9 {
		t.Errorf("Slice() after Reset+Push = %v, want [9]", got)
	}
}
