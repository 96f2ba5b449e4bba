package buffer

import (
	"testing"
	"time"
)

func TestNewLatencyWindow(t *testing.T) {
	// Test with valid capacity
	w := NewLatencyWindow(100)
	if w.Cap() != 100 {
		t.Errorf("expected capacity 100, got %d", w.Cap())
	}
	if w.Len() != 0 {
		t.Errorf("expected length 0, got %d", w.Len())
	}

	// Test with zero capacity (should default to 1)
	w = NewLatencyWindow(0)
	if w.Cap() != 1 {
		t.Errorf("expected capacity 1 for zero input, got %d", w.Cap())
	}

	// Test with negative capacity (should default to 1)
	w = NewLatencyWindow(-5)
	if w.Cap() != 1 {
		t.Errorf("expected capacity 1 for negative input, got %d", w.Cap())
	}
}

func TestLatencyWindow_Add(t *testing.T) {
	w := NewLatencyWindow(4)

	w.Add(1 * time.Millisecond)
	w.Add(2 * time.Millisecond)

	if w.Len() != 2 {
		t.Errorf("expected length 2, got %d", w.Len())
	}

	got := w.Snapshot()
	if len(got) != 2 || got[0] != time.Millisecond || got[1] != 2*time.Millisecond {
		t.Errorf("unexpected snapshot %v", got)
	}
}

func TestLatencyWindow_Overflow(t *testing.T) {
	w := NewLatencyWindow(3)

	for i := 1; i <= 5; i++ {
		w.Add(time.Duration(i) * time.Millisecond)
	}

	// Should have discarded 1ms and 2ms
	got := w.Snapshot()
	want := []time.Duration{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if w.Len() != 3 {
		t.Errorf("expected length 3, got %d", w.Len())
	}
}

func TestLatencyWindow_SnapshotIsCopy(t *testing.T) {
	w := NewLatencyWindow(10)

	if w.Snapshot() != nil {
		t.Error("expected nil snapshot for empty window")
	}

	w.Add(time.Second)
	data := w.Snapshot()
	data[0] = 0

	if w.Snapshot()[0] != time.Second {
		t.Error("Snapshot should return a copy")
	}
}

func TestLatencyWindow_Percentile(t *testing.T) {
	w := NewLatencyWindow(100)

	if w.Percentile(50) != 0 {
		t.Errorf("expected 0 for empty window, got %v", w.Percentile(50))
	}

	// Insert out of order to make sure percentiles sort.
	for _, ms := range []int{7, 3, 10, 1, 5, 9, 2, 8, 4, 6} {
		w.Add(time.Duration(ms) * time.Millisecond)
	}

	testCases := []struct {
		p    float64
		want time.Duration
	}{
		{p: 50, want: 5 * time.Millisecond},
		{p: 90, want: 9 * time.Millisecond},
		{p: 99, want: 10 * time.Millisecond},
		{p: 100, want: 10 * time.Millisecond},
		{p: 1, want: 1 * time.Millisecond},
	}

	for _, tc := range testCases {
		if got := w.Percentile(tc.p); got != tc.want {
			t.Errorf("p%v: expected %v, got %v", tc.p, tc.want, got)
		}
	}
}

func TestLatencyWindow_Clear(t *testing.T) {
	w := NewLatencyWindow(2)
	w.Add(time.Millisecond)
	w.Add(time.Millisecond)
	w.Add(time.Millisecond)

	w.Clear()

	if w.Len() != 0 {
		t.Errorf("expected length 0 after clear, got %d", w.Len())
	}
	if w.Snapshot() != nil {
		t.Error("expected nil snapshot after clear")
	}

	// Should be able to add again after clear
	w.Add(2 * time.Millisecond)
	if got := w.Snapshot(); len(got) != 1 || got[0] != 2*time.Millisecond {
		t.Errorf("unexpected snapshot after clear: %v", got)
	}
}
