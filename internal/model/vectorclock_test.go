package model

import "testing"

func TestVectorClockCompare(t *testing.T) {
	tests := []struct {
		name string
		a    VectorClock
		b    VectorClock
		want Order
	}{
		{"equal empty", VectorClock{}, VectorClock{}, OrderEqual},
		{"equal values", VectorClock{"c1": 3}, VectorClock{"c1": 3}, OrderEqual},
		{"before", VectorClock{"c1": 1}, VectorClock{"c1": 2}, OrderBefore},
		{"after", VectorClock{"c1": 2}, VectorClock{"c1": 1}, OrderAfter},
		{"concurrent", VectorClock{"c1": 2, "c2": 0}, VectorClock{"c1": 1, "c2": 1}, OrderConcurrent},
		{"missing key treated as zero", VectorClock{"c1": 1}, VectorClock{"c1": 1, "c2": 1}, OrderBefore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorClockIncrementDoesNotMutateReceiver(t *testing.T) {
	base := VectorClock{"c1": 1}
	next := base.Increment("c1")
	if base["c1"] != 1 {
		t.Fatalf("Increment mutated receiver: %v", base)
	}
	if next["c1"] != 2 {
		t.Fatalf("Increment() = %v, want c1:2", next)
	}
}

func TestVectorClockMerge(t *testing.T) {
	a := VectorClock{"c1": 3, "c2": 1}
	b := VectorClock{"c1": 1, "c2": 5, "c3": 2}
	merged := a.Merge(b)
	want := VectorClock{"c1": 3, "c2": 5, "c3": 2}
	for k, v := range want {
		if merged[k] != v {
			t.Errorf("Merge()[%s] = %d, want %d", k, merged[k], v)
		}
	}
}

func TestVectorClockIsEmpty(t *testing.T) {
	if !(VectorClock(nil)).IsEmpty() {
		t.Error("nil clock should be empty")
	}
	if (VectorClock{"c1": 0}).IsEmpty() {
		t.Error("clock with a key should not be empty even if value is zero")
	}
}
