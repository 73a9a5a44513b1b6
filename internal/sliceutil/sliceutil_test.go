package sliceutil

import (
	"slices"
	"testing"
)

func TestDeleteVal(t *testing.T) {
	s := []int{1, 2, 3, 2}
	if got := DeleteVal(s, 2); !slices.Equal(got, []int{1, 3, 2}) {
		t.Fatalf("expected first occurrence removed, got %v", got)
	}
	if got := DeleteVal(s, 9); !slices.Equal(got, s) {
		t.Fatalf("expected slice unchanged for missing value, got %v", got)
	}
}

func TestIndex(t *testing.T) {
	if got := Index([]string{"a", "b"}, "b"); got != 1 {
		t.Fatalf("expected index 1, got %d", got)
	}
	if got := Index([]string{"a", "b"}, "c"); got != -1 {
		t.Fatalf("expected -1 for missing value, got %d", got)
	}
}

func TestFilter(t *testing.T) {
	got := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if !slices.Equal(got, []int{2, 4}) {
		t.Fatalf("expected even values, got %v", got)
	}
}
