package optimize

import (
	"testing"

	"github.com/vinayprograms/rectopt/errors"
)

func TestPlan_Examples(t *testing.T) {
	tests := []struct {
		total, workers int
		want           []Slice
	}{
		{0, 3, []Slice{{0, 0}, {0, 0}, {0, 0}}},
		{1, 4, []Slice{{0, 1}, {1, 0}, {1, 0}, {1, 0}}},
		{7, 3, []Slice{{0, 3}, {3, 2}, {5, 2}}},
		{8, 4, []Slice{{0, 2}, {2, 2}, {4, 2}, {6, 2}}},
		{10, 1, []Slice{{0, 10}}},
	}

	for _, tt := range tests {
		got, err := planAll(tt.total, tt.workers)
		if err != nil {
			t.Fatalf("planAll(%d, %d): %v", tt.total, tt.workers, err)
		}
		for r := range tt.want {
			if got[r] != tt.want[r] {
				t.Errorf("planAll(%d, %d)[%d] = %+v, want %+v", tt.total, tt.workers, r, got[r], tt.want[r])
			}
		}
	}
}

func TestPlan_ExhaustiveAndContiguous(t *testing.T) {
	// Any worker count works, not only powers of two.
	for workers := 1; workers <= 9; workers++ {
		for total := 0; total <= 130; total++ {
			slices, err := planAll(total, workers)
			if err != nil {
				t.Fatalf("planAll(%d, %d): %v", total, workers, err)
			}

			next := 0
			for r, s := range slices {
				if s.Offset != next {
					t.Fatalf("T=%d W=%d rank %d offset %d, want %d", total, workers, r, s.Offset, next)
				}
				if s.Count < total/workers || s.Count > total/workers+1 {
					t.Fatalf("T=%d W=%d rank %d count %d unbalanced", total, workers, r, s.Count)
				}
				next = s.End()
			}
			if next != total {
				t.Fatalf("T=%d W=%d covers %d", total, workers, next)
			}
		}
	}
}

func TestPlan_Invalid(t *testing.T) {
	tests := []struct {
		total, workers, rank int
	}{
		{10, 0, 0},
		{10, 2, 2},
		{10, 2, -1},
		{-1, 2, 0},
	}
	for _, tt := range tests {
		if _, err := Plan(tt.total, tt.workers, tt.rank); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Plan(%d, %d, %d) = %v", tt.total, tt.workers, tt.rank, err)
		}
	}
}
