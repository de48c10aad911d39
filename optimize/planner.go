package optimize

import (
	"fmt"

	"github.com/vinayprograms/rectopt/errors"
)

// Slice is a contiguous block of pool indices [Offset, Offset+Count).
type Slice struct {
	Offset int
	Count  int
}

// End returns the index one past the slice.
func (s Slice) End() int {
	return s.Offset + s.Count
}

// Plan returns the block of a pool of total regions that rank scans out of
// workers. The first total%workers ranks take one extra region. Any worker
// count of at least one is valid.
func Plan(total, workers, rank int) (Slice, error) {
	if workers < 1 {
		return Slice{}, errors.InvalidInput(fmt.Sprintf("worker count %d must be at least 1", workers))
	}
	if rank < 0 || rank >= workers {
		return Slice{}, errors.InvalidInput(fmt.Sprintf("rank %d outside %d workers", rank, workers))
	}
	if total < 0 {
		return Slice{}, errors.InvalidInput(fmt.Sprintf("pool size %d is negative", total))
	}

	base, rem := total/workers, total%workers
	s := Slice{Offset: rank*base + min(rank, rem), Count: base}
	if rank < rem {
		s.Count++
	}
	return s, nil
}

// planAll returns every rank's slice, ordered by rank.
func planAll(total, workers int) ([]Slice, error) {
	if workers < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("worker count %d must be at least 1", workers))
	}
	out := make([]Slice, workers)
	for r := range out {
		s, err := Plan(total, workers, r)
		if err != nil {
			return nil, err
		}
		out[r] = s
	}
	return out, nil
}
