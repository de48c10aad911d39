package optimize

import (
	"context"
	"strconv"

	"github.com/vinayprograms/rectopt/collective"
	"github.com/vinayprograms/rectopt/errors"
)

// Combine folds per-rank candidates, given in rank order, into the global
// best. Because slices are contiguous and ordered by rank, a lower index
// always belongs to a lower rank, so Beats resolves ties toward the lower
// rank and then the lower index.
func Combine(candidates []Candidate) Candidate {
	best := NoCandidate()
	for _, c := range candidates {
		if c.Beats(best) {
			best = c
		}
	}
	return best
}

// Reduce exchanges local with every rank of comm and returns the global
// best. Every rank returns the same candidate.
func Reduce(ctx context.Context, comm collective.Communicator, local Candidate) (Candidate, error) {
	all, err := comm.Allgather(ctx, EncodeCandidate(local))
	if err != nil {
		return NoCandidate(), err
	}

	candidates := make([]Candidate, len(all))
	for rank, data := range all {
		c, err := DecodeCandidate(data)
		if err != nil {
			return NoCandidate(), errors.Wrap(err, "candidate from peer",
				errors.WithRank(comm.Rank()),
				errors.WithMetadata("peer", strconv.Itoa(rank)))
		}
		candidates[rank] = c
	}
	return Combine(candidates), nil
}
