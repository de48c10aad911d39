package optimize

import "math"

// Candidate is a region index paired with its score. Index -1 marks no
// candidate.
type Candidate struct {
	Score float64
	Index int
}

// NoCandidate returns the sentinel that loses to every valid candidate.
func NoCandidate() Candidate {
	return Candidate{Score: math.Inf(-1), Index: -1}
}

// Valid reports whether c names a region.
func (c Candidate) Valid() bool {
	return c.Index >= 0
}

// Beats reports whether c should be refined instead of o: a higher score
// wins, and an equal score goes to the lower index. The sentinel never
// wins.
func (c Candidate) Beats(o Candidate) bool {
	if !c.Valid() {
		return false
	}
	if !o.Valid() {
		return true
	}
	return c.Score > o.Score || (c.Score == o.Score && c.Index < o.Index)
}

// SelectLocal scores the regions of s within pool and returns the first
// index holding the strictly greatest score. Indices are global pool
// indices. NaN scores never win; an empty slice yields NoCandidate.
func SelectLocal(regions []Region, s Slice, scorer Scorer) Candidate {
	best := NoCandidate()
	for i := s.Offset; i < s.End(); i++ {
		score := scorer.Score(&regions[i])
		if math.IsNaN(score) {
			continue
		}
		if !best.Valid() || score > best.Score {
			best = Candidate{Score: score, Index: i}
		}
	}
	return best
}
