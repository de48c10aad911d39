package optimize

// DefaultPenalty weights region size against the measured objective.
const DefaultPenalty = 2.0

// Scorer ranks regions for refinement. Higher scores are refined first.
type Scorer struct {
	Objective Objective
	Penalty   float64
}

// NewScorer returns a scorer with DefaultPenalty.
func NewScorer(f Objective) Scorer {
	return Scorer{Objective: f, Penalty: DefaultPenalty}
}

// Score returns Penalty*diagonal - f(center) for r and caches it in
// r.Score. Large regions and low objective values both raise the score.
func (s Scorer) Score(r *Region) float64 {
	r.Score = s.Penalty*r.Diagonal() - s.Objective(r.Center())
	return r.Score
}
