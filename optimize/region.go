package optimize

import (
	"fmt"
	"math"

	"github.com/vinayprograms/rectopt/errors"
)

// Bounds is an axis-aligned search domain.
type Bounds struct {
	MinX float64 `json:"min_x" toml:"min_x"`
	MaxX float64 `json:"max_x" toml:"max_x"`
	MinY float64 `json:"min_y" toml:"min_y"`
	MaxY float64 `json:"max_y" toml:"max_y"`
}

// DefaultBounds returns the domain [-5,5] x [-5,5].
func DefaultBounds() Bounds {
	return Bounds{MinX: -5, MaxX: 5, MinY: -5, MaxY: 5}
}

// Validate rejects non-finite and inverted bounds. Collapsed bounds
// (min == max on an axis) are valid but degenerate.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinX, b.MaxX, b.MinY, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidInput(fmt.Sprintf("domain bound %v is not finite", v))
		}
	}
	if b.MinX > b.MaxX {
		return errors.InvalidInput(fmt.Sprintf("domain x range [%g, %g] is inverted", b.MinX, b.MaxX))
	}
	if b.MinY > b.MaxY {
		return errors.InvalidInput(fmt.Sprintf("domain y range [%g, %g] is inverted", b.MinY, b.MaxY))
	}
	return nil
}

// Degenerate reports whether the domain has zero extent on an axis.
func (b Bounds) Degenerate() bool {
	return b.MinX == b.MaxX || b.MinY == b.MaxY
}

// Region returns the seed region spanning the domain.
func (b Bounds) Region() Region {
	return Region{LowX: b.MinX, HighX: b.MaxX, LowY: b.MinY, HighY: b.MaxY}
}

// Region is a rectangular candidate subdivision of the domain.
//
// Score is a round-scoped cache written by Scorer.Score. It is meaningless
// outside the round that computed it and is never sent between ranks.
type Region struct {
	LowX, HighX float64
	LowY, HighY float64
	Score       float64
}

// Center returns the midpoint of the region.
func (r Region) Center() (x, y float64) {
	return (r.LowX + r.HighX) / 2, (r.LowY + r.HighY) / 2
}

// Diagonal returns the Euclidean length of the region's diagonal.
func (r Region) Diagonal() float64 {
	return math.Hypot(r.HighX-r.LowX, r.HighY-r.LowY)
}

// Quadrants splits r at its center into low-x/low-y, high-x/low-y,
// low-x/high-y and high-x/high-y, in that order, with zero scores.
func (r Region) Quadrants() [4]Region {
	mx, my := r.Center()
	return [4]Region{
		{LowX: r.LowX, HighX: mx, LowY: r.LowY, HighY: my},
		{LowX: mx, HighX: r.HighX, LowY: r.LowY, HighY: my},
		{LowX: r.LowX, HighX: mx, LowY: my, HighY: r.HighY},
		{LowX: mx, HighX: r.HighX, LowY: my, HighY: r.HighY},
	}
}

// Pool is the ordered set of candidate regions. A region's index is its
// identity for the duration of a round.
type Pool struct {
	regions []Region
}

// NewPool returns a pool seeded with one region spanning b.
func NewPool(b Bounds) *Pool {
	return &Pool{regions: []Region{b.Region()}}
}

// Len returns the number of regions.
func (p *Pool) Len() int {
	return len(p.regions)
}

// At returns the region at index i.
func (p *Pool) At(i int) Region {
	return p.regions[i]
}

// Regions returns the backing slice. Scorers write score caches into it.
// Split compacts the backing array in place and Replace swaps it, so a
// slice obtained earlier must not be read after either call.
func (p *Pool) Regions() []Region {
	return p.regions
}

// Replace discards the pool contents in favor of regions. Non-coordinator
// ranks use it to take the coordinator's copy each round.
func (p *Pool) Replace(regions []Region) {
	p.regions = regions
}

// Split removes the region at index and appends its four quadrants.
func (p *Pool) Split(index int) error {
	if index < 0 || index >= len(p.regions) {
		return errors.Newf(errors.ErrCodeInternal, "split index %d outside pool of %d", index, len(p.regions))
	}

	quads := p.regions[index].Quadrants()
	p.regions = append(p.regions[:index], p.regions[index+1:]...)
	p.regions = append(p.regions, quads[:]...)
	return nil
}

// Minimum evaluates f at every region center and returns the smallest
// value. Cached scores are ignored. NaN values are skipped; an empty pool
// or an all-NaN pool yields NaN.
func (p *Pool) Minimum(f Objective) float64 {
	best := math.NaN()
	for _, r := range p.regions {
		v := f(r.Center())
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(best) || v < best {
			best = v
		}
	}
	return best
}
