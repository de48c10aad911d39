package optimize

import (
	"sort"

	"github.com/vinayprograms/rectopt/errors"
)

// Objective is a real function of two coordinates to be minimized.
type Objective func(x, y float64) float64

// DefaultObjective is the name of the objective used when none is given.
const DefaultObjective = "bowl"

// Bowl is (x-1.5)^2 + (y+2)^2, minimum 0 at (1.5, -2).
func Bowl(x, y float64) float64 {
	dx, dy := x-1.5, y+2
	return dx*dx + dy*dy
}

// Booth is (x+2y-7)^2 + (2x+y-5)^2, minimum 0 at (1, 3).
func Booth(x, y float64) float64 {
	a, b := x+2*y-7, 2*x+y-5
	return a*a + b*b
}

// Himmelblau is (x^2+y-11)^2 + (x+y^2-7)^2, minimum 0 at four points
// inside [-5,5] x [-5,5].
func Himmelblau(x, y float64) float64 {
	a, b := x*x+y-11, x+y*y-7
	return a*a + b*b
}

// Sphere is x^2 + y^2, minimum 0 at the origin.
func Sphere(x, y float64) float64 {
	return x*x + y*y
}

var objectives = map[string]Objective{
	"bowl":       Bowl,
	"booth":      Booth,
	"himmelblau": Himmelblau,
	"sphere":     Sphere,
}

// LookupObjective returns the built-in objective with the given name.
// An empty name selects DefaultObjective.
func LookupObjective(name string) (Objective, error) {
	if name == "" {
		name = DefaultObjective
	}
	f, ok := objectives[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "unknown objective %q", name)
	}
	return f, nil
}

// ObjectiveNames returns the built-in objective names in sorted order.
func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
