package optimize

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/vinayprograms/rectopt/errors"
	"github.com/vinayprograms/rectopt/logging"
	"github.com/vinayprograms/rectopt/telemetry"
)

// Options configures a run.
type Options struct {
	// Iterations is the number of refinement rounds. Zero or less runs
	// none and reports the objective at the domain center.
	Iterations int

	// Bounds is the search domain.
	Bounds Bounds

	// Objective is minimized. Default: Bowl.
	Objective Objective

	// ObjectiveName labels the objective in logs, spans and the
	// cross-rank agreement check. Default: "bowl" when Objective is nil.
	ObjectiveName string

	// Penalty weights region size in the score.
	Penalty float64

	// RunID tags errors, logs and spans. Optional.
	RunID string

	// Logger for run events. Default: stdout at INFO.
	Logger *logging.Logger

	// Tracer for run and round spans. Default: the global tracer.
	Tracer *telemetry.Tracer
}

// DefaultOptions returns 40 iterations of Bowl over DefaultBounds.
func DefaultOptions() Options {
	return Options{
		Iterations:    40,
		Bounds:        DefaultBounds(),
		Objective:     Bowl,
		ObjectiveName: DefaultObjective,
		Penalty:       DefaultPenalty,
	}
}

func (o Options) withDefaults() Options {
	if o.Objective == nil {
		o.Objective = Bowl
		if o.ObjectiveName == "" {
			o.ObjectiveName = DefaultObjective
		}
	}
	if o.Logger == nil {
		o.Logger = logging.New()
	}
	if o.Tracer == nil {
		o.Tracer = telemetry.GetTracer()
	}
	return o
}

// Validate checks the domain and penalty. The iteration budget is not
// checked here; see SequentialTask.Validate.
func (o Options) Validate() error {
	if err := o.Bounds.Validate(); err != nil {
		return err
	}
	if math.IsNaN(o.Penalty) || math.IsInf(o.Penalty, 0) || o.Penalty < 0 {
		return errors.InvalidInput(fmt.Sprintf("penalty %v must be finite and non-negative", o.Penalty))
	}
	return nil
}

// rounds returns how many rounds to run. Degenerate domains run none.
func (o Options) rounds(logger *logging.Logger) int {
	if o.Iterations <= 0 {
		return 0
	}
	if o.Bounds.Degenerate() {
		b := o.Bounds
		logger.DegenerateDomain(b.MinX, b.MaxX, b.MinY, b.MaxY)
		return 0
	}
	return o.Iterations
}

// fingerprint identifies the inputs every rank must agree on.
func (o Options) fingerprint() []byte {
	data, _ := json.Marshal(struct {
		Iterations int     `json:"iterations"`
		Bounds     Bounds  `json:"bounds"`
		Objective  string  `json:"objective"`
		Penalty    float64 `json:"penalty"`
	}{o.Iterations, o.Bounds, o.ObjectiveName, o.Penalty})
	return data
}
