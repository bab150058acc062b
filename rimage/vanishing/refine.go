package vanishing

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/utils"
)

// degeneratePenalty is the objective value for control lines that have no orthocenter.
const degeneratePenalty = 1e6

// RefineOptions bounds the control line refinement.
type RefineOptions struct {
	// MaxShift is how far, in relative units, a line end point may move on each axis.
	MaxShift float64
	// MaxIterations caps the major iterations of the minimizer.
	MaxIterations int
	// Tolerance is the objective change below which the minimizer stops.
	Tolerance float64
	// Epsilon is the degeneracy threshold for intersections and the orthocenter.
	Epsilon float64
}

// DefaultRefineOptions returns the options used by the command line tool.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		MaxShift:      0.02,
		MaxIterations: 400,
		Tolerance:     1e-7,
		Epsilon:       1e-8,
	}
}

// RefineControlLines moves the second end point of every control line, within a box of
// MaxShift around its original position, so that the orthocenter of the three vanishing
// points lands as close as possible to the image centre. It returns the adjusted control
// states and the orthocenter they produce.
func RefineControlLines(
	states []ControlState,
	size transform.ImageSize,
	opts RefineOptions,
	logger logging.Logger,
) ([]ControlState, transform.ImagePlanePoint, error) {
	if len(states) != 3 {
		return nil, transform.ImagePlanePoint{}, errors.Errorf("refinement needs 3 control states, got %d", len(states))
	}
	if err := size.CheckValid(); err != nil {
		return nil, transform.ImagePlanePoint{}, err
	}
	if _, err := ComputeVanishingPoints(states, size, opts.Epsilon); err != nil {
		return nil, transform.ImagePlanePoint{}, err
	}

	// x holds (dx, dy) for the B end of line 0 and line 1 of each state
	apply := func(x []float64) []ControlState {
		out := make([]ControlState, len(states))
		copy(out, states)
		for i := range out {
			for j := 0; j < 2; j++ {
				k := 4*i + 2*j
				dx := utils.Clamp(x[k], -opts.MaxShift, opts.MaxShift)
				dy := utils.Clamp(x[k+1], -opts.MaxShift, opts.MaxShift)
				out[i].Lines[j].B = out[i].Lines[j].B.Add(r2.Point{X: dx, Y: dy})
			}
		}
		return out
	}
	orthocenter := func(candidate []ControlState) (r2.Point, error) {
		vps, err := ComputeVanishingPoints(candidate, size, opts.Epsilon)
		if err != nil {
			return r2.Point{}, err
		}
		return TriangleOrthocenter(vps[0].Point, vps[1].Point, vps[2].Point, opts.Epsilon)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			h, err := orthocenter(apply(x))
			if err != nil {
				return degeneratePenalty
			}
			return h.Norm()
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 50,
		},
	}

	x0 := make([]float64, 4*len(states))
	initial := problem.Func(x0)
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil {
		return nil, transform.ImagePlanePoint{}, errors.Wrap(err, "control line refinement failed")
	}
	if err != nil {
		logger.Debugw("control line refinement stopped early", "status", result.Status.String(), "error", err)
	}

	best := x0
	if result.F < initial {
		best = result.X
	}
	refined := apply(best)
	h, err := orthocenter(refined)
	if err != nil {
		return nil, transform.ImagePlanePoint{}, err
	}
	logger.Debugw("refined control lines",
		"initial_distance", initial,
		"final_distance", h.Norm(),
		"evaluations", result.Stats.FuncEvaluations)
	return refined, transform.ImagePlanePoint{Point: h}, nil
}
