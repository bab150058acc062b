// Package vanishing turns pairs of user drawn line segments into vanishing points and
// estimates the principal point from them.
package vanishing

import (
	"fmt"

	"github.com/golang/geo/r2"

	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/spatialmath"
)

// ControlState is the pair of segments that define one vanishing point. The segment end
// points are in the relative image frame.
type ControlState struct {
	Lines [2]spatialmath.LineSegment `json:"lines"`
}

// NewControlState builds a control state from the end points of two segments.
func NewControlState(a0, a1, b0, b1 r2.Point) ControlState {
	return ControlState{Lines: [2]spatialmath.LineSegment{{A: a0, B: a1}, {A: b0, B: b1}}}
}

// PointError reports which control state could not produce a vanishing point.
type PointError struct {
	Index int
	Err   error
}

func (e *PointError) Error() string {
	return fmt.Sprintf("vanishing point %d: %v", e.Index, e.Err)
}

func (e *PointError) Unwrap() error {
	return e.Err
}

// ComputeVanishingPoints intersects the two lines of every control state and converts the
// intersections to the image plane. The first failing state aborts the whole batch.
func ComputeVanishingPoints(states []ControlState, size transform.ImageSize, eps float64) ([]transform.ImagePlanePoint, error) {
	if err := size.CheckValid(); err != nil {
		return nil, err
	}
	vps := make([]transform.ImagePlanePoint, 0, len(states))
	for i, state := range states {
		p, err := spatialmath.LineIntersection(state.Lines[0], state.Lines[1], eps)
		if err != nil {
			return nil, &PointError{Index: i, Err: err}
		}
		vps = append(vps, size.ToImagePlane(transform.RelativePoint{Point: p}))
	}
	return vps, nil
}
