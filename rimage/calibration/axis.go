package calibration

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/perspective/spatialmath"
)

// ErrInvalidAxisAssignment is returned when the two vanishing point axes are not perpendicular.
var ErrInvalidAxisAssignment = errors.New("invalid axis assignment")

// axisAssignmentTolerance is how far the assignment determinant may be from 1.
const axisAssignmentTolerance = 1e-7

// Axis is the world axis a vanishing direction represents.
type Axis int

// The six signed world axes.
const (
	AxisPositiveX Axis = iota
	AxisNegativeX
	AxisPositiveY
	AxisNegativeY
	AxisPositiveZ
	AxisNegativeZ
)

var axisNames = map[Axis]string{
	AxisPositiveX: "x",
	AxisNegativeX: "-x",
	AxisPositiveY: "y",
	AxisNegativeY: "-y",
	AxisPositiveZ: "z",
	AxisNegativeZ: "-z",
}

// ParseAxis parses "x", "-y", "+z" and so on, case insensitive.
func ParseAxis(s string) (Axis, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "+")
	for axis, n := range axisNames {
		if n == name {
			return axis, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidAxisAssignment, "unknown axis %q", s)
}

func (a Axis) String() string {
	if n, ok := axisNames[a]; ok {
		return n
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) {
	if _, ok := axisNames[a]; !ok {
		return nil, errors.Wrapf(ErrInvalidAxisAssignment, "unknown axis %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(text []byte) error {
	parsed, err := ParseAxis(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Vector returns the unit vector of the axis.
func (a Axis) Vector() r3.Vector {
	switch a {
	case AxisPositiveX:
		return r3.Vector{X: 1}
	case AxisNegativeX:
		return r3.Vector{X: -1}
	case AxisPositiveY:
		return r3.Vector{Y: 1}
	case AxisNegativeY:
		return r3.Vector{Y: -1}
	case AxisPositiveZ:
		return r3.Vector{Z: 1}
	case AxisNegativeZ:
		return r3.Vector{Z: -1}
	}
	return r3.Vector{}
}

// Flipped returns the axis pointing the other way.
func (a Axis) Flipped() Axis {
	if a%2 == 0 {
		return a + 1
	}
	return a - 1
}

// AxisAssignmentMatrix returns the signed permutation whose rows are the first axis, the
// second axis and their cross product. Multiplying a camera rotation built from the
// vanishing directions by it expresses the rotation in the declared world axes.
func AxisAssignmentMatrix(first, second Axis) (*spatialmath.RotationMatrix, error) {
	u := first.Vector()
	v := second.Vector()
	m := spatialmath.NewRotationMatrixFromRows(u, v, u.Cross(v))
	if math.Abs(m.Det()-1) > axisAssignmentTolerance {
		return nil, errors.Wrapf(ErrInvalidAxisAssignment, "axes %s and %s are not perpendicular", first, second)
	}
	return m, nil
}
