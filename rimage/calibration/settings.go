package calibration

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/spatialmath"
)

// Tolerances are the numeric thresholds used by a calibration.
type Tolerances struct {
	// Epsilon is the degeneracy threshold for lines, vectors, triangles and depths.
	Epsilon float64 `json:"epsilon"`
	// Orthonormal is how far a rotation block may be from orthonormal before it is repaired.
	Orthonormal float64 `json:"orthonormal"`
	// MaxOrthonormalDrift is the largest drift that is repaired rather than rejected.
	MaxOrthonormalDrift float64 `json:"max_orthonormal_drift"`
}

// DefaultTolerances returns the tolerances used when none are configured.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Epsilon:             spatialmath.DefaultEpsilon,
		Orthonormal:         1e-6,
		MaxOrthonormalDrift: 1e-3,
	}
}

// ReferenceDistance fixes the scale of a vanishing point calibration: the two reference
// handles are Length apart along Axis.
type ReferenceDistance struct {
	Axis   Axis    `json:"axis"`
	Length float64 `json:"length"`
	Unit   string  `json:"unit,omitempty"`
}

// Settings control how a calibration interprets its inputs.
type Settings struct {
	// FirstAxis and SecondAxis are the world axes of the first and second vanishing points.
	FirstAxis  Axis `json:"first_axis"`
	SecondAxis Axis `json:"second_axis"`
	// PrincipalPoint overrides the estimated principal point.
	PrincipalPoint *transform.RelativePoint `json:"principal_point,omitempty"`
	// ReferenceDistance rescales the vanishing point solution to real world units.
	ReferenceDistance *ReferenceDistance `json:"reference_distance,omitempty"`
	// CustomScale divides the translation of the final pose. Zero means no scaling.
	CustomScale float64 `json:"custom_scale,omitempty"`
	// CustomOriginTranslation is where the calibrated origin ends up in the final world frame.
	CustomOriginTranslation *r3.Vector `json:"custom_origin_translation,omitempty"`

	Tolerances Tolerances `json:"tolerances"`
}

// DefaultSettings assigns the first vanishing point to +X and the second to +Y.
func DefaultSettings() Settings {
	return Settings{
		FirstAxis:  AxisPositiveX,
		SecondAxis: AxisPositiveY,
		Tolerances: DefaultTolerances(),
	}
}

// Validate reports every problem with the settings at once.
func (s *Settings) Validate() error {
	var errs error
	if _, err := AxisAssignmentMatrix(s.FirstAxis, s.SecondAxis); err != nil {
		errs = multierr.Append(errs, err)
	}
	if s.ReferenceDistance != nil && !(s.ReferenceDistance.Length > 0) {
		errs = multierr.Append(errs, errors.Errorf("reference distance must be positive, got %v", s.ReferenceDistance.Length))
	}
	if s.CustomScale < 0 {
		errs = multierr.Append(errs, errors.Errorf("custom scale must not be negative, got %v", s.CustomScale))
	}
	tol := s.Tolerances
	if !(tol.Epsilon > 0) || !(tol.Orthonormal > 0) || !(tol.MaxOrthonormalDrift >= tol.Orthonormal) {
		errs = multierr.Append(errs, errors.Errorf("invalid tolerances %+v", tol))
	}
	return errs
}
