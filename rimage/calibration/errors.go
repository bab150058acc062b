package calibration

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNonPositiveFocalLengthSquared is returned when the vanishing points and principal point
	// cannot come from a perspective camera.
	ErrNonPositiveFocalLengthSquared = errors.New("non-positive focal length squared")
	// ErrDegenerateReferenceDistance is returned when the reference handles do not define a length.
	ErrDegenerateReferenceDistance = errors.New("degenerate reference distance")
	// ErrNotEnoughVanishingPoints is returned when fewer than two vanishing points are given.
	ErrNotEnoughVanishingPoints = errors.New("need two or three vanishing points")
	// ErrInvalidFieldOfView is returned for a field of view outside (0, pi).
	ErrInvalidFieldOfView = errors.New("invalid field of view")
)

// CalibrationError records the mode and stage in which a calibration failed.
type CalibrationError struct {
	Mode  Mode
	Stage Stage
	Err   error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%s calibration failed at %s: %v", e.Mode, e.Stage, e.Err)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}
