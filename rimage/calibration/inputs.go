package calibration

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/rimage/vanishing"
)

// Mode names a calibration strategy.
type Mode string

const (
	// ModeVanishingPoints calibrates from two or three vanishing points.
	ModeVanishingPoints Mode = "vanishing_points"
	// ModeP3P calibrates from three world to image correspondences with known intrinsics.
	ModeP3P Mode = "p3p"
)

// Inputs are the user supplied measurements for one calibration.
type Inputs interface {
	Mode() Mode
	Size() transform.ImageSize
}

// ReferenceControls are the image points that measure the reference distance. Anchor
// defaults to the origin control point.
type ReferenceControls struct {
	Anchor  *transform.RelativePoint    `json:"anchor,omitempty"`
	Handles [2]transform.RelativePoint `json:"handles"`
}

// VanishingPointInputs are control lines, or already computed vanishing points, plus the
// origin control point.
type VanishingPointInputs struct {
	ImageSize transform.ImageSize
	// ControlStates define the vanishing points; ignored when VanishingPoints is set.
	ControlStates   []vanishing.ControlState
	VanishingPoints []transform.ImagePlanePoint
	Origin          transform.RelativePoint
	Reference       *ReferenceControls
}

// Mode returns ModeVanishingPoints.
func (in *VanishingPointInputs) Mode() Mode {
	return ModeVanishingPoints
}

// Size returns the image size.
func (in *VanishingPointInputs) Size() transform.ImageSize {
	return in.ImageSize
}

// ValidationPoint is an extra correspondence used to choose between P3P solutions.
type ValidationPoint struct {
	World r3.Vector               `json:"world"`
	Image transform.RelativePoint `json:"image"`
}

// CorrespondenceInputs are three world points with their image positions and the intrinsics
// needed to turn the image positions into rays.
type CorrespondenceInputs struct {
	ImageSize   transform.ImageSize
	WorldPoints [3]r3.Vector
	ImagePoints [3]transform.RelativePoint

	// Intrinsics take precedence over HorizontalFieldOfView and PrincipalPoint.
	Intrinsics *transform.PinholeCameraIntrinsics
	// HorizontalFieldOfView in radians.
	HorizontalFieldOfView float64
	PrincipalPoint        *transform.RelativePoint

	Validation []ValidationPoint
}

// Mode returns ModeP3P.
func (in *CorrespondenceInputs) Mode() Mode {
	return ModeP3P
}

// Size returns the image size.
func (in *CorrespondenceInputs) Size() transform.ImageSize {
	if in.Intrinsics != nil {
		return in.Intrinsics.ImageSize()
	}
	return in.ImageSize
}

// intrinsics returns the relative focal length and the image plane principal point.
func (in *CorrespondenceInputs) intrinsics(settings *Settings) (float64, transform.ImagePlanePoint, error) {
	size := in.Size()
	var (
		f  float64
		pp transform.ImagePlanePoint
	)
	if in.Intrinsics != nil {
		var err error
		if f, err = in.Intrinsics.ImagePlaneFocalLength(); err != nil {
			return 0, pp, err
		}
		pp = in.Intrinsics.ImagePlanePrincipalPoint()
	} else {
		var err error
		if f, err = FocalLengthFromFieldOfView(size, in.HorizontalFieldOfView); err != nil {
			return 0, pp, errors.Wrap(transform.ErrNoIntrinsics, err.Error())
		}
		if in.PrincipalPoint != nil {
			pp = size.ToImagePlane(*in.PrincipalPoint)
		}
	}
	if settings.PrincipalPoint != nil {
		pp = size.ToImagePlane(*settings.PrincipalPoint)
	}
	return f, pp, nil
}
