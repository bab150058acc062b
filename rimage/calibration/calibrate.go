// Package calibration recovers a camera's intrinsic and extrinsic parameters from a single
// image, either from vanishing points or from three known world points.
package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/rimage/vanishing"
	"go.viam.com/perspective/spatialmath"
	"go.viam.com/perspective/utils"
)

// Calibrate runs the calibration strategy matching the inputs. Failures are returned as
// *CalibrationError wrapping the underlying cause. A nil logger discards all output.
func Calibrate(inputs Inputs, settings Settings, logger logging.Logger) (*CameraParameters, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	if inputs == nil {
		return nil, errors.New("no calibration inputs")
	}
	var initial Stage
	switch inputs.(type) {
	case *VanishingPointInputs:
		initial = StageTwoVanishingPoints
	case *CorrespondenceInputs:
		initial = StageFocalLengthKnown
	default:
		return nil, utils.NewUnexpectedTypeError((*VanishingPointInputs)(nil), inputs)
	}
	sm := newStateMachine(inputs.Mode(), initial, logger)
	if err := settings.Validate(); err != nil {
		return nil, sm.fail(err)
	}
	if err := inputs.Size().CheckValid(); err != nil {
		return nil, sm.fail(err)
	}
	switch in := inputs.(type) {
	case *VanishingPointInputs:
		return calibrateVanishingPoints(sm, in, &settings)
	case *CorrespondenceInputs:
		return calibrateCorrespondences(sm, in, &settings)
	}
	return nil, utils.NewUnexpectedTypeError((*VanishingPointInputs)(nil), inputs)
}

// CalibrateFromVanishingPoints calibrates from two or three precomputed image plane
// vanishing points.
func CalibrateFromVanishingPoints(
	vps []transform.ImagePlanePoint,
	origin transform.RelativePoint,
	reference *ReferenceControls,
	settings Settings,
	size transform.ImageSize,
	logger logging.Logger,
) (*CameraParameters, error) {
	return Calibrate(&VanishingPointInputs{
		ImageSize:       size,
		VanishingPoints: vps,
		Origin:          origin,
		Reference:       reference,
	}, settings, logger)
}

func calibrateVanishingPoints(sm *stateMachine, in *VanishingPointInputs, settings *Settings) (*CameraParameters, error) {
	size := in.ImageSize
	eps := settings.Tolerances.Epsilon

	vps := in.VanishingPoints
	if len(vps) == 0 {
		var err error
		if vps, err = vanishing.ComputeVanishingPoints(in.ControlStates, size, eps); err != nil {
			return nil, sm.fail(err)
		}
	}
	if len(vps) < 2 || len(vps) > 3 {
		return nil, sm.fail(errors.Wrapf(ErrNotEnoughVanishingPoints, "got %d", len(vps)))
	}

	var pp r2.Point
	switch {
	case settings.PrincipalPoint != nil:
		pp = size.ToImagePlane(*settings.PrincipalPoint).Point
	case len(vps) == 3:
		var err error
		if pp, err = vanishing.TriangleOrthocenter(vps[0].Point, vps[1].Point, vps[2].Point, eps); err != nil {
			return nil, sm.fail(err)
		}
	}

	f, err := ComputeFocalLength(vps[0].Point, vps[1].Point, pp, eps)
	if err != nil {
		return nil, sm.fail(err)
	}
	sm.advance(StageFocalLengthKnown, "focal_length", f, "principal_point", pp)

	rot, err := ComputeCameraRotationMatrix(vps[0].Point, vps[1].Point, f, pp, settings.Tolerances)
	if err != nil {
		return nil, sm.fail(err)
	}
	assignment, err := AxisAssignmentMatrix(settings.FirstAxis, settings.SecondAxis)
	if err != nil {
		return nil, sm.fail(err)
	}
	rot = rot.Mul(assignment)
	sm.advance(StageRotationKnown)

	origin := size.ToImagePlane(in.Origin)
	view := spatialmath.NewTransform(rot, computeTranslationVector(origin, pp, f))
	unit := ""
	if settings.ReferenceDistance != nil && in.Reference == nil {
		sm.logger.Warnw("reference distance set without reference handles, translation is unscaled",
			"axis", settings.ReferenceDistance.Axis, "length", settings.ReferenceDistance.Length)
	}
	if settings.ReferenceDistance != nil && in.Reference != nil {
		anchor := origin
		if in.Reference.Anchor != nil {
			anchor = size.ToImagePlane(*in.Reference.Anchor)
		}
		handles := [2]transform.ImagePlanePoint{
			size.ToImagePlane(in.Reference.Handles[0]),
			size.ToImagePlane(in.Reference.Handles[1]),
		}
		scale, err := referenceDistanceScale(view, pp, f, *settings.ReferenceDistance, anchor, handles, eps)
		if err != nil {
			return nil, sm.fail(err)
		}
		view = view.WithTranslation(view.Translation().Mul(scale))
		unit = settings.ReferenceDistance.Unit
	}
	sm.advance(StageTranslationKnown, "translation", view.Translation())

	params, err := assemble(sm, settings, size, pp, f, view)
	if err != nil {
		return nil, err
	}
	params.VanishingPoints = append([]transform.ImagePlanePoint(nil), vps...)
	params.ReferenceDistanceUnit = unit
	return params, nil
}

func calibrateCorrespondences(sm *stateMachine, in *CorrespondenceInputs, settings *Settings) (*CameraParameters, error) {
	size := in.Size()
	f, pp, err := in.intrinsics(settings)
	if err != nil {
		return nil, sm.fail(err)
	}

	problem := transform.P3PProblem{
		WorldPoints:    in.WorldPoints,
		FocalLength:    f,
		PrincipalPoint: pp,
	}
	for i, p := range in.ImagePoints {
		problem.ImagePoints[i] = size.ToImagePlane(p)
	}
	for _, v := range in.Validation {
		problem.Validation = append(problem.Validation, transform.Correspondence{
			World: v.World,
			Image: size.ToImagePlane(v.Image),
		})
	}
	pose, err := transform.SolveP3P(problem, settings.Tolerances.Epsilon)
	if err != nil {
		return nil, sm.fail(err)
	}
	rot, err := spatialmath.EnsureOrthonormal(pose.Rotation, settings.Tolerances.Orthonormal, settings.Tolerances.MaxOrthonormalDrift)
	if err != nil {
		return nil, sm.fail(err)
	}
	sm.advance(StageRotationKnown, "reprojection_error", pose.ReprojectionError)
	view := spatialmath.NewTransform(rot, pose.Translation)
	sm.advance(StageTranslationKnown, "translation", pose.Translation)

	return assemble(sm, settings, size, pp.Point, f, view)
}

// assemble applies the custom scale and origin and builds the final parameters.
func assemble(
	sm *stateMachine,
	settings *Settings,
	size transform.ImageSize,
	pp r2.Point,
	f float64,
	view spatialmath.Transform,
) (*CameraParameters, error) {
	if settings.CustomScale > 0 {
		view = applyCustomScale(view, settings.CustomScale)
	}
	if settings.CustomOriginTranslation != nil {
		view = applyCustomOrigin(view, *settings.CustomOriginTranslation)
	}
	params, err := newCameraParameters(sm.mode, size, pp, f, view)
	if err != nil {
		return nil, sm.fail(err)
	}
	sm.advance(StageComplete, "horizontal_fov", params.HorizontalFieldOfView)
	return params, nil
}
