package calibration

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/spatialmath"
)

// CameraParameters is the result of a calibration. Every call produces a new value; nothing
// inside is shared with the inputs.
type CameraParameters struct {
	Mode      Mode
	ImageSize transform.ImageSize

	PrincipalPoint        transform.ImagePlanePoint
	RelativeFocalLength   float64
	HorizontalFieldOfView float64
	VerticalFieldOfView   float64

	// ViewTransform maps world points to the camera frame, CameraTransform is its inverse.
	ViewTransform   spatialmath.Transform
	CameraTransform spatialmath.Transform

	// VanishingPoints are the image plane vanishing points used, if any.
	VanishingPoints []transform.ImagePlanePoint
	// ReferenceDistanceUnit names the unit of the world coordinates, empty when unscaled.
	ReferenceDistanceUnit string
}

func newCameraParameters(
	mode Mode,
	size transform.ImageSize,
	pp r2.Point,
	f float64,
	view spatialmath.Transform,
) (*CameraParameters, error) {
	camera, err := view.Inverse()
	if err != nil {
		return nil, err
	}
	return &CameraParameters{
		Mode:                  mode,
		ImageSize:             size,
		PrincipalPoint:        transform.ImagePlanePoint{Point: pp},
		RelativeFocalLength:   f,
		HorizontalFieldOfView: ComputeFieldOfView(size, f, false),
		VerticalFieldOfView:   ComputeFieldOfView(size, f, true),
		ViewTransform:         view,
		CameraTransform:       camera,
	}, nil
}

// applyCustomScale divides the translation of the view transform by scale.
func applyCustomScale(view spatialmath.Transform, scale float64) spatialmath.Transform {
	return view.WithTranslation(view.Translation().Mul(1 / scale))
}

// applyCustomOrigin shifts the world frame so the calibrated origin lands at offset.
func applyCustomOrigin(view spatialmath.Transform, offset r3.Vector) spatialmath.Transform {
	return view.Mul(spatialmath.NewTranslation(offset.Mul(-1)))
}

// Position returns the camera centre in world coordinates.
func (cp *CameraParameters) Position() r3.Vector {
	return cp.CameraTransform.Translation()
}

// Rotation returns the world to camera rotation.
func (cp *CameraParameters) Rotation() *spatialmath.RotationMatrix {
	return cp.ViewTransform.Rotation()
}

// Project maps a world point to the image plane. The boolean is false for points that are
// not in front of the camera.
func (cp *CameraParameters) Project(p r3.Vector) (transform.ImagePlanePoint, bool) {
	q := cp.ViewTransform.Apply(p)
	if q.Z >= 0 {
		return transform.ImagePlanePoint{}, false
	}
	return transform.NewImagePlanePoint(
		cp.PrincipalPoint.X+cp.RelativeFocalLength*q.X/-q.Z,
		cp.PrincipalPoint.Y+cp.RelativeFocalLength*q.Y/-q.Z,
	), true
}

// ProjectRelative is Project followed by conversion to the relative frame.
func (cp *CameraParameters) ProjectRelative(p r3.Vector) (transform.RelativePoint, bool) {
	ip, ok := cp.Project(p)
	if !ok {
		return transform.RelativePoint{}, false
	}
	return cp.ImageSize.ToRelative(ip), true
}

// ProjectionMatrix returns a perspective matrix with the given clip planes that maps camera
// space to homogeneous image plane coordinates, principal point shift included.
func (cp *CameraParameters) ProjectionMatrix(near, far float64) mgl64.Mat4 {
	fov := 2 * math.Atan(1/cp.RelativeFocalLength)
	m := mgl64.Perspective(fov, 1, near, far)
	m.Set(0, 2, -cp.PrincipalPoint.X)
	m.Set(1, 2, -cp.PrincipalPoint.Y)
	return m
}

// ModelViewProjection returns ProjectionMatrix(near, far) times the view transform.
func (cp *CameraParameters) ModelViewProjection(near, far float64) mgl64.Mat4 {
	return cp.ProjectionMatrix(near, far).Mul4(cp.ViewTransform.Mat4())
}
