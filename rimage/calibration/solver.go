package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/spatialmath"
	"go.viam.com/perspective/utils"
)

// ComputeFocalLength returns the relative focal length of a camera with principal point p
// whose two orthogonal world directions vanish at fu and fv.
func ComputeFocalLength(fu, fv, p r2.Point, eps float64) (float64, error) {
	puv, err := spatialmath.ProjectPointOntoLine(fu, fv, p, eps)
	if err != nil {
		return 0, err
	}
	fSq := fv.Sub(puv).Norm()*fu.Sub(puv).Norm() - p.Sub(puv).Dot(p.Sub(puv))
	if fSq <= 0 {
		return 0, errors.Wrapf(ErrNonPositiveFocalLengthSquared, "f^2 = %g", fSq)
	}
	return math.Sqrt(fSq), nil
}

// ComputeFieldOfView returns the horizontal or vertical field of view in radians of a camera
// with relative focal length f. The image plane spans 1 on the longer side and the aspect
// ratio on the shorter one.
func ComputeFieldOfView(size transform.ImageSize, f float64, vertical bool) float64 {
	aspect := size.AspectRatio()
	d := math.Min(1, aspect)
	if vertical {
		d = math.Min(1, 1/aspect)
	}
	return 2 * math.Atan(d/f)
}

// FocalLengthFromFieldOfView inverts ComputeFieldOfView for a horizontal field of view.
func FocalLengthFromFieldOfView(size transform.ImageSize, horizontalFOV float64) (float64, error) {
	if !(horizontalFOV > 0 && horizontalFOV < math.Pi) {
		return 0, errors.Wrap(ErrInvalidFieldOfView, utils.NewOutOfRangeError("horizontal field of view", horizontalFOV, 0, math.Pi).Error())
	}
	return math.Min(1, size.AspectRatio()) / math.Tan(horizontalFOV/2), nil
}

// ComputeCameraRotationMatrix returns the rotation whose first two columns are the camera
// space directions towards fu and fv and whose third column completes a right handed basis.
// The result is checked against tol and repaired by SVD when it drifted by at most maxDrift.
func ComputeCameraRotationMatrix(fu, fv r2.Point, f float64, p r2.Point, tol Tolerances) (*spatialmath.RotationMatrix, error) {
	u, err := spatialmath.Normalize(r3.Vector{X: fu.X - p.X, Y: fu.Y - p.Y, Z: -f}, tol.Epsilon)
	if err != nil {
		return nil, err
	}
	v, err := spatialmath.Normalize(r3.Vector{X: fv.X - p.X, Y: fv.Y - p.Y, Z: -f}, tol.Epsilon)
	if err != nil {
		return nil, err
	}
	rot := spatialmath.NewRotationMatrixFromColumns(u, v, u.Cross(v))
	return spatialmath.EnsureOrthonormal(rot, tol.Orthonormal, tol.MaxOrthonormalDrift)
}

// defaultOriginDistance is the depth at which the origin is placed before any scaling.
const defaultOriginDistance = 10

// computeTranslationVector places the world origin on the ray through the origin control
// point, defaultOriginDistance in front of the camera.
func computeTranslationVector(origin transform.ImagePlanePoint, pp r2.Point, f float64) r3.Vector {
	k := 1 / f
	return r3.Vector{
		X: k * (origin.X - pp.X),
		Y: k * (origin.Y - pp.Y),
		Z: -1,
	}.Mul(defaultOriginDistance)
}

// cameraRay returns the camera centre and the world direction of the ray through an image
// plane point.
func cameraRay(view spatialmath.Transform, p, pp r2.Point, f float64) (r3.Vector, r3.Vector) {
	rot := view.Rotation()
	centre := rot.Transpose().MulVec(view.Translation()).Mul(-1)
	dir := rot.Transpose().MulVec(r3.Vector{X: p.X - pp.X, Y: p.Y - pp.Y, Z: -f})
	return centre, dir
}

// referenceDistanceScale measures the distance between the two reference handles under the
// current view and returns the factor that makes it equal to ref.Length.
//
// The anchor is where the ray through the anchor control point meets the plane through the
// world origin orthogonal to the reference axis. Each handle is the point of the axis line
// through the anchor closest to the ray through that handle.
func referenceDistanceScale(
	view spatialmath.Transform,
	pp r2.Point,
	f float64,
	ref ReferenceDistance,
	anchor transform.ImagePlanePoint,
	handles [2]transform.ImagePlanePoint,
	eps float64,
) (float64, error) {
	axis := ref.Axis.Vector()
	centre, dir := cameraRay(view, anchor.Point, pp, f)
	anchor3D, err := spatialmath.RayPlaneIntersection(centre, dir, r3.Vector{}, axis, eps)
	if err != nil {
		return 0, errors.Wrap(ErrDegenerateReferenceDistance, err.Error())
	}
	var points [2]r3.Vector
	for i, h := range handles {
		_, hdir := cameraRay(view, h.Point, pp, f)
		onAxis, _, err := spatialmath.ClosestPointsBetweenLines(anchor3D, axis, centre, hdir, eps)
		if err != nil {
			return 0, errors.Wrapf(ErrDegenerateReferenceDistance, "handle %d: %v", i, err)
		}
		points[i] = onAxis
	}
	d := points[0].Distance(points[1])
	if d < eps {
		return 0, errors.Wrapf(ErrDegenerateReferenceDistance, "handles are %g apart", d)
	}
	return ref.Length / d, nil
}
