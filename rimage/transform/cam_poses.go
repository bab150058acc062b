package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/perspective/spatialmath"
)

// CamPose is a rigid world to camera transform, x_cam = Rotation*x_world + Translation,
// in a camera frame looking down -Z with y up.
type CamPose struct {
	Rotation    *spatialmath.RotationMatrix
	Translation r3.Vector

	// Depths are the distances from the camera centre to the three points the pose was solved from.
	Depths [3]float64
	// ReprojectionError is the summed image plane distance used to rank candidate poses.
	ReprojectionError float64
	// Residual is the summed absolute error of the law of cosines equations at Depths.
	Residual float64
}

// Transform returns the pose as a 4x4 view transform.
func (cp *CamPose) Transform() spatialmath.Transform {
	return spatialmath.NewTransform(cp.Rotation, cp.Translation)
}

// Apply maps a world point into the camera frame.
func (cp *CamPose) Apply(p r3.Vector) r3.Vector {
	return cp.Rotation.MulVec(p).Add(cp.Translation)
}

// Center returns the camera centre in world coordinates.
func (cp *CamPose) Center() r3.Vector {
	return cp.Rotation.Transpose().MulVec(cp.Translation).Mul(-1)
}

// Project maps a world point to the image plane of a camera with the given focal length and
// principal point. The boolean is false when the point is not in front of the camera.
func (cp *CamPose) Project(p r3.Vector, focalLength float64, principalPoint r2.Point) (r2.Point, bool) {
	return projectCameraPoint(cp.Apply(p), focalLength, principalPoint)
}

func projectCameraPoint(q r3.Vector, focalLength float64, principalPoint r2.Point) (r2.Point, bool) {
	if q.Z >= 0 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: principalPoint.X + focalLength*q.X/-q.Z,
		Y: principalPoint.Y + focalLength*q.Y/-q.Z,
	}, true
}

// reprojectionError sums the image plane distance between observed and projected points.
// A point behind the camera makes the error infinite.
func (cp *CamPose) reprojectionError(corrs []Correspondence, focalLength float64, principalPoint r2.Point) float64 {
	total := 0.
	for _, c := range corrs {
		projected, ok := cp.Project(c.World, focalLength, principalPoint)
		if !ok {
			return math.Inf(1)
		}
		total += projected.Sub(c.Image.Point).Norm()
	}
	return total
}

// absoluteOrientation returns the proper rotation R and translation t minimizing
// sum |R*src_i + t - dst_i|^2 (Kabsch). It needs at least three non-collinear points.
func absoluteOrientation(src, dst []r3.Vector) (*spatialmath.RotationMatrix, r3.Vector, error) {
	if len(src) != len(dst) || len(src) < 3 {
		return nil, r3.Vector{}, errors.Errorf("need at least 3 matching points, got %d and %d", len(src), len(dst))
	}
	srcCentroid := centroid(src)
	dstCentroid := centroid(dst)

	// cross covariance H = sum (src_i - c_src)(dst_i - c_dst)^T
	h := mat.NewDense(3, 3, nil)
	for i := range src {
		a := src[i].Sub(srcCentroid)
		b := dst[i].Sub(dstCentroid)
		outer := mat.NewDense(3, 3, []float64{
			a.X * b.X, a.X * b.Y, a.X * b.Z,
			a.Y * b.X, a.Y * b.Y, a.Y * b.Z,
			a.Z * b.X, a.Z * b.Y, a.Z * b.Z,
		})
		h.Add(h, outer)
	}
	u, v, err := performSVD(h)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	// R = V * diag(1, 1, d) * U^T with d correcting reflections
	var r mat.Dense
	r.Mul(v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(v, u.T())
	}
	rot, err := spatialmath.NewRotationMatrix(r.RawMatrix().Data)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, dstCentroid.Sub(rot.MulVec(srcCentroid)), nil
}

// performSVD returns the U and V factors of the full singular value decomposition of a.
func performSVD(a *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, nil, errors.New("failed to factorize matrix")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	return &u, &v, nil
}

func centroid(pts []r3.Vector) r3.Vector {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(len(pts)))
}
