package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// DefaultEpsilon is the degeneracy threshold used by callers that have no better estimate
// for the scale of their inputs. Functions in this package never read it implicitly.
const DefaultEpsilon = 1e-8

var (
	// ErrDegenerateLines is returned when two segments do not define a unique intersection,
	// either because one of them has no length or because they are parallel.
	ErrDegenerateLines = errors.New("degenerate lines")
	// ErrDegenerateVector is returned when a vector is too short to be normalized.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrParallelRay is returned when a ray never meets the plane or line it is tested against.
	ErrParallelRay = errors.New("ray is parallel to target")
)

// LineSegment is an ordered pair of 2D points. The coordinate frame of the points is
// owned by the caller.
type LineSegment struct {
	A r2.Point `json:"a"`
	B r2.Point `json:"b"`
}

// Length returns the euclidean length of the segment.
func (l LineSegment) Length() float64 {
	return l.B.Sub(l.A).Norm()
}

// Direction returns the vector from A to B.
func (l LineSegment) Direction() r2.Point {
	return l.B.Sub(l.A)
}

// LineIntersection returns the intersection of the infinite lines through each segment.
func LineIntersection(l1, l2 LineSegment, eps float64) (r2.Point, error) {
	if l1.Length() < eps {
		return r2.Point{}, errors.Wrap(ErrDegenerateLines, "first segment has no length")
	}
	if l2.Length() < eps {
		return r2.Point{}, errors.Wrap(ErrDegenerateLines, "second segment has no length")
	}
	x1, y1 := l1.A.X, l1.A.Y
	x2, y2 := l1.B.X, l1.B.Y
	x3, y3 := l2.A.X, l2.A.Y
	x4, y4 := l2.B.X, l2.B.Y

	denom := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if math.Abs(denom) < eps {
		return r2.Point{}, errors.Wrap(ErrDegenerateLines, "segments are parallel")
	}
	a := x1*y2 - y1*x2
	b := x3*y4 - y3*x4
	return r2.Point{
		X: (a*(x3-x4) - (x1-x2)*b) / denom,
		Y: (a*(y3-y4) - (y1-y2)*b) / denom,
	}, nil
}

// Normalize returns v scaled to unit length.
func Normalize(v r3.Vector, eps float64) (r3.Vector, error) {
	n := v.Norm()
	if n < eps {
		return r3.Vector{}, errors.Wrapf(ErrDegenerateVector, "cannot normalize vector of length %g", n)
	}
	return v.Mul(1 / n), nil
}

// ProjectPointOntoLine returns the orthogonal projection of p onto the infinite line through a and b.
func ProjectPointOntoLine(a, b, p r2.Point, eps float64) (r2.Point, error) {
	dir := b.Sub(a)
	n := dir.Norm()
	if n < eps {
		return r2.Point{}, errors.Wrap(ErrDegenerateVector, "line endpoints coincide")
	}
	dir = dir.Mul(1 / n)
	return a.Add(dir.Mul(dir.Dot(p.Sub(a)))), nil
}

// RayPlaneIntersection intersects the ray origin + t*dir with the plane through planePt
// with the given normal. Negative t is allowed; callers decide whether the hit is behind the origin.
func RayPlaneIntersection(origin, dir, planePt, normal r3.Vector, eps float64) (r3.Vector, error) {
	denom := normal.Dot(dir)
	if math.Abs(denom) < eps {
		return r3.Vector{}, errors.Wrap(ErrParallelRay, "ray lies parallel to plane")
	}
	t := normal.Dot(planePt.Sub(origin)) / denom
	return origin.Add(dir.Mul(t)), nil
}

// ClosestPointsBetweenLines returns the mutually closest points of the infinite lines
// p + s*u and q + t*v, in that order.
func ClosestPointsBetweenLines(p, u, q, v r3.Vector, eps float64) (r3.Vector, r3.Vector, error) {
	w0 := p.Sub(q)
	a := u.Dot(u)
	b := u.Dot(v)
	c := v.Dot(v)
	d := u.Dot(w0)
	e := v.Dot(w0)
	denom := a*c - b*b
	if denom < eps*a*c || denom == 0 {
		return r3.Vector{}, r3.Vector{}, errors.Wrap(ErrParallelRay, "lines are parallel")
	}
	s := (b*e - c*d) / denom
	t := (a*e - b*d) / denom
	return p.Add(u.Mul(s)), q.Add(v.Mul(t)), nil
}

// PlaneNormal returns the (unnormalized) normal of the plane through three points,
// following the right hand rule on p0 -> p1 -> p2.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	return p1.Sub(p0).Cross(p2.Sub(p0))
}
