package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Triangle is three points in space. It is used to reason about world point configurations.
type Triangle struct {
	p0 r3.Vector
	p1 r3.Vector
	p2 r3.Vector

	normal r3.Vector
}

func NewTriangle(p0, p1, p2 r3.Vector) *Triangle {
	return &Triangle{
		p0:     p0,
		p1:     p1,
		p2:     p2,
		normal: PlaneNormal(p0, p1, p2).Normalize(),
	}
}

func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

// Normal returns the unit normal, or the zero vector for a degenerate triangle.
func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

func (t *Triangle) Area() float64 {
	return 0.5 * PlaneNormal(t.p0, t.p1, t.p2).Norm()
}

func (t *Triangle) Centroid() r3.Vector {
	return t.p0.Add(t.p1).Add(t.p2).Mul(1. / 3.)
}

// IsDegenerate reports whether the triangle collapses onto a line or a point. The test is
// scale free: twice the area divided by the product of the two longest edges is the sine of the
// angle between them.
func (t *Triangle) IsDegenerate(eps float64) bool {
	e0 := t.p1.Sub(t.p0).Norm()
	e1 := t.p2.Sub(t.p1).Norm()
	e2 := t.p0.Sub(t.p2).Norm()
	longest, second := e0, e1
	if second > longest {
		longest, second = second, longest
	}
	if e2 > longest {
		longest, second = e2, longest
	} else if e2 > second {
		second = e2
	}
	if longest == 0 || second == 0 {
		return true
	}
	return 2*t.Area() <= eps*longest*second
}
