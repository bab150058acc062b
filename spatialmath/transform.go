package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrSingularTransform is returned when inverting a transform with a vanishing determinant.
var ErrSingularTransform = errors.New("transform is not invertible")

// singularDeterminant is the determinant magnitude below which a transform is treated as singular.
const singularDeterminant = 1e-12

// Transform is a 4x4 affine matrix. It is used both for view transforms (world to camera)
// and camera transforms (camera to world). The zero value is not a valid transform, use
// NewIdentityTransform.
type Transform struct {
	mat mgl64.Mat4
}

// NewIdentityTransform returns the identity.
func NewIdentityTransform() Transform {
	return Transform{mgl64.Ident4()}
}

// NewTransform builds the rigid transform x -> R*x + t.
func NewTransform(rot *RotationMatrix, t r3.Vector) Transform {
	m := mgl64.Ident4()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, rot.At(i, j))
		}
	}
	m.Set(0, 3, t.X)
	m.Set(1, 3, t.Y)
	m.Set(2, 3, t.Z)
	return Transform{m}
}

// NewTranslation builds the pure translation x -> x + t.
func NewTranslation(t r3.Vector) Transform {
	return Transform{mgl64.Translate3D(t.X, t.Y, t.Z)}
}

// NewTransformFromRows builds a transform from row-major values.
func NewTransformFromRows(rows [4][4]float64) Transform {
	var m mgl64.Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, rows[i][j])
		}
	}
	return Transform{m}
}

// At returns the value at the given row and column.
func (t Transform) At(row, col int) float64 {
	return t.mat.At(row, col)
}

// Mat4 returns the underlying matrix.
func (t Transform) Mat4() mgl64.Mat4 {
	return t.mat
}

// Rows returns the matrix in row-major order.
func (t Transform) Rows() [4][4]float64 {
	var rows [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			rows[i][j] = t.mat.At(i, j)
		}
	}
	return rows
}

// Mul returns t * other, the transform that applies other first and t second.
func (t Transform) Mul(other Transform) Transform {
	return Transform{t.mat.Mul4(other.mat)}
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() (Transform, error) {
	if det := t.mat.Det(); math.Abs(det) < singularDeterminant {
		return Transform{}, errors.Wrapf(ErrSingularTransform, "determinant %g", det)
	}
	return Transform{t.mat.Inv()}, nil
}

// Rotation returns the upper left 3x3 block.
func (t Transform) Rotation() *RotationMatrix {
	rm := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.mat[3*i+j] = t.mat.At(i, j)
		}
	}
	return rm
}

// Translation returns the fourth column.
func (t Transform) Translation() r3.Vector {
	c := t.mat.Col(3)
	return r3.Vector{X: c[0], Y: c[1], Z: c[2]}
}

// WithTranslation returns a copy of t with the fourth column replaced.
func (t Transform) WithTranslation(v r3.Vector) Transform {
	m := t.mat
	m.Set(0, 3, v.X)
	m.Set(1, 3, v.Y)
	m.Set(2, 3, v.Z)
	return Transform{m}
}

// Apply transforms a point.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	v := t.mat.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// ApplyDirection transforms a direction, ignoring translation.
func (t Transform) ApplyDirection(d r3.Vector) r3.Vector {
	v := t.mat.Mul4x1(mgl64.Vec4{d.X, d.Y, d.Z, 0})
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// AlmostEqual compares two transforms entry by entry.
func (t Transform) AlmostEqual(other Transform, tol float64) bool {
	return t.mat.ApproxEqualThreshold(other.mat, tol)
}
