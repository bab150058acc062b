package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// ErrRotationNotOrthonormal is returned when a 3x3 block drifted too far from a rotation to be repaired.
var ErrRotationNotOrthonormal = errors.New("rotation matrix is not orthonormal")

// RotationMatrix is a 3x3 matrix stored in row-major order. Values are immutable; every
// operation returns a new matrix.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from nine row-major values. The values are not
// checked for orthonormality, use IsOrthonormal or EnsureOrthonormal for that.
func NewRotationMatrix(data []float64) (*RotationMatrix, error) {
	if len(data) != 9 {
		return nil, errors.Errorf("rotation matrix needs 9 values, got %d", len(data))
	}
	rm := &RotationMatrix{}
	copy(rm.mat[:], data)
	return rm, nil
}

// NewRotationMatrixFromColumns builds the matrix whose columns are the given vectors.
func NewRotationMatrixFromColumns(c0, c1, c2 r3.Vector) *RotationMatrix {
	return &RotationMatrix{[9]float64{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	}}
}

// NewRotationMatrixFromRows builds the matrix whose rows are the given vectors.
func NewRotationMatrixFromRows(r0, r1, r2 r3.Vector) *RotationMatrix {
	return &RotationMatrix{[9]float64{
		r0.X, r0.Y, r0.Z,
		r1.X, r1.Y, r1.Z,
		r2.X, r2.Y, r2.Z,
	}}
}

// NewIdentityRotation returns the identity rotation.
func NewIdentityRotation() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// NewRotationMatrixFromAxisAngle returns the rotation of theta radians about axis (Rodrigues' formula).
// A zero axis yields the identity.
func NewRotationMatrixFromAxisAngle(axis r3.Vector, theta float64) *RotationMatrix {
	if axis.Norm2() == 0 {
		return NewIdentityRotation()
	}
	k := axis.Normalize()
	s, c := math.Sin(theta), math.Cos(theta)
	v := 1 - c
	return &RotationMatrix{[9]float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	}}
}

func newRotationMatrixFromDense(m mat.Matrix) *RotationMatrix {
	rm := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.mat[3*i+j] = m.At(i, j)
		}
	}
	return rm
}

// At returns the value at the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns a row as a vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns a column as a vector.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Mul returns rm * other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	out := &RotationMatrix{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[3*i+j] = rm.Row(i).Dot(other.Col(j))
		}
	}
	return out
}

// MulVec returns rm * v.
func (rm *RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{X: rm.Row(0).Dot(v), Y: rm.Row(1).Dot(v), Z: rm.Row(2).Dot(v)}
}

// Transpose returns the transpose, which is the inverse of a proper rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	return NewRotationMatrixFromRows(rm.Col(0), rm.Col(1), rm.Col(2))
}

// Det returns the determinant.
func (rm *RotationMatrix) Det() float64 {
	return rm.Row(0).Dot(rm.Row(1).Cross(rm.Row(2)))
}

// Dense returns a gonum copy of the matrix.
func (rm *RotationMatrix) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, rm.mat[:])
	return mat.NewDense(3, 3, data)
}

// OrthonormalityError returns the largest absolute entry of R^T*R - I.
func (rm *RotationMatrix) OrthonormalityError() float64 {
	worst := 0.
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			expected := 0.
			if i == j {
				expected = 1
			}
			worst = math.Max(worst, math.Abs(rm.Col(i).Dot(rm.Col(j))-expected))
		}
	}
	return worst
}

// IsOrthonormal reports whether the columns are unit length and mutually orthogonal within tol
// and the matrix is a proper rotation (no reflection).
func (rm *RotationMatrix) IsOrthonormal(tol float64) bool {
	return rm.OrthonormalityError() <= tol && math.Abs(rm.Det()-1) <= tol
}

// Orthonormalize returns the closest proper rotation in the Frobenius sense, U*V^T from the SVD of rm.
func (rm *RotationMatrix) Orthonormalize() (*RotationMatrix, error) {
	var svd mat.SVD
	if ok := svd.Factorize(rm.Dense(), mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrRotationNotOrthonormal, "singular value decomposition failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return newRotationMatrixFromDense(&r), nil
}

// EnsureOrthonormal returns rm unchanged when it is orthonormal within tol, a repaired copy when
// its error is at most maxDrift, and ErrRotationNotOrthonormal otherwise.
func EnsureOrthonormal(rm *RotationMatrix, tol, maxDrift float64) (*RotationMatrix, error) {
	if rm.IsOrthonormal(tol) {
		return rm, nil
	}
	drift := rm.OrthonormalityError()
	if drift > maxDrift || rm.Det() <= 0 {
		return nil, errors.Wrapf(ErrRotationNotOrthonormal, "drift %g exceeds %g", drift, maxDrift)
	}
	return rm.Orthonormalize()
}

// Quaternion converts the rotation to a unit quaternion.
func (rm *RotationMatrix) Quaternion() quat.Number {
	m := func(r, c int) float64 { return rm.At(r, c) }
	tr := m(0, 0) + m(1, 1) + m(2, 2)
	var q quat.Number
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: 0.25 * s, Imag: (m(2, 1) - m(1, 2)) / s, Jmag: (m(0, 2) - m(2, 0)) / s, Kmag: (m(1, 0) - m(0, 1)) / s}
	case m(0, 0) > m(1, 1) && m(0, 0) > m(2, 2):
		s := 2 * math.Sqrt(1+m(0, 0)-m(1, 1)-m(2, 2))
		q = quat.Number{Real: (m(2, 1) - m(1, 2)) / s, Imag: 0.25 * s, Jmag: (m(0, 1) + m(1, 0)) / s, Kmag: (m(0, 2) + m(2, 0)) / s}
	case m(1, 1) > m(2, 2):
		s := 2 * math.Sqrt(1+m(1, 1)-m(0, 0)-m(2, 2))
		q = quat.Number{Real: (m(0, 2) - m(2, 0)) / s, Imag: (m(0, 1) + m(1, 0)) / s, Jmag: 0.25 * s, Kmag: (m(1, 2) + m(2, 1)) / s}
	default:
		s := 2 * math.Sqrt(1+m(2, 2)-m(0, 0)-m(1, 1))
		q = quat.Number{Real: (m(1, 0) - m(0, 1)) / s, Imag: (m(0, 2) + m(2, 0)) / s, Jmag: (m(1, 2) + m(2, 1)) / s, Kmag: 0.25 * s}
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// AngleTo returns the angle in radians of the rotation taking rm to other.
func (rm *RotationMatrix) AngleTo(other *RotationMatrix) float64 {
	q := rm.Transpose().Mul(other).Quaternion()
	return 2 * math.Atan2(Norm(q), math.Abs(q.Real))
}

// AlmostEqual compares two rotations entry by entry.
func (rm *RotationMatrix) AlmostEqual(other *RotationMatrix, tol float64) bool {
	return floats.EqualApprox(rm.mat[:], other.mat[:], tol)
}
