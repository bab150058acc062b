package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/perspective/utils"
)

// QuatToEuler converts a unit quaternion to roll, pitch and yaw in degrees.
func QuatToEuler(q quat.Number) []float64 {
	w := q.Real
	x := q.Imag
	y := q.Jmag
	z := q.Kmag

	angles := []float64{
		math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
		math.Asin(utils.Clamp(2*(w*y-x*z), -1, 1)),
		math.Atan2(2*(w*z+y*x), 1-2*(y*y+z*z)),
	}
	for i := range angles {
		angles[i] = utils.RadToDeg(angles[i])
	}
	return angles
}

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}
