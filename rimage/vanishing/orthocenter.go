package vanishing

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrDegenerateTriangle is returned when three points are too close to collinear for their
// orthocenter to be meaningful.
var ErrDegenerateTriangle = errors.New("degenerate triangle")

// TriangleOrthocenter returns the intersection of the altitudes of triangle abc.
//
// With side lengths la = |bc|, lb = |ca|, lc = |ab| and the Conway products
// sA = (lb^2 + lc^2 - la^2)/2 (and cyclic), the orthocenter has barycentric weights
// (sB*sC, sC*sA, sA*sB). Their sum is a quarter of Heron's radicand, which is checked
// against eps relative to the perimeter.
func TriangleOrthocenter(a, b, c r2.Point, eps float64) (r2.Point, error) {
	la := b.Sub(c).Norm()
	lb := c.Sub(a).Norm()
	lc := a.Sub(b).Norm()

	perimeter := la + lb + lc
	radicand := perimeter * (-la + lb + lc) * (la - lb + lc) * (la + lb - lc)
	if math.IsNaN(radicand) || math.IsInf(perimeter, 0) || radicand <= eps*math.Pow(perimeter, 4) {
		return r2.Point{}, errors.Wrapf(ErrDegenerateTriangle, "vertices %v %v %v", a, b, c)
	}

	la2, lb2, lc2 := la*la, lb*lb, lc*lc
	sA := (lb2 + lc2 - la2) / 2
	sB := (lc2 + la2 - lb2) / 2
	sC := (la2 + lb2 - lc2) / 2

	wa, wb, wc := sB*sC, sC*sA, sA*sB
	sum := wa + wb + wc
	return a.Mul(wa).Add(b.Mul(wb)).Add(c.Mul(wc)).Mul(1 / sum), nil
}
