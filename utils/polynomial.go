package utils

import (
	"math"
	"sort"
)

// repeatedRootTolerance is the relative size of the cubic discriminant under which
// two roots are treated as one repeated root.
const repeatedRootTolerance = 1e-12

// SolveQuadratic returns the real roots of a*x^2 + b*x + c = 0 in ascending order.
// A repeated root is reported once. Degenerate leading coefficients fall back to the
// linear equation; an identically zero polynomial has no isolated roots and returns nil.
func SolveQuadratic(a, b, c float64) []float64 {
	if a == 0 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	if disc == 0 {
		return []float64{-b / (2 * a)}
	}
	// numerically stable form, avoids cancellation between -b and sqrt(disc)
	q := -0.5 * (b + math.Copysign(math.Sqrt(disc), b))
	r1 := q / a
	r2 := c / q
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	return []float64{r1, r2}
}

// SolveCubic returns the real roots of a*x^3 + b*x^2 + c*x + d = 0 in ascending order
// using the closed form (Cardano for one real root, the trigonometric form for three).
// Repeated roots are reported once, so the result holds between zero and three values.
func SolveCubic(a, b, c, d float64) []float64 {
	if a == 0 {
		return SolveQuadratic(b, c, d)
	}
	bn, cn, dn := b/a, c/a, d/a

	// depressed cubic t^3 + p*t + q = 0 with x = t + shift
	shift := -bn / 3
	p := cn - bn*bn/3
	q := 2*bn*bn*bn/27 - bn*cn/3 + dn

	halfQ := q / 2
	thirdP := p / 3
	disc := halfQ*halfQ + thirdP*thirdP*thirdP
	scale := math.Max(halfQ*halfQ, math.Abs(thirdP*thirdP*thirdP))

	var roots []float64
	switch {
	case scale == 0:
		roots = []float64{shift}
	case math.Abs(disc) <= repeatedRootTolerance*scale:
		u := CubeRoot(-halfQ)
		roots = []float64{2*u + shift, -u + shift}
	case disc > 0:
		u := CubeRoot(-halfQ - math.Copysign(math.Sqrt(disc), halfQ))
		t := 0.0
		if u != 0 {
			t = u - thirdP/u
		}
		roots = []float64{t + shift}
	default:
		r := 2 * math.Sqrt(-thirdP)
		phi := math.Acos(Clamp(3*q/(2*p)*math.Sqrt(-3/p), -1, 1)) / 3
		roots = make([]float64, 0, 3)
		for k := 0; k < 3; k++ {
			roots = append(roots, r*math.Cos(phi-2*math.Pi*float64(k)/3)+shift)
		}
	}
	sort.Float64s(roots)
	return dedupeSorted(roots)
}

func dedupeSorted(roots []float64) []float64 {
	out := roots[:0]
	for i, r := range roots {
		if i > 0 && r == out[len(out)-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}
