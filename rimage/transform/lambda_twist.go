package transform

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/perspective/spatialmath"
	"go.viam.com/perspective/utils"
)

var (
	// ErrCollinearWorldPoints is returned when the three world points do not span a plane.
	ErrCollinearWorldPoints = errors.New("world points are collinear")
	// ErrNoRealRoots is returned when no real depth triple satisfies the depth equations.
	ErrNoRealRoots = errors.New("no real solution for the point depths")
	// ErrAllCandidatesBehindCamera is returned when every real solution puts a point behind the camera.
	ErrAllCandidatesBehindCamera = errors.New("all candidate poses place a point behind the camera")
)

const (
	// gaussNewtonIterations bounds the polish applied to each depth triple.
	gaussNewtonIterations = 5
	// maxDepthResidual is the largest residual, relative to the longest squared world
	// distance, with which a refined depth triple still counts as a solution.
	maxDepthResidual = 1e-6
	// rotationTolerance and rotationDrift are handed to spatialmath.EnsureOrthonormal.
	rotationTolerance = 1e-9
	rotationDrift     = 1e-6
)

// Correspondence pairs a world point with its observed image plane position.
type Correspondence struct {
	World r3.Vector
	Image ImagePlanePoint
}

// P3PProblem is a minimal perspective pose problem: three world points, their image plane
// projections and the camera intrinsics. Validation correspondences, when present, are used
// only to choose between the candidate poses.
type P3PProblem struct {
	WorldPoints    [3]r3.Vector
	ImagePoints    [3]ImagePlanePoint
	FocalLength    float64
	PrincipalPoint ImagePlanePoint
	Validation     []Correspondence
}

func (p *P3PProblem) correspondences() []Correspondence {
	corrs := make([]Correspondence, 0, 3)
	for i := range p.WorldPoints {
		corrs = append(corrs, Correspondence{World: p.WorldPoints[i], Image: p.ImagePoints[i]})
	}
	return corrs
}

// SolveP3P returns the single pose that best explains the problem. Candidates are ranked by
// reprojection error over the validation correspondences, or over the three input
// correspondences when there are none; equal errors are resolved by the depth residual.
func SolveP3P(problem P3PProblem, eps float64) (*CamPose, error) {
	candidates, err := problem.candidatePoses(eps)
	if err != nil {
		return nil, err
	}
	scoring := problem.Validation
	if len(scoring) == 0 {
		scoring = problem.correspondences()
	}
	var best *CamPose
	for _, c := range candidates {
		c.ReprojectionError = c.reprojectionError(scoring, problem.FocalLength, problem.PrincipalPoint.Point)
		switch {
		case best == nil:
			best = c
		case c.ReprojectionError < best.ReprojectionError-eps:
			best = c
		case utils.Float64AlmostEqual(c.ReprojectionError, best.ReprojectionError, eps) && c.Residual < best.Residual:
			best = c
		case math.IsInf(best.ReprojectionError, 1) && math.IsInf(c.ReprojectionError, 1) && c.Residual < best.Residual:
			best = c
		}
	}
	return best, nil
}

// candidatePoses returns every physically valid pose, all depths strictly positive.
func (p *P3PProblem) candidatePoses(eps float64) ([]*CamPose, error) {
	if p.FocalLength <= 0 || math.IsNaN(p.FocalLength) || math.IsInf(p.FocalLength, 0) {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length %v", p.FocalLength))
	}
	tri := spatialmath.NewTriangle(p.WorldPoints[0], p.WorldPoints[1], p.WorldPoints[2])
	if tri.IsDegenerate(eps) {
		return nil, errors.Wrapf(ErrCollinearWorldPoints, "%v", p.WorldPoints)
	}

	var bearings [3]r3.Vector
	for i, ip := range p.ImagePoints {
		ray := r3.Vector{X: ip.X - p.PrincipalPoint.X, Y: ip.Y - p.PrincipalPoint.Y, Z: -p.FocalLength}
		b, err := spatialmath.Normalize(ray, eps)
		if err != nil {
			return nil, err
		}
		bearings[i] = b
	}

	solutions, err := lambdaTwistDepths(p.WorldPoints, bearings, eps)
	if err != nil {
		return nil, err
	}

	poses := make([]*CamPose, 0, len(solutions))
	for _, sol := range solutions {
		cameraPoints := make([]r3.Vector, 3)
		for i := range cameraPoints {
			cameraPoints[i] = bearings[i].Mul(sol.depths[i])
		}
		rot, trans, err := absoluteOrientation(p.WorldPoints[:], cameraPoints)
		if err != nil {
			return nil, err
		}
		rot, err = spatialmath.EnsureOrthonormal(rot, rotationTolerance, rotationDrift)
		if err != nil {
			return nil, err
		}
		poses = append(poses, &CamPose{
			Rotation:    rot,
			Translation: trans,
			Depths:      sol.depths,
			Residual:    sol.residual,
		})
	}
	return poses, nil
}

type depthSolution struct {
	depths   [3]float64
	residual float64
}

// depthEquations holds the law of cosines system
//
//	l_i^2 + l_j^2 + b_ij*l_i*l_j = a_ij
//
// for the unknown depths l along the unit bearings, with a_ij the squared world distances and
// b_ij = -2*cos(angle between bearings i and j).
type depthEquations struct {
	a12, a13, a23 float64
	b12, b13, b23 float64
}

func (eq depthEquations) residuals(l [3]float64) [3]float64 {
	return [3]float64{
		l[0]*l[0] + l[1]*l[1] + eq.b12*l[0]*l[1] - eq.a12,
		l[0]*l[0] + l[2]*l[2] + eq.b13*l[0]*l[2] - eq.a13,
		l[1]*l[1] + l[2]*l[2] + eq.b23*l[1]*l[2] - eq.a23,
	}
}

func (eq depthEquations) residualNorm(l [3]float64) float64 {
	r := eq.residuals(l)
	return math.Abs(r[0]) + math.Abs(r[1]) + math.Abs(r[2])
}

// refine runs a fixed number of Gauss-Newton steps, stopping early once a step stops helping.
func (eq depthEquations) refine(l [3]float64) [3]float64 {
	for i := 0; i < gaussNewtonIterations; i++ {
		current := eq.residualNorm(l)
		if current == 0 {
			break
		}
		r := eq.residuals(l)
		jac := mat.NewDense(3, 3, []float64{
			2*l[0] + eq.b12*l[1], 2*l[1] + eq.b12*l[0], 0,
			2*l[0] + eq.b13*l[2], 0, 2*l[2] + eq.b13*l[0],
			0, 2*l[1] + eq.b23*l[2], 2*l[2] + eq.b23*l[1],
		})
		var step mat.VecDense
		if err := step.SolveVec(jac, mat.NewVecDense(3, r[:])); err != nil {
			break
		}
		next := [3]float64{l[0] - step.AtVec(0), l[1] - step.AtVec(1), l[2] - step.AtVec(2)}
		if eq.residualNorm(next) >= current {
			break
		}
		l = next
	}
	return l
}

// lambdaTwistDepths solves for the depths of three world points x along unit bearings y
// (Persson and Nordberg, "Lambda Twist", ECCV 2018). The two quadratic forms D1 and D2 vanish
// at the solution; a root g of det(D1 - g*D2) makes D0 = D1 - g*D2 a pair of planes, each of
// which reduces the problem to a quadratic.
func lambdaTwistDepths(x, y [3]r3.Vector, eps float64) ([]depthSolution, error) {
	eq := depthEquations{
		a12: x[0].Sub(x[1]).Norm2(),
		a13: x[0].Sub(x[2]).Norm2(),
		a23: x[1].Sub(x[2]).Norm2(),
		b12: -2 * y[0].Dot(y[1]),
		b13: -2 * y[0].Dot(y[2]),
		b23: -2 * y[1].Dot(y[2]),
	}

	d1 := [3][3]float64{
		{eq.a23, 0.5 * eq.a23 * eq.b12, 0},
		{0.5 * eq.a23 * eq.b12, eq.a23 - eq.a12, -0.5 * eq.a12 * eq.b23},
		{0, -0.5 * eq.a12 * eq.b23, -eq.a12},
	}
	d2 := [3][3]float64{
		{eq.a23, 0, 0.5 * eq.a23 * eq.b13},
		{0, -eq.a13, -0.5 * eq.a13 * eq.b23},
		{0.5 * eq.a23 * eq.b13, -0.5 * eq.a13 * eq.b23, eq.a23 - eq.a13},
	}

	c3, c2, c1, c0 := pencilDeterminant(d1, d2)
	roots := utils.SolveCubic(c3, c2, c1, c0)

	scale := math.Max(eq.a12, math.Max(eq.a13, eq.a23))
	realTriples := 0
	var solutions []depthSolution
	for _, g := range roots {
		d0 := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				d0.SetSym(i, j, d1[i][j]-g*d2[i][j])
			}
		}
		var eig mat.EigenSym
		if ok := eig.Factorize(d0, true); !ok {
			continue
		}
		values := eig.Values(nil)
		var vectors mat.Dense
		eig.VectorsTo(&vectors)

		order := []int{0, 1, 2}
		sort.SliceStable(order, func(i, j int) bool {
			return math.Abs(values[order[i]]) > math.Abs(values[order[j]])
		})
		sigma0, sigma1 := values[order[0]], values[order[1]]
		if sigma0 == 0 {
			continue
		}
		ratio := -sigma1 / sigma0
		if ratio < -eps {
			// both remaining eigenvalues share a sign, the degenerate conic has no real lines
			continue
		}
		v := math.Sqrt(math.Max(0, ratio))
		e0 := mat.Col(nil, order[0], &vectors)
		e1 := mat.Col(nil, order[1], &vectors)

		for _, s := range []float64{v, -v} {
			// the plane (e0 - s*e1) . l = 0, written as l1 = w0*l2 + w1*l3
			denom := s*e1[0] - e0[0]
			if math.Abs(denom) < eps {
				continue
			}
			w0 := (e0[1] - s*e1[1]) / denom
			w1 := (e0[2] - s*e1[2]) / denom

			// a13*E12 - a12*E13 = 0 with l2 = 1 and l3 = tau
			qa := (eq.a13-eq.a12)*w1*w1 - eq.a12*eq.b13*w1 - eq.a12
			qb := eq.a13*eq.b12*w1 - eq.a12*eq.b13*w0 - 2*w0*w1*(eq.a12-eq.a13)
			qc := (eq.a13-eq.a12)*w0*w0 + eq.a13*eq.b12*w0 + eq.a13

			for _, tau := range utils.SolveQuadratic(qa, qb, qc) {
				den := tau*(eq.b23+tau) + 1
				if den <= 0 {
					continue
				}
				l2 := math.Sqrt(eq.a23 / den)
				l3 := tau * l2
				l1 := w0*l2 + w1*l3
				depths := eq.refine([3]float64{l1, l2, l3})
				residual := eq.residualNorm(depths) / scale
				if !(residual <= maxDepthResidual) {
					// a root of the pencil that does not satisfy the original equations
					continue
				}
				realTriples++
				if depths[0] <= eps || depths[1] <= eps || depths[2] <= eps {
					continue
				}
				if containsDepths(solutions, depths, eps) {
					continue
				}
				solutions = append(solutions, depthSolution{
					depths:   depths,
					residual: residual,
				})
			}
		}
	}

	if realTriples == 0 {
		return nil, ErrNoRealRoots
	}
	if len(solutions) == 0 {
		return nil, ErrAllCandidatesBehindCamera
	}
	return solutions, nil
}

func containsDepths(solutions []depthSolution, depths [3]float64, eps float64) bool {
	for _, sol := range solutions {
		same := true
		for i := range depths {
			if math.Abs(sol.depths[i]-depths[i]) > eps*math.Max(1, depths[i]) {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// pencilDeterminant returns c3, c2, c1, c0 such that
// det(A - g*B) = c3*g^3 + c2*g^2 + c1*g + c0, from the identity
// det(A + tB) = det(A) + t*tr(adj(A)*B) + t^2*tr(A*adj(B)) + t^3*det(B).
func pencilDeterminant(a, b [3][3]float64) (float64, float64, float64, float64) {
	return -det3(b), traceProduct(a, adjugate3(b)), -traceProduct(adjugate3(a), b), det3(a)
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func adjugate3(m [3][3]float64) [3][3]float64 {
	return [3][3]float64{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
}

// traceProduct returns tr(a*b).
func traceProduct(a, b [3][3]float64) float64 {
	tr := 0.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tr += a[i][j] * b[j][i]
		}
	}
	return tr
}
