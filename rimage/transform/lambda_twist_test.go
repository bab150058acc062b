package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/perspective/spatialmath"
)

const p3pEpsilon = 1e-8

type syntheticCamera struct {
	rotation       *spatialmath.RotationMatrix
	translation    r3.Vector
	focalLength    float64
	principalPoint ImagePlanePoint
}

func (c syntheticCamera) observe(t *testing.T, world r3.Vector) ImagePlanePoint {
	t.Helper()
	pose := &CamPose{Rotation: c.rotation, Translation: c.translation}
	p, ok := pose.Project(world, c.focalLength, c.principalPoint.Point)
	test.That(t, ok, test.ShouldBeTrue)
	return ImagePlanePoint{p}
}

func (c syntheticCamera) problem(t *testing.T, world [3]r3.Vector, validation ...r3.Vector) P3PProblem {
	t.Helper()
	prob := P3PProblem{
		WorldPoints:    world,
		FocalLength:    c.focalLength,
		PrincipalPoint: c.principalPoint,
	}
	for i, w := range world {
		prob.ImagePoints[i] = c.observe(t, w)
	}
	for _, w := range validation {
		prob.Validation = append(prob.Validation, Correspondence{World: w, Image: c.observe(t, w)})
	}
	return prob
}

var (
	testCamera = syntheticCamera{
		rotation:       spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{X: 0.2, Y: 1, Z: 0.1}, 0.3),
		translation:    r3.Vector{X: 0.1, Y: -0.2, Z: -6},
		focalLength:    1.5,
		principalPoint: NewImagePlanePoint(0.05, -0.02),
	}
	testWorld = [3]r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0.2, Z: 0},
		{X: -0.3, Y: 1, Z: 0.5},
	}
	testValidation = r3.Vector{X: 0.7, Y: 0.8, Z: -0.6}
)

func matchesCamera(pose *CamPose, cam syntheticCamera, tol float64) bool {
	return pose.Rotation.AlmostEqual(cam.rotation, tol) && pose.Translation.Distance(cam.translation) < tol
}

func TestLambdaTwistRecoversTruthAmongCandidates(t *testing.T) {
	cameras := []syntheticCamera{
		testCamera,
		{
			rotation:       spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{X: 1, Y: 0, Z: 0}, -0.8),
			translation:    r3.Vector{X: -0.5, Y: 0.3, Z: -4},
			focalLength:    0.9,
			principalPoint: NewImagePlanePoint(0, 0),
		},
		{
			rotation:       spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{X: -0.4, Y: 0.3, Z: 1}, 2.1),
			translation:    r3.Vector{X: 0.2, Y: 0.1, Z: -10},
			focalLength:    3,
			principalPoint: NewImagePlanePoint(-0.1, 0.05),
		},
	}
	for _, cam := range cameras {
		prob := cam.problem(t, testWorld)
		candidates, err := prob.candidatePoses(p3pEpsilon)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(candidates), test.ShouldBeBetween, 0, 5)

		found := false
		for _, c := range candidates {
			if matchesCamera(c, cam, 1e-6) {
				found = true
				for i, w := range testWorld {
					test.That(t, c.Depths[i], test.ShouldAlmostEqual, cam.rotation.MulVec(w).Add(cam.translation).Norm(), 1e-6)
				}
			}
		}
		test.That(t, found, test.ShouldBeTrue)
	}
}

func TestSolveP3PWithValidationPoint(t *testing.T) {
	prob := testCamera.problem(t, testWorld, testValidation)
	pose, err := SolveP3P(prob, p3pEpsilon)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matchesCamera(pose, testCamera, 1e-6), test.ShouldBeTrue)
	test.That(t, pose.ReprojectionError, test.ShouldBeLessThan, 1e-6)

	// the recovered rotation is orthonormal
	test.That(t, pose.Rotation.IsOrthonormal(1e-6), test.ShouldBeTrue)
	test.That(t, pose.Rotation.Det(), test.ShouldAlmostEqual, 1, 1e-6)
}

func TestSolveP3PWithoutValidationReprojects(t *testing.T) {
	prob := testCamera.problem(t, testWorld)
	pose, err := SolveP3P(prob, p3pEpsilon)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.ReprojectionError, test.ShouldBeLessThan, 1e-6)
	for i, w := range testWorld {
		p, ok := pose.Project(w, prob.FocalLength, prob.PrincipalPoint.Point)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.Sub(prob.ImagePoints[i].Point).Norm(), test.ShouldBeLessThan, 1e-6)
	}
}

func TestLambdaTwistDepthsArePositive(t *testing.T) {
	prob := testCamera.problem(t, testWorld)
	candidates, err := prob.candidatePoses(p3pEpsilon)
	test.That(t, err, test.ShouldBeNil)
	for _, c := range candidates {
		for i, w := range testWorld {
			test.That(t, c.Depths[i], test.ShouldBeGreaterThan, 0)
			test.That(t, c.Apply(w).Z, test.ShouldBeLessThan, 0)
		}
	}
}

func TestSolveP3PIsDeterministic(t *testing.T) {
	prob := testCamera.problem(t, testWorld)
	first, err := SolveP3P(prob, p3pEpsilon)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		again, err := SolveP3P(prob, p3pEpsilon)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, again, test.ShouldResemble, first)
	}
}

func TestSolveP3PErrors(t *testing.T) {
	t.Run("collinear world points", func(t *testing.T) {
		prob := testCamera.problem(t, [3]r3.Vector{{X: 0}, {X: 1}, {X: 2}})
		_, err := SolveP3P(prob, p3pEpsilon)
		test.That(t, errors.Is(err, ErrCollinearWorldPoints), test.ShouldBeTrue)
	})

	t.Run("invalid focal length", func(t *testing.T) {
		prob := testCamera.problem(t, testWorld)
		prob.FocalLength = 0
		_, err := SolveP3P(prob, p3pEpsilon)
		test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
		prob.FocalLength = math.NaN()
		_, err = SolveP3P(prob, p3pEpsilon)
		test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	})

	t.Run("coincident image points", func(t *testing.T) {
		prob := testCamera.problem(t, testWorld)
		for i := range prob.ImagePoints {
			prob.ImagePoints[i] = NewImagePlanePoint(0.1, 0.1)
		}
		pose, err := SolveP3P(prob, p3pEpsilon)
		test.That(t, errors.Is(err, ErrNoRealRoots), test.ShouldBeTrue)
		test.That(t, pose, test.ShouldBeNil)
	})

	t.Run("third point behind the camera", func(t *testing.T) {
		// camera at the origin looking down -Z; the last point sits behind it and is seen
		// through the center at (0.06, -0.08). Both real depth triples have a negative depth.
		prob := P3PProblem{
			WorldPoints: [3]r3.Vector{
				{X: 0.2, Y: 0.3, Z: -2},
				{X: 0.3, Y: -0.1, Z: -5},
				{X: -0.3, Y: 0.4, Z: 5},
			},
			ImagePoints: [3]ImagePlanePoint{
				NewImagePlanePoint(0.1, 0.15),
				NewImagePlanePoint(0.06, -0.02),
				NewImagePlanePoint(0.06, -0.08),
			},
			FocalLength:    1,
			PrincipalPoint: NewImagePlanePoint(0, 0),
		}
		pose, err := SolveP3P(prob, p3pEpsilon)
		test.That(t, errors.Is(err, ErrAllCandidatesBehindCamera), test.ShouldBeTrue)
		test.That(t, pose, test.ShouldBeNil)
	})
}

func TestLambdaTwistDepthsRejectsUnsolvedTriples(t *testing.T) {
	bearing := r3.Vector{X: 0.05, Y: 0.12, Z: -1.5}.Normalize()
	_, err := lambdaTwistDepths(testWorld, [3]r3.Vector{bearing, bearing, bearing}, p3pEpsilon)
	test.That(t, errors.Is(err, ErrNoRealRoots), test.ShouldBeTrue)

	prob := testCamera.problem(t, testWorld)
	var bearings [3]r3.Vector
	for i, ip := range prob.ImagePoints {
		bearings[i] = r3.Vector{
			X: ip.X - prob.PrincipalPoint.X,
			Y: ip.Y - prob.PrincipalPoint.Y,
			Z: -prob.FocalLength,
		}.Normalize()
	}
	solutions, err := lambdaTwistDepths(testWorld, bearings, p3pEpsilon)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solutions, test.ShouldNotBeEmpty)
	for _, sol := range solutions {
		test.That(t, sol.residual, test.ShouldBeLessThanOrEqualTo, maxDepthResidual)
	}
}

func TestPencilDeterminant(t *testing.T) {
	a := [3][3]float64{{2, 1, 0.5}, {1, -3, 0.25}, {0.5, 0.25, 1}}
	b := [3][3]float64{{1, 0, 2}, {0, 4, -1}, {2, -1, 0.5}}
	c3, c2, c1, c0 := pencilDeterminant(a, b)
	for _, g := range []float64{-2, -0.5, 0, 0.3, 1.7} {
		var m [3][3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m[i][j] = a[i][j] - g*b[i][j]
			}
		}
		test.That(t, c3*g*g*g+c2*g*g+c1*g+c0, test.ShouldAlmostEqual, det3(m), 1e-9)
	}
}

func TestDepthEquationsRefine(t *testing.T) {
	truth := [3]float64{2, 3, 4}
	eq := depthEquations{b12: -1, b13: -0.5, b23: -1.2}
	eq.a12 = truth[0]*truth[0] + truth[1]*truth[1] + eq.b12*truth[0]*truth[1]
	eq.a13 = truth[0]*truth[0] + truth[2]*truth[2] + eq.b13*truth[0]*truth[2]
	eq.a23 = truth[1]*truth[1] + truth[2]*truth[2] + eq.b23*truth[1]*truth[2]

	refined := eq.refine([3]float64{2.01, 2.98, 4.02})
	test.That(t, eq.residualNorm(refined), test.ShouldBeLessThan, 1e-10)
	for i := range truth {
		test.That(t, refined[i], test.ShouldAlmostEqual, truth[i], 1e-8)
	}
	test.That(t, eq.refine(truth), test.ShouldResemble, truth)
}
