package calibration

import (
	"context"
	"sync"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/rimage/vanishing"
	"go.viam.com/perspective/spatialmath"
)

const eps = spatialmath.DefaultEpsilon

var testSize = transform.ImageSize{Width: 1600, Height: 900}

// syntheticCamera projects world points with a known pose so calibrations can be checked
// against ground truth.
type syntheticCamera struct {
	rot *spatialmath.RotationMatrix
	t   r3.Vector
	f   float64
	pp  r2.Point
}

func newSyntheticCamera() syntheticCamera {
	return syntheticCamera{
		rot: spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{X: -1, Y: 1}, 1.2),
		t:   r3.Vector{X: 0.3, Y: -0.4, Z: -8},
		f:   1.3,
	}
}

func (c syntheticCamera) project(p r3.Vector) transform.ImagePlanePoint {
	q := c.rot.MulVec(p).Add(c.t)
	return transform.NewImagePlanePoint(c.pp.X+c.f*q.X/-q.Z, c.pp.Y+c.f*q.Y/-q.Z)
}

func (c syntheticCamera) projectRelative(p r3.Vector) transform.RelativePoint {
	return testSize.ToRelative(c.project(p))
}

// vanishingPoints returns the vanishing points of the world X, Y and Z directions.
func (c syntheticCamera) vanishingPoints() []transform.ImagePlanePoint {
	vps := make([]transform.ImagePlanePoint, 3)
	for i := range vps {
		d := c.rot.Col(i)
		vps[i] = transform.NewImagePlanePoint(c.pp.X+c.f*d.X/-d.Z, c.pp.Y+c.f*d.Y/-d.Z)
	}
	return vps
}

// controlState returns two image lines along the world direction dir.
func (c syntheticCamera) controlState(dir, offset r3.Vector) vanishing.ControlState {
	a0 := c.projectRelative(r3.Vector{})
	a1 := c.projectRelative(dir.Mul(2))
	b0 := c.projectRelative(offset)
	b1 := c.projectRelative(offset.Add(dir.Mul(2)))
	return vanishing.NewControlState(a0.Point, a1.Point, b0.Point, b1.Point)
}

// referenceControls marks the world origin and the point three units up the Z axis.
func (c syntheticCamera) referenceControls() *ReferenceControls {
	return &ReferenceControls{Handles: [2]transform.RelativePoint{
		c.projectRelative(r3.Vector{}),
		c.projectRelative(r3.Vector{Z: 3}),
	}}
}

func (c syntheticCamera) vanishingPointInputs() *VanishingPointInputs {
	return &VanishingPointInputs{
		ImageSize:       testSize,
		VanishingPoints: c.vanishingPoints()[:2],
		Origin:          c.projectRelative(r3.Vector{}),
		Reference:       c.referenceControls(),
	}
}

func referenceSettings() Settings {
	settings := DefaultSettings()
	settings.ReferenceDistance = &ReferenceDistance{Axis: AxisPositiveZ, Length: 3, Unit: "m"}
	return settings
}

func TestCalibrateFromControlLines(t *testing.T) {
	cam := newSyntheticCamera()
	in := &VanishingPointInputs{
		ImageSize: testSize,
		ControlStates: []vanishing.ControlState{
			cam.controlState(r3.Vector{X: 1}, r3.Vector{Y: 1.5}),
			cam.controlState(r3.Vector{Y: 1}, r3.Vector{X: 1.5}),
		},
		Origin:    cam.projectRelative(r3.Vector{}),
		Reference: cam.referenceControls(),
	}
	params, err := Calibrate(in, referenceSettings(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, params.Mode, test.ShouldEqual, ModeVanishingPoints)
	test.That(t, params.RelativeFocalLength, test.ShouldAlmostEqual, cam.f, 1e-9)
	test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-9), test.ShouldBeTrue)
	test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)
	test.That(t, params.VanishingPoints, test.ShouldHaveLength, 2)
	test.That(t, params.ReferenceDistanceUnit, test.ShouldEqual, "m")
	for i, vp := range params.VanishingPoints {
		test.That(t, vp.Sub(cam.vanishingPoints()[i].Point).Norm(), test.ShouldBeLessThan, 1e-9)
	}
}

func TestCalibrateFromVanishingPoints(t *testing.T) {
	cam := newSyntheticCamera()
	logger := logging.NewTestLogger(t)

	t.Run("default distance", func(t *testing.T) {
		params, err := CalibrateFromVanishingPoints(
			cam.vanishingPoints()[:2], cam.projectRelative(r3.Vector{}), nil, DefaultSettings(), testSize, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-9), test.ShouldBeTrue)
		// the origin is placed 10 units in front of the camera instead of 8
		test.That(t, params.ViewTransform.Translation().Distance(cam.t.Mul(1.25)), test.ShouldBeLessThan, 1e-9)
		test.That(t, params.ViewTransform.Translation().Z, test.ShouldAlmostEqual, -10)
		test.That(t, params.ReferenceDistanceUnit, test.ShouldBeEmpty)
	})

	t.Run("reference distance", func(t *testing.T) {
		params, err := Calibrate(cam.vanishingPointInputs(), referenceSettings(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)

		for _, p := range []r3.Vector{{}, {X: 2, Y: 3}, {X: -1, Y: 0.5, Z: 2}} {
			projected, ok := params.Project(p)
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, projected.Sub(cam.project(p).Point).Norm(), test.ShouldBeLessThan, 1e-8)
		}
	})

	t.Run("explicit anchor", func(t *testing.T) {
		in := cam.vanishingPointInputs()
		anchor := cam.projectRelative(r3.Vector{})
		in.Reference.Anchor = &anchor
		params, err := Calibrate(in, referenceSettings(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)
	})

	t.Run("flipped axes", func(t *testing.T) {
		settings := referenceSettings()
		settings.FirstAxis = AxisNegativeX
		settings.SecondAxis = AxisNegativeY
		params, err := Calibrate(cam.vanishingPointInputs(), settings, logger)
		test.That(t, err, test.ShouldBeNil)

		flip := spatialmath.NewRotationMatrixFromRows(r3.Vector{X: -1}, r3.Vector{Y: -1}, r3.Vector{Z: 1})
		test.That(t, params.Rotation().AlmostEqual(cam.rot.Mul(flip), 1e-9), test.ShouldBeTrue)
		test.That(t, params.Rotation().Det(), test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)
	})

	t.Run("three vanishing points", func(t *testing.T) {
		params, err := CalibrateFromVanishingPoints(
			cam.vanishingPoints(), cam.projectRelative(r3.Vector{}), cam.referenceControls(), referenceSettings(), testSize, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.PrincipalPoint.Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, params.RelativeFocalLength, test.ShouldAlmostEqual, cam.f, 1e-9)
		test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-9), test.ShouldBeTrue)
		test.That(t, params.VanishingPoints, test.ShouldHaveLength, 3)
	})

	t.Run("principal point override", func(t *testing.T) {
		shifted := cam
		shifted.pp = r2.Point{X: 0.05, Y: -0.04}
		settings := referenceSettings()
		pp := testSize.ToRelative(transform.ImagePlanePoint{Point: shifted.pp})
		settings.PrincipalPoint = &pp

		params, err := Calibrate(shifted.vanishingPointInputs(), settings, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.PrincipalPoint.Sub(shifted.pp).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, params.RelativeFocalLength, test.ShouldAlmostEqual, cam.f, 1e-9)
		test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-9), test.ShouldBeTrue)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)
	})
}

func TestCalibrateCustomScaleAndOrigin(t *testing.T) {
	cam := newSyntheticCamera()
	logger := logging.NewTestLogger(t)

	settings := referenceSettings()
	settings.CustomScale = 2
	params, err := Calibrate(cam.vanishingPointInputs(), settings, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.ViewTransform.Translation().Distance(cam.t.Mul(0.5)), test.ShouldBeLessThan, 1e-8)
	test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-9), test.ShouldBeTrue)

	offset := r3.Vector{X: 1, Y: -2, Z: 0.5}
	settings = referenceSettings()
	settings.CustomOriginTranslation = &offset
	params, err = Calibrate(cam.vanishingPointInputs(), settings, logger)
	test.That(t, err, test.ShouldBeNil)
	// the calibrated origin now sits at offset
	test.That(t, params.ViewTransform.Apply(offset).Distance(cam.t), test.ShouldBeLessThan, 1e-8)
	test.That(t, params.Position().Distance(cam.rot.Transpose().MulVec(cam.t).Mul(-1).Add(offset)), test.ShouldBeLessThan, 1e-8)
}

func TestCalibrateCorrespondences(t *testing.T) {
	cam := newSyntheticCamera()
	logger := logging.NewTestLogger(t)
	world := [3]r3.Vector{{}, {X: 1, Y: 0.2}, {X: -0.3, Y: 1, Z: 0.5}}
	validation := r3.Vector{X: 0.7, Y: 0.8, Z: -0.6}

	newInputs := func(c syntheticCamera) *CorrespondenceInputs {
		in := &CorrespondenceInputs{
			ImageSize:             testSize,
			WorldPoints:           world,
			HorizontalFieldOfView: ComputeFieldOfView(testSize, c.f, false),
			Validation:            []ValidationPoint{{World: validation, Image: c.projectRelative(validation)}},
		}
		for i, p := range world {
			in.ImagePoints[i] = c.projectRelative(p)
		}
		return in
	}

	t.Run("field of view", func(t *testing.T) {
		params, err := Calibrate(newInputs(cam), DefaultSettings(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Mode, test.ShouldEqual, ModeP3P)
		test.That(t, params.RelativeFocalLength, test.ShouldAlmostEqual, cam.f, 1e-12)
		test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-6), test.ShouldBeTrue)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-6)
		test.That(t, params.VanishingPoints, test.ShouldBeNil)
	})

	t.Run("intrinsics", func(t *testing.T) {
		in := newInputs(cam)
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromFieldOfView(testSize, in.HorizontalFieldOfView)
		test.That(t, err, test.ShouldBeNil)
		in.Intrinsics = intrinsics
		in.HorizontalFieldOfView = 0

		params, err := Calibrate(in, DefaultSettings(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.RelativeFocalLength, test.ShouldAlmostEqual, cam.f, 1e-9)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-6)
	})

	t.Run("principal point", func(t *testing.T) {
		shifted := cam
		shifted.pp = r2.Point{X: -0.1, Y: 0.05}
		in := newInputs(shifted)
		pp := testSize.ToRelative(transform.ImagePlanePoint{Point: shifted.pp})
		in.PrincipalPoint = &pp

		params, err := Calibrate(in, DefaultSettings(), logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.PrincipalPoint.Sub(shifted.pp).Norm(), test.ShouldBeLessThan, 1e-12)
		test.That(t, params.Rotation().AlmostEqual(cam.rot, 1e-6), test.ShouldBeTrue)
	})

	t.Run("custom scale", func(t *testing.T) {
		settings := DefaultSettings()
		settings.CustomScale = 4
		params, err := Calibrate(newInputs(cam), settings, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.ViewTransform.Translation().Distance(cam.t.Mul(0.25)), test.ShouldBeLessThan, 1e-6)
	})

	t.Run("collinear world points", func(t *testing.T) {
		in := newInputs(cam)
		in.WorldPoints = [3]r3.Vector{{}, {X: 1}, {X: 2}}
		_, err := Calibrate(in, DefaultSettings(), logger)
		test.That(t, errors.Is(err, transform.ErrCollinearWorldPoints), test.ShouldBeTrue)
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
		test.That(t, calErr.Mode, test.ShouldEqual, ModeP3P)
		test.That(t, calErr.Stage, test.ShouldEqual, StageFocalLengthKnown)
	})

	t.Run("missing intrinsics", func(t *testing.T) {
		in := newInputs(cam)
		in.HorizontalFieldOfView = 0
		_, err := Calibrate(in, DefaultSettings(), logger)
		test.That(t, errors.Is(err, transform.ErrNoIntrinsics), test.ShouldBeTrue)
	})
}

type unsupportedInputs struct{}

func (unsupportedInputs) Mode() Mode                 { return "unsupported" }
func (unsupportedInputs) Size() transform.ImageSize { return testSize }

func TestCalibrateFailures(t *testing.T) {
	cam := newSyntheticCamera()
	logger := logging.NewTestLogger(t)

	stageOf := func(t *testing.T, err error) Stage {
		t.Helper()
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeTrue)
		test.That(t, calErr.Mode, test.ShouldEqual, ModeVanishingPoints)
		return calErr.Stage
	}

	t.Run("one vanishing point", func(t *testing.T) {
		_, err := CalibrateFromVanishingPoints(cam.vanishingPoints()[:1], transform.NewRelativePoint(0.5, 0.5), nil, DefaultSettings(), testSize, logger)
		test.That(t, errors.Is(err, ErrNotEnoughVanishingPoints), test.ShouldBeTrue)
		test.That(t, stageOf(t, err), test.ShouldEqual, StageTwoVanishingPoints)
		test.That(t, err.Error(), test.ShouldContainSubstring, "vanishing_points calibration failed at TwoVanishingPoints")
	})

	t.Run("parallel control lines", func(t *testing.T) {
		in := &VanishingPointInputs{
			ImageSize: testSize,
			ControlStates: []vanishing.ControlState{
				cam.controlState(r3.Vector{X: 1}, r3.Vector{Y: 1.5}),
				vanishing.NewControlState(r2.Point{X: 0.1, Y: 0.1}, r2.Point{X: 0.9, Y: 0.1}, r2.Point{X: 0.1, Y: 0.8}, r2.Point{X: 0.9, Y: 0.8}),
			},
		}
		_, err := Calibrate(in, DefaultSettings(), logger)
		var pointErr *vanishing.PointError
		test.That(t, errors.As(err, &pointErr), test.ShouldBeTrue)
		test.That(t, pointErr.Index, test.ShouldEqual, 1)
		test.That(t, errors.Is(err, spatialmath.ErrDegenerateLines), test.ShouldBeTrue)
		test.That(t, stageOf(t, err), test.ShouldEqual, StageTwoVanishingPoints)
	})

	t.Run("non-positive focal length squared", func(t *testing.T) {
		vps := []transform.ImagePlanePoint{transform.NewImagePlanePoint(0.2, 0.5), transform.NewImagePlanePoint(0.6, 0.5)}
		_, err := CalibrateFromVanishingPoints(vps, transform.NewRelativePoint(0.5, 0.5), nil, DefaultSettings(), testSize, logger)
		test.That(t, errors.Is(err, ErrNonPositiveFocalLengthSquared), test.ShouldBeTrue)
		test.That(t, stageOf(t, err), test.ShouldEqual, StageTwoVanishingPoints)
	})

	t.Run("degenerate reference distance", func(t *testing.T) {
		in := cam.vanishingPointInputs()
		in.Reference.Handles[1] = in.Reference.Handles[0]
		_, err := Calibrate(in, referenceSettings(), logger)
		test.That(t, errors.Is(err, ErrDegenerateReferenceDistance), test.ShouldBeTrue)
		test.That(t, stageOf(t, err), test.ShouldEqual, StageRotationKnown)
	})

	t.Run("invalid settings", func(t *testing.T) {
		settings := DefaultSettings()
		settings.SecondAxis = AxisPositiveX
		_, err := Calibrate(cam.vanishingPointInputs(), settings, logger)
		test.That(t, errors.Is(err, ErrInvalidAxisAssignment), test.ShouldBeTrue)
		test.That(t, stageOf(t, err), test.ShouldEqual, StageTwoVanishingPoints)
	})

	t.Run("invalid image size", func(t *testing.T) {
		in := cam.vanishingPointInputs()
		in.ImageSize = transform.ImageSize{Width: 0, Height: 900}
		_, err := Calibrate(in, DefaultSettings(), logger)
		test.That(t, errors.Is(err, transform.ErrInvalidImageSize), test.ShouldBeTrue)
	})

	t.Run("unsupported inputs", func(t *testing.T) {
		_, err := Calibrate(unsupportedInputs{}, DefaultSettings(), logger)
		test.That(t, err, test.ShouldBeError)
		var calErr *CalibrationError
		test.That(t, errors.As(err, &calErr), test.ShouldBeFalse)

		_, err = Calibrate(nil, DefaultSettings(), logger)
		test.That(t, err, test.ShouldBeError)
	})
}

func TestCalibrateLogsStages(t *testing.T) {
	cam := newSyntheticCamera()

	logger, logs := logging.NewObservedTestLogger(t)
	_, err := Calibrate(cam.vanishingPointInputs(), referenceSettings(), logger)
	test.That(t, err, test.ShouldBeNil)
	entries := logs.FilterMessage("calibration stage").All()
	test.That(t, entries, test.ShouldHaveLength, 4)
	var stages []interface{}
	for _, entry := range entries {
		stages = append(stages, entry.ContextMap()["to"])
	}
	test.That(t, stages, test.ShouldResemble, []interface{}{"FocalLengthKnown", "RotationKnown", "TranslationKnown", "Complete"})

	logger, logs = logging.NewObservedTestLogger(t)
	_, err = CalibrateFromVanishingPoints(cam.vanishingPoints()[:1], transform.NewRelativePoint(0.5, 0.5), nil, DefaultSettings(), testSize, logger)
	test.That(t, err, test.ShouldNotBeNil)
	entries = logs.FilterMessage("calibration stage").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["from"], test.ShouldEqual, "TwoVanishingPoints")
	test.That(t, entries[0].ContextMap()["to"], test.ShouldEqual, "Failed")
}

func TestCalibrateWarnsWhenReferenceIsMissing(t *testing.T) {
	cam := newSyntheticCamera()
	in := cam.vanishingPointInputs()
	in.Reference = nil

	logger, logs := logging.NewObservedTestLogger(t)
	params, err := Calibrate(in, referenceSettings(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.ReferenceDistanceUnit, test.ShouldBeEmpty)
	test.That(t, params.ViewTransform.Translation().Distance(cam.t.Mul(1.25)), test.ShouldBeLessThan, 1e-9)
	warnings := logs.FilterMessageSnippet("reference distance set without reference handles").All()
	test.That(t, warnings, test.ShouldHaveLength, 1)
	test.That(t, warnings[0].Level, test.ShouldEqual, zapcore.WarnLevel)

	logger, logs = logging.NewObservedTestLogger(t)
	_, err = Calibrate(cam.vanishingPointInputs(), referenceSettings(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessageSnippet("reference distance set without reference handles").Len(), test.ShouldEqual, 0)
}

func TestCalibrateWithoutLogger(t *testing.T) {
	cam := newSyntheticCamera()
	params, err := Calibrate(cam.vanishingPointInputs(), referenceSettings(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.ViewTransform.Translation().Distance(cam.t), test.ShouldBeLessThan, 1e-8)

	_, err = Calibrate(nil, DefaultSettings(), nil)
	test.That(t, err, test.ShouldNotBeNil)

	results, err := CalibrateAll(context.Background(), []Job{{Inputs: cam.vanishingPointInputs(), Settings: referenceSettings()}}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results, test.ShouldHaveLength, 1)
}

func TestCalibrateIsDeterministicAndConcurrent(t *testing.T) {
	cam := newSyntheticCamera()
	logger := logging.NewTestLogger(t)
	expected, err := Calibrate(cam.vanishingPointInputs(), referenceSettings(), logger)
	test.That(t, err, test.ShouldBeNil)

	const workers = 8
	results := make([]*CameraParameters, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Calibrate(cam.vanishingPointInputs(), referenceSettings(), logger)
		}(i)
	}
	wg.Wait()
	for i := 0; i < workers; i++ {
		test.That(t, errs[i], test.ShouldBeNil)
		test.That(t, results[i], test.ShouldResemble, expected)
	}
}
