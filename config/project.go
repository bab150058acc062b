// Package config reads and writes calibration projects: the control lines, points and
// settings a user marked on one image.
package config

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/perspective/rimage/calibration"
	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/rimage/vanishing"
	"go.viam.com/perspective/spatialmath"
)

// Point is a relative image point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) relative() transform.RelativePoint {
	return transform.NewRelativePoint(p.X, p.Y)
}

// Point3 is a world point.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector returns the point as an r3.Vector.
func (p Point3) Vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Line is a control line between two relative image points.
type Line struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

func (l Line) segment() spatialmath.LineSegment {
	return spatialmath.LineSegment{A: r2.Point{X: l.A.X, Y: l.A.Y}, B: r2.Point{X: l.B.X, Y: l.B.Y}}
}

// ReferenceDistance marks a known length along a world axis.
type ReferenceDistance struct {
	Axis    calibration.Axis `json:"axis"`
	Length  float64          `json:"length"`
	Unit    string           `json:"unit,omitempty"`
	Anchor  *Point           `json:"anchor,omitempty"`
	Handles [2]Point         `json:"handles"`
}

// ValidationPoint is an extra world to image correspondence for the p3p mode.
type ValidationPoint struct {
	World Point3 `json:"world"`
	Image Point  `json:"image"`
}

// Project is a calibration project as stored on disk.
type Project struct {
	ConfigFilePath string `json:"-"`

	Mode        calibration.Mode `json:"mode,omitempty"`
	ImageWidth  int              `json:"image_width"`
	ImageHeight int              `json:"image_height"`

	// ControlPoint is the image position of the world origin.
	ControlPoint Point `json:"control_point"`
	// Lines holds two control lines per vanishing point, in axis order.
	Lines []Line `json:"lines,omitempty"`
	// Points are world points drawn over the image once calibrated.
	Points []Point3 `json:"points,omitempty"`
	// Flip negates the world axes of the first and second vanishing points. The third entry
	// follows from the other two.
	Flip                    [3]bool            `json:"flip"`
	CustomOriginTranslation *Point3            `json:"custom_origin_translation,omitempty"`
	CustomScale             float64            `json:"custom_scale,omitempty"`
	PrincipalPoint          *Point             `json:"principal_point,omitempty"`
	ReferenceDistance       *ReferenceDistance `json:"reference_distance,omitempty"`

	TwistPoints      []Point3          `json:"twist_points,omitempty"`
	TwistPoints2D    []Point           `json:"twist_points_2d,omitempty"`
	FieldOfView      float64           `json:"field_of_view,omitempty"`
	ValidationPoints []ValidationPoint `json:"validation_points,omitempty"`
	// IntrinsicsFile names a pinhole intrinsics JSON file, relative to the project file. It
	// replaces field_of_view and fixes the principal point.
	IntrinsicsFile string `json:"intrinsics_file,omitempty"`

	// Attributes are decoded over the default calibration settings.
	Attributes AttributeMap `json:"settings,omitempty"`
}

// CalibrationMode returns the configured mode, inferring p3p when only twist points are set.
func (p *Project) CalibrationMode() calibration.Mode {
	if p.Mode != "" {
		return p.Mode
	}
	if len(p.TwistPoints) > 0 && len(p.Lines) == 0 {
		return calibration.ModeP3P
	}
	return calibration.ModeVanishingPoints
}

// ImageSize returns the image dimensions.
func (p *Project) ImageSize() transform.ImageSize {
	return transform.ImageSize{Width: p.ImageWidth, Height: p.ImageHeight}
}

// Validate returns every problem with the project at once.
func (p *Project) Validate(path string) error {
	var errs error
	if p.ImageWidth <= 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "image_width"))
	}
	if p.ImageHeight <= 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "image_height"))
	}
	if p.CustomScale < 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
			errors.Errorf("custom_scale must not be negative, got %v", p.CustomScale)))
	}
	if ref := p.ReferenceDistance; ref != nil && !(ref.Length > 0) {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "reference_distance"),
			errors.Errorf("length must be positive, got %v", ref.Length)))
	}

	switch p.CalibrationMode() {
	case calibration.ModeVanishingPoints:
		if n := len(p.Lines); n != 4 && n != 6 {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("lines must hold 4 or 6 lines, got %d", n)))
		}
	case calibration.ModeP3P:
		if n := len(p.TwistPoints); n < 3 {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "twist_points"))
		} else if n != len(p.TwistPoints2D) {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("twist_points has %d points but twist_points_2d has %d", n, len(p.TwistPoints2D))))
		}
		if p.IntrinsicsFile == "" && !(p.FieldOfView > 0 && p.FieldOfView < math.Pi) {
			errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "field_of_view"))
		}
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, errors.Errorf("unknown mode %q", p.Mode)))
	}
	return errs
}

// CalibrationSettings decodes the settings attributes over the defaults and then applies the
// project level flips, principal point, reference distance, scale and origin.
func (p *Project) CalibrationSettings() (calibration.Settings, error) {
	settings := calibration.DefaultSettings()
	if err := p.Attributes.decodeInto(&settings); err != nil {
		return settings, err
	}
	if p.Flip[0] {
		settings.FirstAxis = settings.FirstAxis.Flipped()
	}
	if p.Flip[1] {
		settings.SecondAxis = settings.SecondAxis.Flipped()
	}
	if p.PrincipalPoint != nil {
		pp := p.PrincipalPoint.relative()
		settings.PrincipalPoint = &pp
	}
	if ref := p.ReferenceDistance; ref != nil {
		settings.ReferenceDistance = &calibration.ReferenceDistance{Axis: ref.Axis, Length: ref.Length, Unit: ref.Unit}
	}
	if p.CustomScale > 0 {
		settings.CustomScale = p.CustomScale
	}
	if p.CustomOriginTranslation != nil {
		offset := p.CustomOriginTranslation.Vector()
		settings.CustomOriginTranslation = &offset
	}
	return settings, nil
}

// ControlStates groups the lines in pairs.
func (p *Project) ControlStates() []vanishing.ControlState {
	states := make([]vanishing.ControlState, 0, len(p.Lines)/2)
	for i := 0; i+1 < len(p.Lines); i += 2 {
		states = append(states, vanishing.ControlState{
			Lines: [2]spatialmath.LineSegment{p.Lines[i].segment(), p.Lines[i+1].segment()},
		})
	}
	return states
}

// SetControlStates replaces the lines with the given control states.
func (p *Project) SetControlStates(states []vanishing.ControlState) {
	p.Lines = lo.FlatMap(states, func(state vanishing.ControlState, _ int) []Line {
		return lo.Map(state.Lines[:], func(l spatialmath.LineSegment, _ int) Line {
			return Line{A: Point{X: l.A.X, Y: l.A.Y}, B: Point{X: l.B.X, Y: l.B.Y}}
		})
	})
}

// Correspondences returns every known world to image pair of the project: the twist points
// followed by the validation points.
func (p *Project) Correspondences() []ValidationPoint {
	n := min(len(p.TwistPoints), len(p.TwistPoints2D))
	corrs := make([]ValidationPoint, 0, n+len(p.ValidationPoints))
	for i := 0; i < n; i++ {
		corrs = append(corrs, ValidationPoint{World: p.TwistPoints[i], Image: p.TwistPoints2D[i]})
	}
	return append(corrs, p.ValidationPoints...)
}

// resolvePath interprets path relative to the directory of the project file.
func (p *Project) resolvePath(path string) string {
	if filepath.IsAbs(path) || p.ConfigFilePath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(p.ConfigFilePath), path)
}

// Inputs builds the calibration inputs for the project's mode.
func (p *Project) Inputs() (calibration.Inputs, error) {
	size := p.ImageSize()
	switch p.CalibrationMode() {
	case calibration.ModeVanishingPoints:
		in := &calibration.VanishingPointInputs{
			ImageSize:     size,
			ControlStates: p.ControlStates(),
			Origin:        p.ControlPoint.relative(),
		}
		if ref := p.ReferenceDistance; ref != nil {
			in.Reference = &calibration.ReferenceControls{
				Handles: [2]transform.RelativePoint{ref.Handles[0].relative(), ref.Handles[1].relative()},
			}
			if ref.Anchor != nil {
				anchor := ref.Anchor.relative()
				in.Reference.Anchor = &anchor
			}
		}
		return in, nil
	case calibration.ModeP3P:
		if len(p.TwistPoints) < 3 || len(p.TwistPoints2D) != len(p.TwistPoints) {
			return nil, errors.Errorf("need matching twist_points and twist_points_2d, got %d and %d",
				len(p.TwistPoints), len(p.TwistPoints2D))
		}
		in := &calibration.CorrespondenceInputs{
			ImageSize:             size,
			HorizontalFieldOfView: p.FieldOfView,
		}
		for i := 0; i < 3; i++ {
			in.WorldPoints[i] = p.TwistPoints[i].Vector()
			in.ImagePoints[i] = p.TwistPoints2D[i].relative()
		}
		if p.IntrinsicsFile != "" {
			intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(p.resolvePath(p.IntrinsicsFile))
			if err != nil {
				return nil, errors.Wrap(err, "cannot load intrinsics_file")
			}
			in.Intrinsics = intrinsics
		}
		// twist points past the third only pick between solutions
		for i := 3; i < len(p.TwistPoints); i++ {
			in.Validation = append(in.Validation, calibration.ValidationPoint{
				World: p.TwistPoints[i].Vector(),
				Image: p.TwistPoints2D[i].relative(),
			})
		}
		in.Validation = append(in.Validation, lo.Map(p.ValidationPoints, func(v ValidationPoint, _ int) calibration.ValidationPoint {
			return calibration.ValidationPoint{World: v.World.Vector(), Image: v.Image.relative()}
		})...)
		return in, nil
	}
	return nil, errors.Errorf("unknown mode %q", p.Mode)
}
