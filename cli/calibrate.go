package cli

import (
	"fmt"
	"math"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/perspective/config"
	"go.viam.com/perspective/fspy"
	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/rimage/calibration"
	"go.viam.com/perspective/rimage/transform"
	"go.viam.com/perspective/spatialmath"
	"go.viam.com/perspective/utils"
)

// CalibrateAction is the corresponding action for 'calibrate'.
func CalibrateAction(c *cli.Context) error {
	logger := newLogger(c)
	paths := c.StringSlice(projectFlagPath)
	out := c.Path(calibrateFlagFSpy)
	if out != "" && len(paths) != 1 {
		return errors.Errorf("--%s needs exactly one project, got %d", calibrateFlagFSpy, len(paths))
	}

	projects := make([]*config.Project, len(paths))
	jobs := make([]calibration.Job, len(paths))
	for i, path := range paths {
		project, job, err := loadJob(path, logger)
		if err != nil {
			return err
		}
		projects[i] = project
		jobs[i] = job
	}

	results, err := calibration.CalibrateAll(c.Context, jobs, logger)
	if err != nil {
		return err
	}
	for i, params := range results {
		if len(results) > 1 {
			printf(c.App.Writer, "%s", paths[i])
		}
		printf(c.App.Writer, "%s", cameraTable(params, projects[i]))
	}

	if out != "" {
		f := &fspy.File{Data: fspy.FromCameraParameters(results[0])}
		if imagePath := c.Path(calibrateFlagImage); imagePath != "" {
			//nolint:gosec
			if f.Image, err = os.ReadFile(imagePath); err != nil {
				return errors.Wrap(err, "error reading image")
			}
		} else {
			warningf(c.App.ErrWriter, "no --%s given, the fSpy project will have no image", calibrateFlagImage)
		}
		if err := fspy.WriteFile(out, f); err != nil {
			return err
		}
		logger.Infow("wrote fSpy project", "path", out)
	}
	return nil
}

// loadJob reads a project and turns it into a calibration job.
func loadJob(path string, logger logging.Logger) (*config.Project, calibration.Job, error) {
	project, err := config.Read(path, logger)
	if err != nil {
		return nil, calibration.Job{}, err
	}
	inputs, err := project.Inputs()
	if err != nil {
		return nil, calibration.Job{}, errors.Wrapf(err, "project %q", path)
	}
	settings, err := project.CalibrationSettings()
	if err != nil {
		return nil, calibration.Job{}, errors.Wrapf(err, "project %q", path)
	}
	return project, calibration.Job{Inputs: inputs, Settings: settings}, nil
}

// cameraTable renders the solved camera, how well it reproduces the project's known
// correspondences and the image positions of the overlay points.
func cameraTable(params *calibration.CameraParameters, project *config.Project) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Parameter", "Value"})
	t.AppendRow(table.Row{"Mode", string(params.Mode)})
	t.AppendRow(table.Row{"Image size", fmt.Sprintf("%dx%d", params.ImageSize.Width, params.ImageSize.Height)})
	t.AppendRow(table.Row{"Principal point", fmt.Sprintf("X:%.5f, Y:%.5f", params.PrincipalPoint.X, params.PrincipalPoint.Y)})
	t.AppendRow(table.Row{"Relative focal length", fmt.Sprintf("%.5f", params.RelativeFocalLength)})
	t.AppendRow(table.Row{
		"Field of view",
		fmt.Sprintf("H:%.2f°, V:%.2f°", utils.RadToDeg(params.HorizontalFieldOfView), utils.RadToDeg(params.VerticalFieldOfView)),
	})
	t.AppendRow(table.Row{"Camera position", formatVector(params.Position())})
	q := params.Rotation().Quaternion()
	t.AppendRow(table.Row{"Rotation quaternion", fmt.Sprintf("W:%.5f, X:%.5f, Y:%.5f, Z:%.5f", q.Real, q.Imag, q.Jmag, q.Kmag)})
	rpy := spatialmath.QuatToEuler(q)
	t.AppendRow(table.Row{"Roll, pitch, yaw", fmt.Sprintf("%.2f°, %.2f°, %.2f°", rpy[0], rpy[1], rpy[2])})
	for i, row := range params.CameraTransform.Rows() {
		t.AppendRow(table.Row{fmt.Sprintf("Camera transform row %d", i), formatRow(row)})
	}
	if params.ReferenceDistanceUnit != "" {
		t.AppendRow(table.Row{"Unit", params.ReferenceDistanceUnit})
	}
	if errs := reprojectionErrors(params, project.Correspondences()); len(errs) > 0 {
		mean, _ := stats.Mean(errs)
		worst, _ := stats.Max(errs)
		t.AppendRow(table.Row{"Reprojection error", fmt.Sprintf("mean %.2fpx, max %.2fpx over %d points", mean, worst, len(errs))})
	}
	for _, p := range project.Points {
		label := fmt.Sprintf("Point %s", formatVector(p.Vector()))
		rel, ok := params.ProjectRelative(p.Vector())
		if !ok {
			t.AppendRow(table.Row{label, "behind camera"})
			continue
		}
		t.AppendRow(table.Row{label, fmt.Sprintf("x:%.5f, y:%.5f", rel.X, rel.Y)})
	}
	return t.Render()
}

// reprojectionErrors returns the pixel distance between each observed image point and the
// projection of its world point. Points behind the camera count as infinitely far off.
func reprojectionErrors(params *calibration.CameraParameters, corrs []config.ValidationPoint) []float64 {
	return lo.Map(corrs, func(corr config.ValidationPoint, _ int) float64 {
		rel, ok := params.ProjectRelative(corr.World.Vector())
		if !ok {
			return math.Inf(1)
		}
		x, y := params.ImageSize.RelativeToPixel(rel)
		wantX, wantY := params.ImageSize.RelativeToPixel(transform.NewRelativePoint(corr.Image.X, corr.Image.Y))
		return math.Hypot(x-wantX, y-wantY)
	})
}
