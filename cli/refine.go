package cli

import (
	"github.com/urfave/cli/v2"

	"go.viam.com/perspective/config"
	"go.viam.com/perspective/rimage/vanishing"
)

// RefineAction is the corresponding action for 'refine'.
func RefineAction(c *cli.Context) error {
	logger := newLogger(c)
	project, err := config.Read(c.Path(projectFlagPath), logger)
	if err != nil {
		return err
	}
	opts := vanishing.DefaultRefineOptions()
	opts.MaxShift = c.Float64(refineFlagMaxShift)
	opts.MaxIterations = c.Int(refineFlagIterations)
	if settings, err := project.CalibrationSettings(); err == nil {
		opts.Epsilon = settings.Tolerances.Epsilon
	}

	refined, centre, err := vanishing.RefineControlLines(project.ControlStates(), project.ImageSize(), opts, logger)
	if err != nil {
		return err
	}
	project.SetControlStates(refined)
	if err := config.Write(c.Path(refineFlagOutput), project); err != nil {
		return err
	}
	printf(c.App.Writer, "refined principal point X:%.6f, Y:%.6f", centre.X, centre.Y)
	return nil
}
