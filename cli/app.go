// Package cli contains all business logic needed by the perspective CLI.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	projectFlagPath = "project"

	calibrateFlagFSpy  = "fspy"
	calibrateFlagImage = "image"

	refineFlagOutput     = "out"
	refineFlagMaxShift   = "max-shift"
	refineFlagIterations = "iterations"

	watchFlagDelay = "delay"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "perspective",
		Usage:           "calibrate a camera from a single image",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated once it grows past 10MB",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "calibrate",
				Usage:     "solve the camera of a project and print the result",
				UsageText: "perspective calibrate --project <project.json> [--project <other.json>] [--fspy <out.fspy> --image <image>]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     projectFlagPath,
						Aliases:  []string{"p"},
						Required: true,
						Usage:    "calibration project `FILE`, repeat to calibrate several projects in parallel",
					},
					&cli.PathFlag{
						Name:  calibrateFlagFSpy,
						Usage: "also export the result as an fSpy project to `FILE`",
					},
					&cli.PathFlag{
						Name:  calibrateFlagImage,
						Usage: "image embedded in the fSpy export",
					},
				},
				Action: CalibrateAction,
			},
			{
				Name:      "inspect",
				Usage:     "print the camera stored in an fSpy project",
				ArgsUsage: "<file.fspy>",
				Action:    InspectAction,
			},
			{
				Name:      "refine",
				Usage:     "nudge the control lines of a three vanishing point project towards a centred principal point",
				UsageText: "perspective refine --project <project.json> --out <refined.json>",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     projectFlagPath,
						Aliases:  []string{"p"},
						Required: true,
						Usage:    "calibration project `FILE`",
					},
					&cli.PathFlag{
						Name:     refineFlagOutput,
						Aliases:  []string{"o"},
						Required: true,
						Usage:    "where to write the refined project",
					},
					&cli.Float64Flag{
						Name:  refineFlagMaxShift,
						Value: 0.02,
						Usage: "largest relative move of a line end point",
					},
					&cli.IntFlag{
						Name:  refineFlagIterations,
						Value: 400,
						Usage: "iteration limit of the minimizer",
					},
				},
				Action: RefineAction,
			},
			{
				Name:      "watch",
				Usage:     "recalibrate a project every time its file changes",
				UsageText: "perspective watch --project <project.json>",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     projectFlagPath,
						Aliases:  []string{"p"},
						Required: true,
						Usage:    "calibration project `FILE`",
					},
					&cli.DurationFlag{
						Name:  watchFlagDelay,
						Value: 200 * time.Millisecond,
						Usage: "wait this long after the last change before recalibrating",
					},
				},
				Action: WatchAction,
			},
		},
	}
}
