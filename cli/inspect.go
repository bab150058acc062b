package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/perspective/fspy"
	"go.viam.com/perspective/utils"
)

// InspectAction is the corresponding action for 'inspect'.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one fSpy file")
	}
	f, err := fspy.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	cam := f.Data.CameraParameters

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Parameter", "Value"})
	t.AppendRow(table.Row{"Image size", fmt.Sprintf("%dx%d", cam.ImageWidth, cam.ImageHeight)})
	t.AppendRow(table.Row{"Principal point", fmt.Sprintf("X:%.5f, Y:%.5f", cam.PrincipalPoint.X, cam.PrincipalPoint.Y)})
	t.AppendRow(table.Row{"Horizontal field of view", fmt.Sprintf("%.2f°", utils.RadToDeg(cam.HorizontalFieldOfView))})
	for i, row := range cam.CameraTransform.Rows {
		t.AppendRow(table.Row{fmt.Sprintf("Camera transform row %d", i), formatRow(row)})
	}
	t.AppendRow(table.Row{"Unit", f.Data.CalibrationSettingsBase.ReferenceDistanceUnit})
	t.AppendRow(table.Row{"Image bytes", len(f.Image)})
	printf(c.App.Writer, "%s", t.Render())
	return nil
}
