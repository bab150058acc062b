package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/perspective/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with "Warning".
func warningf(w io.Writer, format string, a ...interface{}) {
	printf(w, "Warning: "+format, a...)
}

// newLogger logs to the error writer of the app, at debug level when --debug is set.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("perspective")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if path := c.Path(generalFlagLogFile); path != "" {
		logger.AddAppender(logging.NewWriterAppender(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 2,
		}))
	}
	if c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.INFO)
	}
	return logger
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", v.X, v.Y, v.Z)
}

func formatRow(row [4]float64) string {
	return strings.Join(lo.Map(row[:], func(v float64, _ int) string {
		return fmt.Sprintf("%9.5f", v)
	}), " ")
}
