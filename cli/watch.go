package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/rimage/calibration"
)

// WatchAction is the corresponding action for 'watch'.
func WatchAction(c *cli.Context) error {
	logger := newLogger(c)
	path := c.Path(projectFlagPath)

	recalibrate := func() {
		project, job, err := loadJob(path, logger)
		if err != nil {
			logger.Errorw("cannot load project", "path", path, "error", err)
			return
		}
		params, err := calibration.Calibrate(job.Inputs, job.Settings, logger)
		if err != nil {
			logger.Errorw("calibration failed", "path", path, "error", err)
			return
		}
		printf(c.App.Writer, "%s", cameraTable(params, project))
	}

	recalibrate()
	logger.Infow("watching project", "path", path)
	return watchFile(c.Context, path, c.Duration(watchFlagDelay), recalibrate, logger)
}

// watchFile calls onChange after path is written or recreated until ctx is done. Events
// closer together than delay collapse into one call.
func watchFile(ctx context.Context, path string, delay time.Duration, onChange func(), logger logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "error creating file watcher")
	}
	defer goutils.UncheckedErrorFunc(watcher.Close)

	// editors often replace the file, so watch the directory
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errors.Wrapf(err, "error watching %q", path)
	}

	debounced := debounce.New(delay)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.Debugw("project changed", "path", event.Name, "op", event.Op.String())
			debounced(onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("file watcher error", "error", err)
		}
	}
}
