package calibration

import (
	"context"
	"fmt"

	"go.viam.com/perspective/logging"
	"go.viam.com/perspective/utils"
)

// Job is one calibration of a batch.
type Job struct {
	Inputs   Inputs
	Settings Settings
}

// CalibrateAll runs the jobs in parallel. Results are in job order; on failure the returned
// error combines every job error, each prefixed with its job index. A nil logger discards all
// output.
func CalibrateAll(ctx context.Context, jobs []Job, logger logging.Logger) ([]*CameraParameters, error) {
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	results := make([]*CameraParameters, len(jobs))
	fs := make([]utils.SimpleFunc, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		fs[i] = func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			params, err := Calibrate(job.Inputs, job.Settings, logger.Sublogger(fmt.Sprintf("job%d", i)))
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			results[i] = params
			return nil
		}
	}
	elapsed, err := utils.RunInParallel(ctx, fs)
	logger.Debugw("calibrated batch", "jobs", len(jobs), "elapsed", elapsed)
	if err != nil {
		return nil, err
	}
	return results, nil
}
