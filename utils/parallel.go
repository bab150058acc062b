package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// SimpleFunc is for RunInParallel.
type SimpleFunc func(ctx context.Context) error

// RunInParallel runs all functions with at most ParallelFactor of them at a time. The first
// failure cancels the context of the others. Return is elapsed time and every error combined.
func RunInParallel(ctx context.Context, fs []SimpleFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var bigError error
	var bigErrorMutex sync.Mutex
	storeError := func(err error) {
		bigErrorMutex.Lock()
		defer bigErrorMutex.Unlock()
		if bigError == nil || !errors.Is(err, context.Canceled) {
			bigError = multierr.Combine(bigError, err)
		}
	}

	slots := make(chan struct{}, ParallelFactor)
	helper := func(f SimpleFunc) {
		defer func() {
			if thePanic := recover(); thePanic != nil {
				storeError(fmt.Errorf("got panic running something in parallel: %v", thePanic))
				cancel()
			}
			<-slots
			wg.Done()
		}()
		if err := ctx.Err(); err != nil {
			storeError(err)
			return
		}
		if err := f(ctx); err != nil {
			storeError(err)
			cancel()
		}
	}

	for _, f := range fs {
		f := f
		wg.Add(1)
		slots <- struct{}{}
		utils.PanicCapturingGo(func() { helper(f) })
	}

	wg.Wait()
	return time.Since(start), bigError
}
