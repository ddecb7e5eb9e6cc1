package bulk

import "context"

// dispatcher schedules a submitted job for execution.
type dispatcher interface {
	// Dispatch schedules the job; execution happens asynchronously
	Dispatch(ctx context.Context, jobID string) error

	// Close releases dispatcher resources
	Close() error
}

// localDispatcher runs jobs on in-process goroutines. This is the default;
// queue dispatch is opt-in.
type localDispatcher struct {
	engine *engine
}

func (d *localDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.engine.wg.Add(1)

	go func() {
		defer d.engine.wg.Done()
		d.engine.runJob(d.engine.runCtx, jobID)
	}()

	return nil
}

func (d *localDispatcher) Close() error {
	return nil
}

// Verify interface compliance at compile time
var _ dispatcher = (*localDispatcher)(nil)
