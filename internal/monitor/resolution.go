package monitor

import (
	"context"
	"sync"

	"spark-monitor/internal/appmodel"
)

// resolution is the one-shot future for tag→app resolution (SPEC_FULL §9
// DESIGN NOTES): the resolved Application is produced exactly once and
// awaited both by the monitor body and by the kill() path.
type resolution struct {
	done chan struct{}
	once sync.Once
	app  appmodel.Application
	err  error
}

func newResolution() *resolution {
	return &resolution{done: make(chan struct{})}
}

func (r *resolution) setResult(app appmodel.Application) {
	r.once.Do(func() {
		r.app = app
		close(r.done)
	})
}

func (r *resolution) setError(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// await blocks until the resolution completes or ctx is done, whichever
// happens first.
func (r *resolution) await(ctx context.Context) (appmodel.Application, error) {
	select {
	case <-r.done:
		return r.app, r.err
	case <-ctx.Done():
		return appmodel.Application{}, ctx.Err()
	}
}

// peek returns the resolved value without blocking, if resolution has
// already completed.
func (r *resolution) peek() (appmodel.Application, bool) {
	select {
	case <-r.done:
		return r.app, r.err == nil
	default:
		return appmodel.Application{}, false
	}
}
