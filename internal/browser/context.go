// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context that is canceled when either parent
// is. Session operations use it so a DOM action respects both the
// session lifetime and the caller's deadline.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext wraps a parent to create a detached context: it
// inherits values (the CDP target, crucially) but ignores the parent's
// deadline and cancellation. Used for cleanup that must still run after
// the triggering operation is canceled.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach strips cancellation from ctx while keeping its values.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
