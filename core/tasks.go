package core

import "context"

// GoTaskRunner runs detached work on its own goroutine. The task keeps the
// caller's context values but not its cancellation: webhook handlers must be
// able to ack immediately while ledger and delivery work continues.
type GoTaskRunner struct {
	Logger Logger
}

func (r GoTaskRunner) Detach(ctx context.Context, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := fn(detached); err != nil && r.Logger != nil {
			r.Logger.Error("detached task failed", "task", name, "error", err.Error())
		}
	}()
}

// SyncTaskRunner executes tasks inline. It exists so tests can drive the
// detach boundary deterministically.
type SyncTaskRunner struct {
	Logger Logger
}

func (r SyncTaskRunner) Detach(ctx context.Context, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil && r.Logger != nil {
		r.Logger.Error("task failed", "task", name, "error", err.Error())
	}
}
