package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

func try(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if err != nil {
		return err
	}
	return catcher.Recovered().AsError()
}

// Safe turns a panic inside fn into a returned error carrying the stack.
func Safe(fn func() error) func() error {
	return func() error {
		return try(fn)
	}
}

func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return try(func() error { return fn(ctx) })
	}
}

// Go runs a long-lived background job in its own goroutine. A panic ends the
// job and is logged under name instead of crashing the process.
func Go(ctx context.Context, name string, job func(context.Context)) {
	go func() {
		err := try(func() error {
			job(ctx)
			return nil
		})
		if err != nil {
			slog.ErrorContext(ctx, "background job panicked", "job", name, "error", err)
		}
	}()
}
