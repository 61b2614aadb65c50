package ctxutil

import (
	"context"
	"time"

	"go.capitolfeed.build/go/sklog"
)

// ConfirmContextHasDeadline logs an error if the given context does not
// carry a deadline. The store calls it before each upsert transaction; it
// only logs, it does not add a deadline.
func ConfirmContextHasDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		sklog.Errorf("ctx is missing deadline at %s", sklog.CallSite(3))
	}
}

// WithContextTimeout calls `f` with a context that has a timeout, and
// ensures that the cancel function gets called.
func WithContextTimeout(ctx context.Context, timeout time.Duration, f func(ctx context.Context)) {
	timeoutContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	f(timeoutContext)
}
