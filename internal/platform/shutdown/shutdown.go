package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Closer is run in reverse registration order by Run.
type Closer func(ctx context.Context) error

// Run calls each closer with a context bounded by timeout and joins their errors.
func Run(timeout time.Duration, closers ...Closer) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] == nil {
			continue
		}
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
