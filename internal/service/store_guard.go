package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

const defaultStoreTimeout = 5 * time.Second

// storeGuard bounds every store call with a deadline and records its latency.
type storeGuard struct {
	timeout time.Duration
	metrics *MetricsService
}

func (g storeGuard) call(ctx context.Context, op string, fn func(context.Context) error) error {
	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	g.metrics.ObserveStoreCall(op, time.Since(start))
	return err
}

// storeFailure converts an unexpected store error into a retryable STORE_ERROR.
func storeFailure(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.StoreFailure(err, message+": store timed out")
	}
	return appErrors.StoreFailure(err, message)
}
