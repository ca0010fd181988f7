package db

import (
	"context"
	"time"

	"natours/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

// ConnectTimeout bounds how long startup keeps retrying a backing service.
var ConnectTimeout = 30 * time.Second

// retry runs op with exponential backoff until it succeeds, ctx ends or
// ConnectTimeout elapses.
func retry(ctx context.Context, service string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = ConnectTimeout

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil {
			logger.Warn("connect_retry", map[string]any{
				"service": service,
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		return err
	}, backoff.WithContext(b, ctx))
}
