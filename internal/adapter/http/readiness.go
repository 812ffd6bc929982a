package http

import (
	"context"
	"errors"
)

type readinessFunc func(ctx context.Context) error

func (f readinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// AllReady combines checkers; the result is ready only when every non-nil
// checker is. With no checkers it is always ready.
func AllReady(checkers ...ReadinessChecker) ReadinessChecker {
	return readinessFunc(func(ctx context.Context) error {
		var errs []error
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.CheckReadiness(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
