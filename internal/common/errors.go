// File path: internal/common/errors.go
package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an external call that exceeded its caller-supplied budget.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// Is lets errors.Is(err, context.DeadlineExceeded) keep working on wrapped timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// CallTimeout converts err into a *TimeoutError when callCtx expired but parent is
// still live. Anything else is returned unchanged.
func CallTimeout(parent, callCtx context.Context, err error, op string, after time.Duration) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: after}
	}
	return err
}
