// File path: internal/common/errors_test.go
package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallTimeoutWrapsExpiredCall(t *testing.T) {
	parent := context.Background()
	callCtx, cancel := context.WithTimeout(parent, time.Nanosecond)
	defer cancel()
	<-callCtx.Done()

	err := CallTimeout(parent, callCtx, callCtx.Err(), "guidelines search", time.Nanosecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "guidelines search", te.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallTimeoutLeavesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	err := CallTimeout(parent, parent, context.Canceled, "op", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te))

	other := errors.New("boom")
	assert.Equal(t, other, CallTimeout(context.Background(), context.Background(), other, "op", time.Second))
	assert.NoError(t, CallTimeout(context.Background(), context.Background(), nil, "op", time.Second))
}
