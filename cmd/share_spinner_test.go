package cmd

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunShareSpinnerCancelsDispatchWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	sawCancel := make(chan bool, 1)
	start := time.Now()
	err := runShareSpinner(ctx, io.Discard, "sharing", func(ctx context.Context, _ ports.ProgressReporter) error {
		select {
		case <-ctx.Done():
			sawCancel <- true
			return ctx.Err()
		case <-time.After(3 * time.Second):
			sawCancel <- false
			return nil
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, <-sawCancel)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunShareSpinnerReturnsDispatchError(t *testing.T) {
	dispatchErr := errors.New("pool exhausted")

	err := runShareSpinner(context.Background(), io.Discard, "sharing", func(_ context.Context, reporter ports.ProgressReporter) error {
		reporter.Progress(domain.ProgressEvent{Completed: 1, Total: 2})
		return dispatchErr
	})

	require.ErrorIs(t, err, dispatchErr)
}
