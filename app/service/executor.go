package service

import (
	"context"
	"time"

	"github.com/staffhive/ms-go-payouts/app/rail"
)

// TransferExecutor wraps a single rail transfer with a bounded retry policy.
// It knows nothing about payments or splits; both the release orchestrator and
// the self-service retry go through it.
type TransferExecutor struct {
	rails       *rail.Registry
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(time.Duration)
}

func NewTransferExecutor(rails *rail.Registry, maxAttempts int, retryDelay time.Duration) *TransferExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	return &TransferExecutor{
		rails:       rails,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		sleep:       time.Sleep,
	}
}

// Execute attempts the transfer up to maxAttempts times with a fixed delay
// between attempts. Every error counts as transient until the ceiling, then
// the last error is returned as-is.
func (e *TransferExecutor) Execute(ctx context.Context, railCode int32, input *rail.TransferInput) (string, error) {
	railClient, err := e.rails.Get(railCode)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			e.sleep(e.retryDelay)
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}

		transferID, err := railClient.CreateTransfer(ctx, input)
		if err == nil {
			return transferID, nil
		}
		lastErr = err
	}

	return "", lastErr
}
