package agent

import (
	"context"
	"errors"
	"time"

	"evoforge/internal/logging"
)

// RetryPolicy bounds invocation retries with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// InvokeWithRetry invokes cap, retrying transient failures with exponential
// backoff. Rejected requests and context cancellation are never retried.
func InvokeWithRetry(ctx context.Context, cap Capability, req Request, policy RetryPolicy) (*Response, error) {
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff << uint(attempt-1)
			logging.AgentDebug("[%s] retry %d/%d after %v: %v", cap.Name(), attempt, policy.MaxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, &AgentError{Agent: cap.Name(), Kind: KindTimeout, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		resp, err := cap.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &AgentError{Agent: cap.Name(), Kind: KindTimeout, Err: ctx.Err()}
		}
		var agentErr *AgentError
		if errors.As(err, &agentErr) && !agentErr.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}
