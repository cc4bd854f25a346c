// Package agent provides model backend clients behind a single Capability
// interface, plus retry and fallback selection policy.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Capability is one invocable model backend.
type Capability interface {
	// Name is the agent name referenced from blueprint agent sequences.
	Name() string
	// Invoke sends a prompt and returns the raw completion. Errors are
	// *AgentError so callers can distinguish transient from permanent
	// failures.
	Invoke(ctx context.Context, req Request) (*Response, error)
	// Available reports whether the backend is configured for use.
	Available() bool
}

// Request is one agent invocation.
type Request struct {
	System string
	Prompt string
	// Stage is the blueprint role driving this invocation, for logging.
	Stage string
}

// Response is a completed invocation.
type Response struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// ErrorKind classifies agent failures for retry policy.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindRejected    ErrorKind = "rejected"
	KindUnknown     ErrorKind = "unknown"
)

// AgentError wraps a backend failure with its classification.
type AgentError struct {
	Agent string
	Kind  ErrorKind
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Kind, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly succeed.
func (e *AgentError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindRateLimited || e.Kind == KindUnknown
}

// ErrUnavailable is returned when no configured agent can serve a stage.
var ErrUnavailable = errors.New("no available agent")

// classify wraps err as an AgentError using context state and HTTP status.
func classify(agent string, status int, err error) *AgentError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AgentError{Agent: agent, Kind: KindTimeout, Err: err}
	case status == 429:
		return &AgentError{Agent: agent, Kind: KindRateLimited, Err: err}
	case status >= 400 && status < 500:
		return &AgentError{Agent: agent, Kind: KindRejected, Err: err}
	default:
		return &AgentError{Agent: agent, Kind: KindUnknown, Err: err}
	}
}
