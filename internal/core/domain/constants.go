package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicateRegistration = errors.New("duplicate command registration")
	ErrInvalidRegistration   = errors.New("invalid command registration")
	ErrRegistrySealed        = errors.New("command registry is sealed")
	ErrTransportAuth         = errors.New("transport authentication failed")
	ErrDisconnected          = errors.New("transport disconnected")
	ErrNotConnected          = errors.New("transport not connected")
	ErrMaxRetries            = errors.New("max retries reached")
	ErrMissingToken          = errors.New("bot token not set")
)

// RateLimitedError reports that the platform asked the client to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}
