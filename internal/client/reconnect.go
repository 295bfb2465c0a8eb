package client

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrGaveUp = errors.New("gave up reconnecting")

// ReconnectPolicy decides how often and how long to retry a lost
// connection. It knows nothing about what is being reconnected.
type ReconnectPolicy struct {
	// MaxAttempts is the number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential schedule.
	MaxDelay time.Duration
	// OnAttempt, if set, is told about each failed attempt.
	OnAttempt func(attempt int, delay time.Duration, err error)
	// OnGiveUp, if set, runs once when the attempts are exhausted.
	OnGiveUp func(err error)
}

// DefaultReconnectPolicy retries five times over roughly half a minute.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    16 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt, counting from 1.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Run calls connect until it succeeds, ctx ends or the attempts run out.
func (p ReconnectPolicy) Run(ctx context.Context, connect func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = connect(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	err = fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempts, err)
	if p.OnGiveUp != nil {
		p.OnGiveUp(err)
	}
	return err
}
