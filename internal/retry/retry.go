package retry

/*
revokeguard — merges iOS DNS profiles into a signed profile and rule lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for Policy.
const (
	DefaultAttempts = 3
	DefaultTimeout  = 10 * time.Second
	DefaultDelay    = time.Second
)

// Policy is a fixed-attempt retry policy. Every attempt runs under its own Timeout and
// consecutive attempts are spaced at least Delay apart. There is no backoff or jitter.
type Policy struct {
	Attempts int
	Timeout  time.Duration
	Delay    time.Duration

	// OnRetry, if set, is called after a failed attempt when another one follows.
	// attempt is the 1-based number of the attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns 3 attempts of 10s each, one second apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Timeout:  DefaultTimeout,
		Delay:    DefaultDelay,
	}
}

// Do runs op until it succeeds, returns an error flagged non-retryable (Permanent or
// NewError(msg, false)), the attempts are used up, or ctx is done. It returns the last error seen.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	limit := rate.Inf
	if p.Delay > 0 {
		limit = rate.Every(p.Delay)
	}
	// Burst of one: the first attempt goes out immediately, later ones wait for a token.
	limiter := rate.NewLimiter(limit, 1)

	var lastErr error
	for attempt := range attempts {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %w)", err, lastErr)
			}
			return zero, err
		}

		v, err := runAttempt(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !shouldRetry(err) || ctx.Err() != nil {
			break
		}
		if attempt+1 < attempts && p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}
	}
	return zero, lastErr
}

// shouldRetry reports whether another attempt may help. Errors flagged with NewError
// follow their flag; Permanent errors stop; anything else, such as a network error, is
// treated as transient.
func shouldRetry(err error) bool {
	if IsRetryable(err) {
		return true
	}
	return !IsPermanent(err)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}
