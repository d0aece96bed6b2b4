/*
Package retry provides the bounded retry policy used around network calls, together with
an error type that carries a retryable flag so callers can stop retrying early.
*/
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

import "errors"

// customError is an error type that includes a retryable flag.
// It optionally wraps an underlying cause so errors.Is and errors.As keep working.
type customError struct {
	message   string // The error message.
	retryable bool   // True if the condition might be resolved by retrying.
	cause     error  // Wrapped error, may be nil.
}

// NewError creates a new customError with the given message and retryable status.
func NewError(msg string, retryable bool) error {
	return &customError{
		message:   msg,
		retryable: retryable,
	}
}

// Permanent marks err as not worth retrying. Do returns it after the current attempt.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &customError{
		message:   err.Error(),
		retryable: false,
		cause:     err,
	}
}

// Error implements the standard Go `error` interface.
func (e *customError) Error() string {
	return e.message
}

// Unwrap returns the wrapped cause, if any.
func (e *customError) Unwrap() error {
	return e.cause
}

// IsRetryable returns true if the error is designated as retryable.
func (e *customError) IsRetryable() bool {
	return e.retryable
}

// IsRetryable reports whether err carries a retryable flag that is set.
// Errors that are not a *customError default to false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *customError
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
// Unknown errors are not permanent: the retry loop treats them as transient.
func IsPermanent(err error) bool {
	var e *customError
	if errors.As(err, &e) {
		return !e.retryable
	}
	return false
}
