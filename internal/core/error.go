package core

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
	"errors"

	"github.com/x-stp/revokeguard/internal/profile"
	"github.com/x-stp/revokeguard/internal/scraper"
)

// ErrNoDomains is returned when no source contributed a single domain. Nothing is
// written in that case.
var ErrNoDomains = errors.New("no domains extracted from any source")

// Error types reported in source failure metrics.
const (
	ErrorTypeLocator  = "locator"
	ErrorTypeFetch    = "fetch"
	ErrorTypeDecode   = "decode"
	ErrorTypeCanceled = "canceled"
	ErrorTypeOther    = "other"
)

// errorType classifies a per-source failure. The locator check comes first since a
// locator miss is reported through the fetch path.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCanceled
	case errors.Is(err, scraper.ErrLocator):
		return ErrorTypeLocator
	case errors.Is(err, scraper.ErrFetch):
		return ErrorTypeFetch
	case errors.Is(err, profile.ErrDecode):
		return ErrorTypeDecode
	default:
		return ErrorTypeOther
	}
}
