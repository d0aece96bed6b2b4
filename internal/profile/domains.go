package profile

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
	"fmt"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
)

// MergeDomains returns the union of sets without blank entries, sorted ascending.
// Entries are compared exactly; case and surrounding whitespace are preserved.
//
// The order is total so that everything rendered from the result is byte-reproducible.
func MergeDomains(sets ...DomainSet) []string {
	size := 0
	for _, s := range sets {
		size += len(s)
	}
	seen := make(map[string]struct{}, size)
	out := make([]string, 0, size)
	for _, s := range sets {
		for d := range s {
			if strings.TrimSpace(d) == "" {
				continue
			}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out
}

// Fingerprint returns a stable 16 hex digit xxh3 hash of a merged list.
// Two runs that produce the same list produce the same fingerprint.
func Fingerprint(domains []string) string {
	h := xxh3.New()
	for _, d := range domains {
		_, _ = h.Write([]byte(d))
		_, _ = h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
