package util

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

import "strings"

// MaxFilenameLength bounds the names SanitizeFilename returns.
const MaxFilenameLength = 100

// ProfileExt is the extension of saved upstream profiles.
const ProfileExt = ".mobileconfig"

// SanitizeFilename creates a filesystem-safe filename from a source name or URL.
// Separators, wildcards and control characters become underscores, leading dots
// are dropped so the result is never hidden or relative, and the length is capped.
func SanitizeFilename(input string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, strings.TrimSpace(input))
	replaced = strings.TrimLeft(replaced, ".")
	if replaced == "" {
		return "_"
	}
	if len(replaced) > MaxFilenameLength {
		return replaced[:MaxFilenameLength]
	}
	return replaced
}

// ProfileFilename names the saved copy of a source's profile.
func ProfileFilename(source string) string {
	return SanitizeFilename(source) + ProfileExt
}
