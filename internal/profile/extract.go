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

// Profile keys walked by ExtractDomains and written by Encode.
const (
	KeyPayloadContent           = "PayloadContent"
	KeyDNSSettings              = "DNSSettings"
	KeySupplementalMatchDomains = "SupplementalMatchDomains"
)

// DomainSet is the set of domains found in one payload.
type DomainSet map[string]struct{}

// Sorted returns the members of s in ascending byte order.
func (s DomainSet) Sorted() []string {
	return MergeDomains(s)
}

// ExtractDomains collects every string under
// PayloadContent[*].DNSSettings.SupplementalMatchDomains[*].
//
// Nodes that are missing or have the wrong shape contribute nothing. Strings are taken
// verbatim; syntax is not checked here.
func ExtractDomains(payload Value) DomainSet {
	out := make(DomainSet)
	for _, entry := range payload.Get(KeyPayloadContent).List() {
		settings := entry.Get(KeyDNSSettings)
		for _, d := range settings.Get(KeySupplementalMatchDomains).List() {
			if s, ok := d.Str(); ok {
				out[s] = struct{}{}
			}
		}
	}
	return out
}
