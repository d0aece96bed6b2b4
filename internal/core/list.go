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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/x-stp/revokeguard/internal/scraper"
)

// ListSources writes a table of sources to w, marking which locator language each uses.
// It backs the 'sources' command and does no network access.
func ListSources(w io.Writer, sources []scraper.Source) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tKIND\tLOCATOR")
	for _, s := range sources {
		kind := "css"
		if scraper.IsXPath(s.Locator) {
			kind = "xpath"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.URL, kind, s.Locator)
	}
	return tw.Flush()
}
