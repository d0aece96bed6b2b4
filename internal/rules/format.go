/*
Package rules renders the merged domain list into the flat rule files consumed by proxy
and filtering tools. Every document starts with the same header; the body is one line per
domain in the order given.
*/
package rules

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
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Header values shared by every document.
const (
	DefaultProject = "iOS-AntiRevoke-DNS-Rules"
	DefaultAuthor  = "RzMY"
	DefaultLicense = "MIT License"

	// UpdatedLayout formats Header.Updated.
	UpdatedLayout = "2006-01-02 15:04:05 UTC"
)

// Format describes one output document.
type Format struct {
	// Name is the key used in metadata.
	Name string
	// File is the fixed output filename.
	File string
	// Syntax is the "# Format:" comment, empty for none.
	Syntax string
	// Line renders one domain.
	Line func(domain string) string
}

func domainRule(d string) string { return "DOMAIN," + d + ",REJECT" }

// Formats lists every document in output order.
var Formats = []Format{
	{
		Name:   "Quantumult X",
		File:   "RevokeGuard_QuantumultX.txt",
		Syntax: "host, domain, action",
		Line:   func(d string) string { return "host, " + d + ", reject" },
	},
	{Name: "Surge", File: "RevokeGuard_Surge.txt", Syntax: "DOMAIN,domain,action", Line: domainRule},
	{Name: "Loon", File: "RevokeGuard_Loon.txt", Syntax: "DOMAIN,domain,action", Line: domainRule},
	{Name: "Shadowrocket", File: "RevokeGuard_Shadowrocket.txt", Syntax: "DOMAIN,domain,action", Line: domainRule},
	{
		Name:   "Hosts",
		File:   "RevokeGuard_hosts.txt",
		Syntax: "IP domain",
		Line:   func(d string) string { return "0.0.0.0 " + d },
	},
	{
		Name: "Domain List",
		File: "domains.txt",
		Line: func(d string) string { return d },
	},
}

// Lookup returns the format registered under name.
func Lookup(name string) (Format, bool) {
	for _, f := range Formats {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Format{}, false
}

// Header is the metadata block at the top of each document.
type Header struct {
	Project string
	Author  string
	Updated time.Time
	Count   int
	License string
}

// NewHeader fills the fixed fields and stamps the count.
func NewHeader(author string, updated time.Time, count int) Header {
	if author == "" {
		author = DefaultAuthor
	}
	return Header{
		Project: DefaultProject,
		Author:  author,
		Updated: updated,
		Count:   count,
		License: DefaultLicense,
	}
}

func (h Header) lines() []string {
	return []string{
		"# Project: " + h.Project,
		"# Author: " + h.Author,
		"# Updated: " + h.Updated.UTC().Format(UpdatedLayout),
		fmt.Sprintf("# Domain Count: %d", h.Count),
		"# License: " + h.License,
	}
}

// Render builds one document. Domains are trimmed and blank ones skipped; order is kept.
// The "# Format:" line, when the format has one, follows the header and precedes the
// blank separator. Every line, the last included, ends in a newline.
func Render(f Format, domains []string, h Header) []byte {
	var buf bytes.Buffer
	buf.Grow(256 + len(domains)*32)

	for _, l := range h.lines() {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if f.Syntax != "" {
		buf.WriteString("# Format: ")
		buf.WriteString(f.Syntax)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		buf.WriteString(f.Line(d))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
