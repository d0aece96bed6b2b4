/*
Package scraper turns a source descriptor into the bytes of the profile it links to:
fetch the page, locate the download anchor, resolve its href and download it. Both
requests run under the retry policy; a locator that matches nothing is not retried.
*/
package scraper

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
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html/charset"
)

// ErrLocator is returned when a locator matches no usable link.
var ErrLocator = errors.New("download link not found")

// Source describes where a profile is published.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Locator selects the download anchor: an XPath expression when it starts with
	// "/" or "(", a CSS selector otherwise.
	Locator string `yaml:"locator"`
}

// DefaultSources are the pages scraped when no sources are configured.
func DefaultSources() []Source {
	return []Source{
		{
			Name:    "khoindvn",
			URL:     "https://khoindvn.io.vn/",
			Locator: "/html/body/main/section[2]/div[2]/div[1]/a",
		},
		{
			Name:    "applejr",
			URL:     "https://applejr.net/",
			Locator: "/html/body/div[3]/div/form/div[3]/label/a",
		},
	}
}

// IsXPath reports whether locator is treated as XPath.
func IsXPath(locator string) bool {
	return strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(")
}

// Locate finds the first element matched by locator in page and returns its href
// resolved against base. contentType is used to pick the page charset.
func Locate(page []byte, contentType string, base *url.URL, locator string) (string, error) {
	if strings.TrimSpace(locator) == "" {
		return "", fmt.Errorf("%w: empty locator", ErrLocator)
	}

	var r io.Reader = bytes.NewReader(page)
	if cr, err := charset.NewReader(r, contentType); err == nil {
		r = cr
	} else {
		r = bytes.NewReader(page)
	}

	var href string
	if IsXPath(locator) {
		doc, err := htmlquery.Parse(r)
		if err != nil {
			return "", fmt.Errorf("%w: parse page: %w", ErrLocator, err)
		}
		node, err := htmlquery.Query(doc, locator)
		if err != nil {
			return "", fmt.Errorf("%w: invalid xpath %q: %w", ErrLocator, locator, err)
		}
		if node != nil {
			href = htmlquery.SelectAttr(node, "href")
		}
	} else {
		doc, err := goquery.NewDocumentFromReader(r)
		if err != nil {
			return "", fmt.Errorf("%w: parse page: %w", ErrLocator, err)
		}
		href, _ = doc.Find(locator).First().Attr("href")
	}

	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: %q matched nothing with an href", ErrLocator, locator)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: bad href %q: %w", ErrLocator, href, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
