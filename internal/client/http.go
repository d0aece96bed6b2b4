package client

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

/*
Package client builds the HTTP client used to fetch source pages and profile downloads.

Sources are a handful of small sites hit once per run, so pooling is kept modest. Every
request carries a browser-like User-Agent because some sources serve a different page
(or nothing) to unknown clients.
*/

import (
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	// defaultDialTimeout specifies the default timeout for establishing a new connection.
	defaultDialTimeout = 5 * time.Second
	// defaultKeepAliveTimeout specifies the default keep-alive period for an active network connection.
	defaultKeepAliveTimeout = 30 * time.Second
	// defaultIdleConnTimeout is the maximum amount of time an idle (keep-alive) connection will remain
	// idle before closing itself.
	defaultIdleConnTimeout = 90 * time.Second
	// defaultMaxIdleConns controls the maximum number of idle (keep-alive) connections across all hosts.
	defaultMaxIdleConns = 16
	// defaultMaxIdleConnsPerHost is the idle pool size per host.
	defaultMaxIdleConnsPerHost = 4
	// defaultRequestTimeout bounds a whole request. The retry policy sets a per-attempt
	// deadline as well; this one is the backstop.
	defaultRequestTimeout = 30 * time.Second
)

// Config holds configuration parameters for the HTTP client.
// A zero-value Config will result in default settings being used.
type Config struct {
	// DialTimeout is the maximum duration for establishing a new connection.
	DialTimeout time.Duration
	// KeepAliveTimeout specifies the keep-alive period for an active network connection.
	KeepAliveTimeout time.Duration
	// IdleConnTimeout is the maximum amount of time an idle (keep-alive) connection
	// will remain idle before closing itself.
	IdleConnTimeout time.Duration
	// MaxIdleConns controls the maximum number of idle (keep-alive) connections across all hosts.
	MaxIdleConns int
	// MaxIdleConnsPerHost is the maximum number of idle (keep-alive) connections to keep per host.
	MaxIdleConnsPerHost int
	// RequestTimeout is the timeout for the entire HTTP request, including connection time,
	// all redirects, and reading the response body.
	RequestTimeout time.Duration
	// UserAgent is set on every request that does not already carry one.
	UserAgent string
}

// DefaultConfig returns a new Config struct populated with default HTTP client settings.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:         defaultDialTimeout,
		KeepAliveTimeout:    defaultKeepAliveTimeout,
		IdleConnTimeout:     defaultIdleConnTimeout,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		RequestTimeout:      defaultRequestTimeout,
		UserAgent:           DefaultUserAgent,
	}
}

// New returns an *http.Client built from config. Zero fields fall back to defaults;
// a nil config means DefaultConfig. config itself is not modified.
func New(config *Config) *http.Client {
	c := DefaultConfig()
	if config != nil {
		if config.DialTimeout != 0 {
			c.DialTimeout = config.DialTimeout
		}
		if config.KeepAliveTimeout != 0 {
			c.KeepAliveTimeout = config.KeepAliveTimeout
		}
		if config.IdleConnTimeout != 0 {
			c.IdleConnTimeout = config.IdleConnTimeout
		}
		if config.MaxIdleConns != 0 {
			c.MaxIdleConns = config.MaxIdleConns
		}
		if config.MaxIdleConnsPerHost != 0 {
			c.MaxIdleConnsPerHost = config.MaxIdleConnsPerHost
		}
		if config.RequestTimeout != 0 {
			c.RequestTimeout = config.RequestTimeout
		}
		if config.UserAgent != "" {
			c.UserAgent = config.UserAgent
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment, // Respect standard proxy environment variables.
		DialContext: (&net.Dialer{
			Timeout:   c.DialTimeout,
			KeepAlive: c.KeepAliveTimeout,
		}).DialContext,
		MaxIdleConns:          c.MaxIdleConns,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: c.UserAgent},
		Timeout:   c.RequestTimeout,
	}
}

// userAgentTransport sets a default User-Agent header.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// CloseIdleConnections releases pooled connections of a client returned by New.
func CloseIdleConnections(c *http.Client) {
	if c != nil {
		c.CloseIdleConnections()
	}
}
