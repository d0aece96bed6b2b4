package config

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
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by applyEnvOverrides.
const (
	EnvCertPath     = "SSL_CERT_PATH"
	EnvKeyPath      = "SSL_KEY_PATH"
	EnvOutputDir    = "REVOKEGUARD_OUTPUT_DIR"
	EnvAuthor       = "REVOKEGUARD_AUTHOR"
	EnvSigner       = "REVOKEGUARD_SIGNER"
	EnvStrictVerify = "REVOKEGUARD_STRICT_VERIFY"
	EnvHTTPTimeout  = "REVOKEGUARD_HTTP_TIMEOUT"
	EnvHTTPRetries  = "REVOKEGUARD_HTTP_RETRIES"
	EnvMetricsFile  = "REVOKEGUARD_METRICS_FILE"
)

// applyEnvOverrides overrides config values with environment variables if set
// Returns error for invalid environment variable values to fail fast
func applyEnvOverrides(cfg *Config) error {
	// Credentials
	if v := os.Getenv(EnvCertPath); v != "" {
		cfg.CertPath = v
	}
	if v := os.Getenv(EnvKeyPath); v != "" {
		cfg.KeyPath = v
	}

	// Output
	if v := os.Getenv(EnvOutputDir); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv(EnvAuthor); v != "" {
		cfg.Author = v
	}
	if v := os.Getenv(EnvMetricsFile); v != "" {
		cfg.MetricsFile = v
	}

	// Signing
	if v := os.Getenv(EnvSigner); v != "" {
		cfg.Signer = v
	}
	if v := os.Getenv(EnvStrictVerify); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvStrictVerify, v, err)
		}
		cfg.StrictVerify = b
	}

	// HTTP
	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHTTPTimeout, v, err)
		}
		cfg.HTTP.Timeout = d
	}
	if v := os.Getenv(EnvHTTPRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHTTPRetries, v, err)
		}
		cfg.HTTP.Retries = n
	}
	return nil
}

// parseBool accepts the usual spellings plus yes/no and on/off.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}
