// Package config loads run settings: built-in defaults, then an optional YAML file,
// then environment overrides. Command-line flags are applied last by the caller.
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
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/x-stp/revokeguard/internal/certlib"
	"github.com/x-stp/revokeguard/internal/client"
	"github.com/x-stp/revokeguard/internal/profile"
	"github.com/x-stp/revokeguard/internal/retry"
	"github.com/x-stp/revokeguard/internal/rules"
	"github.com/x-stp/revokeguard/internal/scraper"
	"gopkg.in/yaml.v3"
)

// DefaultOutputDir is where artifacts go unless configured otherwise.
const DefaultOutputDir = "output"

// HTTP holds fetch settings.
type HTTP struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	UserAgent  string        `yaml:"user_agent"`
}

// Config is the full run configuration.
type Config struct {
	OutputDir    string           `yaml:"output_dir"`
	Author       string           `yaml:"author"`
	BackendHost  string           `yaml:"backend_host"`
	CertPath     string           `yaml:"cert_path"`
	KeyPath      string           `yaml:"key_path"`
	Signer       string           `yaml:"signer"`
	StrictVerify bool             `yaml:"strict_verify"`
	KeepProfiles bool             `yaml:"keep_profiles"`
	MetricsFile  string           `yaml:"metrics_file"`
	HTTP         HTTP             `yaml:"http"`
	Sources      []scraper.Source `yaml:"sources"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir:   DefaultOutputDir,
		Author:      rules.DefaultAuthor,
		BackendHost: profile.DefaultBackendHost,
		CertPath:    certlib.DefaultCertPath,
		KeyPath:     certlib.DefaultKeyPath,
		Signer:      certlib.SignerNative,
		HTTP: HTTP{
			Timeout:    retry.DefaultTimeout,
			Retries:    retry.DefaultAttempts,
			RetryDelay: retry.DefaultDelay,
			UserAgent:  client.DefaultUserAgent,
		},
		Sources: scraper.DefaultSources(),
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path is
// empty) and the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		// Clean the path to prevent directory traversal attacks
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath) // #nosec G304 - config path comes from the operator
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}
	if _, err := certlib.NewSigner(c.Signer); err != nil {
		errs = append(errs, fmt.Errorf("signer: %w", err))
	}
	if c.HTTP.Retries < 1 {
		errs = append(errs, fmt.Errorf("http.retries must be at least 1, got %d", c.HTTP.Retries))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout))
	}
	if c.HTTP.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("http.retry_delay must not be negative, got %s", c.HTTP.RetryDelay))
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: invalid url %q", i, s.URL))
		}
		if strings.TrimSpace(s.Locator) == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: locator is required", i))
		}
	}
	return errors.Join(errs...)
}

// RetryPolicy derives the fetch retry policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: c.HTTP.Retries,
		Timeout:  c.HTTP.Timeout,
		Delay:    c.HTTP.RetryDelay,
	}
}

// ClientConfig derives the HTTP client settings.
func (c Config) ClientConfig() *client.Config {
	cc := client.DefaultConfig()
	if c.HTTP.UserAgent != "" {
		cc.UserAgent = c.HTTP.UserAgent
	}
	return cc
}

// Credentials returns the signing credentials.
func (c Config) Credentials() certlib.Credentials {
	return certlib.Credentials{CertPath: c.CertPath, KeyPath: c.KeyPath}
}
