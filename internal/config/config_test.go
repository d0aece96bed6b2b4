package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/x-stp/revokeguard/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvCertPath, "")
	t.Setenv(EnvKeyPath, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputDir != "output" {
		t.Errorf("OutputDir = %q; want output", cfg.OutputDir)
	}
	if cfg.CertPath != "fullchain.pem" || cfg.KeyPath != "privkey.pem" {
		t.Errorf("credentials = %q, %q", cfg.CertPath, cfg.KeyPath)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("len(Sources) = %d; want 2", len(cfg.Sources))
	}
	if p := cfg.RetryPolicy(); p.Attempts != 3 || p.Timeout != 10*time.Second {
		t.Errorf("RetryPolicy() = %+v", p)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "revokeguard.yaml", []byte(`
output_dir: /srv/rules
author: ops
signer: openssl
keep_profiles: true
http:
  timeout: 4s
  retries: 5
  retry_delay: 250ms
sources:
  - name: mirror
    url: https://mirror.example.com/
    locator: a.download
`))

	t.Setenv(EnvCertPath, "/etc/ssl/fullchain.pem")
	t.Setenv(EnvKeyPath, "")
	t.Setenv(EnvHTTPRetries, "2")
	t.Setenv(EnvStrictVerify, "yes")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	testCases := []struct {
		name     string
		got      any
		expected any
	}{
		{"output", cfg.OutputDir, "/srv/rules"},
		{"author", cfg.Author, "ops"},
		{"signer", cfg.Signer, "openssl"},
		{"keep", cfg.KeepProfiles, true},
		{"timeout", cfg.HTTP.Timeout, 4 * time.Second},
		{"delay", cfg.HTTP.RetryDelay, 250 * time.Millisecond},
		{"retries from env", cfg.HTTP.Retries, 2},
		{"strict from env", cfg.StrictVerify, true},
		{"cert from env", cfg.CertPath, "/etc/ssl/fullchain.pem"},
		{"key default kept", cfg.KeyPath, "privkey.pem"},
		{"sources replaced", len(cfg.Sources), 1},
		{"source name", cfg.Sources[0].Name, "mirror"},
	}
	for _, tc := range testCases {
		if tc.got != tc.expected {
			t.Errorf("%s = %v; want %v", tc.name, tc.got, tc.expected)
		}
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{"unknown signer", "signer: hsm\n", nil, "unknown signer"},
		{"zero retries", "http:\n  retries: 0\n", nil, "http.retries"},
		{"bad source url", "sources:\n  - name: x\n    url: nope\n    locator: a\n", nil, "invalid url"},
		{"duplicate source", "sources:\n  - {name: x, url: 'https://a.example/', locator: a}\n  - {name: x, url: 'https://b.example/', locator: a}\n", nil, "duplicate name"},
		{"missing locator", "sources:\n  - {name: x, url: 'https://a.example/'}\n", nil, "locator is required"},
		{"malformed yaml", "sources: [", nil, "failed to parse"},
		{"bad env bool", "", map[string]string{EnvStrictVerify: "maybe"}, EnvStrictVerify},
		{"bad env duration", "", map[string]string{EnvHTTPTimeout: "soon"}, EnvHTTPTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := testutil.WriteFile(t, dir, strings.ReplaceAll(tc.name, " ", "_")+".yaml", []byte(tc.yaml))
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Load() error = %v; want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load(absent) succeeded")
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected bool
		wantErr  bool
	}{
		{"true", true, false},
		{" ON ", true, false},
		{"0", false, false},
		{"no", false, false},
		{"maybe", false, true},
	}
	for _, tc := range testCases {
		got, err := parseBool(tc.input)
		if (err != nil) != tc.wantErr || got != tc.expected {
			t.Errorf("parseBool(%q) = %v, %v; want %v, err=%v", tc.input, got, err, tc.expected, tc.wantErr)
		}
	}
}
