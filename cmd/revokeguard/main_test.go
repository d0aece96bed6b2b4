package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/x-stp/revokeguard/internal/core"
	"github.com/x-stp/revokeguard/internal/profile"
	"github.com/x-stp/revokeguard/internal/testutil"
)

func TestIsPlist(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    []byte
		expected bool
	}{
		{"xml", []byte(`<?xml version="1.0"?><plist/>`), true},
		{"leading whitespace", []byte("\n  <plist version=\"1.0\"></plist>"), true},
		{"binary", []byte("bplist00\x00"), true},
		{"der", []byte{0x30, 0x82, 0x01, 0x00}, false},
		{"empty", nil, false},
	}
	for _, tc := range testCases {
		if got := isPlist(tc.input); got != tc.expected {
			t.Errorf("%s: isPlist() = %v; want %v", tc.name, got, tc.expected)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	b := testutil.NewBundle(t)
	dir := t.TempDir()

	t.Run("chain", func(t *testing.T) {
		pem := testutil.WriteFile(t, dir, "fullchain.pem", b.FullChainPEM())
		outDir := filepath.Join(dir, "split")
		out, err := execute(t, "chain", pem, "-o", outDir)
		if err != nil {
			t.Fatalf("chain: %v", err)
		}
		if !strings.Contains(out, "Leaf: "+b.Leaf.Subject.CommonName) {
			t.Errorf("output = %q", out)
		}
		if _, err := os.Stat(filepath.Join(outDir, "chain.pem")); err != nil {
			t.Errorf("chain.pem not written: %v", err)
		}
	})

	t.Run("inspect", func(t *testing.T) {
		payload, err := profile.Encode([]string{"b.com", "a.com"}, profile.Meta{})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		signed := testutil.WriteFile(t, dir, "p.mobileconfig", b.SignedData(t, payload))
		out, err := execute(t, "inspect", signed)
		if err != nil {
			t.Fatalf("inspect: %v", err)
		}
		if !strings.Contains(out, "Signature: valid") || !strings.HasSuffix(out, "a.com\nb.com\n") {
			t.Errorf("output = %q", out)
		}
		for _, want := range []string{
			"Type: Configuration\n",
			"Version: 1\n",
			"Removal disallowed: false\n",
			"Payloads: 1\n",
			"Payload[0]: com.apple.dnsSettings.managed [DNSSettings, PayloadDisplayName,",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}

		plain := testutil.WriteFile(t, dir, "p.plist", payload)
		if out, err = execute(t, "inspect", plain); err != nil {
			t.Fatalf("inspect plist: %v", err)
		}
		if !strings.Contains(out, "Signature: none") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("inspect as rule format", func(t *testing.T) {
		t.Cleanup(func() { inspectFormat = "" })
		payload, err := profile.Encode([]string{"a.com", "b.com"}, profile.Meta{})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		plain := testutil.WriteFile(t, dir, "f.plist", payload)

		out, err := execute(t, "inspect", plain, "--format", "hosts")
		if err != nil {
			t.Fatalf("inspect --format: %v", err)
		}
		if !strings.Contains(out, "# Format: IP domain\n\n0.0.0.0 a.com\n0.0.0.0 b.com\n") {
			t.Errorf("output = %q", out)
		}

		if _, err := execute(t, "inspect", plain, "--format", "clash"); err == nil || !strings.Contains(err.Error(), "Quantumult X") {
			t.Errorf("unknown format error = %v; want list of known formats", err)
		}
	})

	t.Run("sources", func(t *testing.T) {
		out, err := execute(t, "sources")
		if err != nil {
			t.Fatalf("sources: %v", err)
		}
		if !strings.Contains(out, "khoindvn") || !strings.Contains(out, "applejr") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestDescribePayloadSkipsOddShapes(t *testing.T) {
	t.Parallel()

	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	v := profile.FromAny(map[string]any{
		"PayloadType":           "Configuration",
		"PayloadVersion":        2.5,
		"PayloadIdentifier":     42,
		"PayloadExpirationDate": expires,
		"PayloadContent": []any{
			"not a dictionary",
			map[string]any{"PayloadType": "com.apple.wifi.managed", "SSID_STR": "x"},
		},
	})

	var buf bytes.Buffer
	describePayload(&buf, v)
	got := buf.String()

	want := "Type: Configuration\n" +
		"Version: 2.5\n" +
		"Expires: 2030-01-02T03:04:05Z\n" +
		"Payloads: 2\n" +
		"Payload[0]: (untyped string) []\n" +
		"Payload[1]: com.apple.wifi.managed [PayloadType, SSID_STR]\n"
	if got != want {
		t.Errorf("describePayload() =\n%s\nwant\n%s", got, want)
	}
}

func TestLogStats(t *testing.T) {
	t.Parallel()

	var stats core.PipelineStats
	stats.SourcesTotal.Store(2)
	stats.SourcesProcessed.Store(1)
	stats.SourcesFailed.Store(1)
	stats.BytesWritten.Store(512)

	var buf bytes.Buffer
	logStats(zerolog.New(&buf), &stats)

	for _, want := range []string{
		`"sources_total":2`,
		`"sources_processed":1`,
		`"sources_failed":1`,
		`"bytes_written":512`,
		`"message":"Run statistics"`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log = %s; missing %s", buf.String(), want)
		}
	}
}
