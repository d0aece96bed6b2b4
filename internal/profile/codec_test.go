package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/x-stp/revokeguard/internal/testutil"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	b := testutil.NewBundle(t)
	testCases := []struct {
		name    string
		domains []string
	}{
		{"single", []string{"a.example.com"}},
		{"unsorted with duplicates", []string{"c.example.com", "a.example.com", "c.example.com", "b.example.com"}},
		{"many", strings.Fields("ppq.apple.com ocsp.apple.com ocsp2.apple.com valid.apple.com crl.apple.com")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			payload, err := Encode(tc.domains, Meta{Updated: time.Now()})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			c, err := Decode(b.SignedData(t, payload), DecodeOptions{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if c.SignatureErr != nil {
				t.Errorf("SignatureErr = %v; want nil", c.SignatureErr)
			}
			got := ExtractDomains(c.Payload).Sorted()
			want := MergeDomains(set(tc.domains...))
			if !slices.Equal(got, want) {
				t.Errorf("round trip domains = %q; want %q", got, want)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	updated := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)
	payload, err := Encode([]string{"b.example.com", "a.example.com"}, Meta{
		Updated:     updated,
		BackendHost: "dns.example.net",
		NewID:       seqIDs(),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	str := func(v Value) string { s, _ := v.Str(); return s }
	checks := []struct {
		name, got, want string
	}{
		{"type", str(v.Get("PayloadType")), "Configuration"},
		{"identifier", str(v.Get("PayloadIdentifier")), "com.revokeGuard.00000000-0000-0000-0000-000000000001"},
		{"uuid", str(v.Get("PayloadUUID")), "00000000-0000-0000-0000-000000000002"},
		{"title", str(v.Get("PayloadDisplayName")), "RevokeGuard Auto-Sync (2025-03-09)"},
		{"organization", str(v.Get("PayloadOrganization")), "RevokeGuard"},
		{"consent", str(v.Get("ConsentText").Get("default")), ConsentText},
		{"dns type", str(v.Get("PayloadContent").Index(0).Get("PayloadType")), DNSPayloadType},
		{"dns identifier", str(v.Get("PayloadContent").Index(0).Get("PayloadIdentifier")), "com.revokeGuard.dns.00000000-0000-0000-0000-000000000003"},
		{"protocol", str(v.Get("PayloadContent").Index(0).Get("DNSSettings").Get("DNSProtocol")), "https"},
		{"server", str(v.Get("PayloadContent").Index(0).Get("DNSSettings").Get("ServerAddresses").Index(0)), "https://dns.example.net/dns-query"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q; want %q", c.name, c.got, c.want)
		}
	}

	desc := str(v.Get("PayloadDescription"))
	for _, want := range []string{"2025-03-09 14:05:00 UTC", "Domains: 2", "dns.example.net"} {
		if !strings.Contains(desc, want) {
			t.Errorf("PayloadDescription = %q; missing %q", desc, want)
		}
	}
	if n, ok := v.Get("PayloadVersion").Int(); !ok || n != 1 {
		t.Errorf("PayloadVersion = %d, %v; want 1", n, ok)
	}
	if removal, ok := v.Get("PayloadRemovalDisallowed").Bool(); !ok || removal {
		t.Errorf("PayloadRemovalDisallowed = %v, %v; want false, true", removal, ok)
	}
	if got := ExtractDomains(v).Sorted(); !slices.Equal(got, []string{"a.example.com", "b.example.com"}) {
		t.Errorf("domains = %q", got)
	}
}

func TestEncodeIsDeterministicExceptIdentifiers(t *testing.T) {
	t.Parallel()

	meta := Meta{Updated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	meta.NewID = seqIDs()
	first, err := Encode([]string{"b", "a"}, meta)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	meta.NewID = seqIDs()
	second, err := Encode([]string{"a", "b", "a"}, meta)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("Encode output differs for equal domain sets:\n%s\n---\n%s", first, second)
	}
}

func TestEncodeEmptyList(t *testing.T) {
	t.Parallel()

	payload, err := Encode(nil, Meta{Updated: time.Now()})
	if err != nil {
		t.Fatalf("Encode(nil): %v", err)
	}
	v, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got := ExtractDomains(v); len(got) != 0 {
		t.Errorf("ExtractDomains() = %v; want empty", got)
	}
	match := v.Get("PayloadContent").Index(0).Get("DNSSettings").Get("SupplementalMatchDomains")
	if match.Kind() != List {
		t.Errorf("SupplementalMatchDomains kind = %s; want list", match.Kind())
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	b := testutil.NewBundle(t)
	testCases := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a cms envelope")},
		{"bare plist", []byte(`<?xml version="1.0"?><plist version="1.0"><dict/></plist>`)},
		{"signed non plist", b.SignedData(t, []byte{0x00, 0xff, 0x10, 0x80})},
		{"signed plist with list top level", b.SignedData(t, []byte(`<?xml version="1.0"?><plist version="1.0"><array><string>a</string></array></plist>`))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.input, DecodeOptions{})
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v; want ErrDecode", err)
			}
		})
	}
}

func TestDecodeStrictMode(t *testing.T) {
	t.Parallel()

	b := testutil.NewBundle(t)
	payload, err := Encode([]string{"a.example.com"}, Meta{Updated: time.Now()})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	container := b.SignedData(t, payload)

	if _, err := Decode(container, DecodeOptions{Strict: true, Roots: b.RootPool()}); err != nil {
		t.Errorf("strict decode with trusted root: %v", err)
	}

	other := testutil.NewBundle(t)
	if _, err := Decode(container, DecodeOptions{Strict: true, Roots: other.RootPool()}); !errors.Is(err, ErrDecode) {
		t.Errorf("strict decode with foreign root error = %v; want ErrDecode", err)
	}

	c, err := Decode(container, DecodeOptions{})
	if err != nil {
		t.Fatalf("permissive decode: %v", err)
	}
	if len(c.Certificates) != 2 {
		t.Errorf("len(Certificates) = %d; want 2", len(c.Certificates))
	}
}
