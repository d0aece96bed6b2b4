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

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallstep/pkcs7"
	"howett.net/plist"
)

var (
	// ErrDecode is returned when a container or its payload cannot be decoded.
	ErrDecode = errors.New("profile decode failed")
	// ErrEncode is returned when a payload cannot be serialized.
	ErrEncode = errors.New("profile encode failed")
)

// Fixed profile content.
const (
	Organization       = "RevokeGuard"
	DisplayName        = "RevokeGuard Auto-Sync"
	Description        = "iOS Anti-Revoke & Anti-Blacklist Configuration"
	ConsentText        = "This profile provides protection against revocation and blacklisting."
	IdentifierPrefix   = "com.revokeGuard"
	DNSPayloadType     = "com.apple.dnsSettings.managed"
	DNSDisplayName     = "DNS Settings"
	DNSProtocol        = "https"
	DefaultBackendHost = "reject.rzmy.dpdns.org"

	// UpdatedLayout is the timestamp layout shared by profile descriptions and rule headers.
	UpdatedLayout = "2006-01-02 15:04:05 UTC"
)

// DecodeOptions controls signature handling in Decode.
type DecodeOptions struct {
	// Strict requires the signer chain to validate against Roots.
	// Without it only the signature over the content is checked, and a bad signature is
	// reported on the Container rather than failing the decode.
	Strict bool
	// Roots is the trust store for strict mode. Nil means the system pool.
	Roots *x509.CertPool
}

// Container is a decoded signed profile.
type Container struct {
	Payload Value
	// Certificates embedded in the envelope, signer first when the envelope orders them so.
	Certificates []*x509.Certificate
	// SignatureErr is the verification failure tolerated in permissive mode, nil when the
	// signature checked out.
	SignatureErr error
}

// Decode parses a DER encoded CMS signed-data container and the property list it wraps.
func Decode(container []byte, opts DecodeOptions) (*Container, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrDecode)
	}

	p7, err := pkcs7.Parse(container)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(p7.Content) == 0 {
		return nil, fmt.Errorf("%w: envelope carries no content", ErrDecode)
	}

	c := &Container{Certificates: p7.Certificates}
	if opts.Strict {
		roots := opts.Roots
		if roots == nil {
			if roots, err = x509.SystemCertPool(); err != nil {
				return nil, fmt.Errorf("%w: loading system roots: %w", ErrDecode, err)
			}
		}
		if err := p7.VerifyWithChain(roots); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	} else {
		c.SignatureErr = p7.Verify()
	}

	if c.Payload, err = DecodePayload(p7.Content); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodePayload parses an unsigned property list. The top level must be a dictionary.
func DecodePayload(data []byte) (Value, error) {
	var raw any
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	v := FromAny(raw)
	if v.Kind() != Map {
		return Value{}, fmt.Errorf("%w: top level is %s, want map", ErrDecode, v.Kind())
	}
	return v, nil
}

// Meta carries the non-domain inputs of Encode.
type Meta struct {
	Updated     time.Time
	BackendHost string
	// NewID returns a fresh unique identifier. Defaults to a random UUID.
	NewID func() string
}

type configurationProfile struct {
	PayloadVersion           int               `plist:"PayloadVersion"`
	PayloadType              string            `plist:"PayloadType"`
	PayloadIdentifier        string            `plist:"PayloadIdentifier"`
	PayloadUUID              string            `plist:"PayloadUUID"`
	PayloadDisplayName       string            `plist:"PayloadDisplayName"`
	PayloadDescription       string            `plist:"PayloadDescription"`
	PayloadOrganization      string            `plist:"PayloadOrganization"`
	PayloadRemovalDisallowed bool              `plist:"PayloadRemovalDisallowed"`
	ConsentText              map[string]string `plist:"ConsentText"`
	PayloadContent           []dnsPayload      `plist:"PayloadContent"`
}

type dnsPayload struct {
	PayloadVersion     int         `plist:"PayloadVersion"`
	PayloadType        string      `plist:"PayloadType"`
	PayloadIdentifier  string      `plist:"PayloadIdentifier"`
	PayloadUUID        string      `plist:"PayloadUUID"`
	PayloadDisplayName string      `plist:"PayloadDisplayName"`
	DNSSettings        dnsSettings `plist:"DNSSettings"`
}

type dnsSettings struct {
	DNSProtocol              string   `plist:"DNSProtocol"`
	ServerAddresses          []string `plist:"ServerAddresses"`
	SupplementalMatchDomains []string `plist:"SupplementalMatchDomains"`
}

// Encode builds an unsigned XML configuration profile holding one DNS settings payload
// that routes domains to the backend resolver. An empty domain list is valid.
func Encode(domains []string, meta Meta) ([]byte, error) {
	newID := meta.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	host := meta.BackendHost
	if host == "" {
		host = DefaultBackendHost
	}
	updated := meta.Updated.UTC()

	set := make(DomainSet, len(domains))
	for _, d := range domains {
		set[d] = struct{}{}
	}
	match := MergeDomains(set)

	p := configurationProfile{
		PayloadVersion:      1,
		PayloadType:         "Configuration",
		PayloadIdentifier:   IdentifierPrefix + "." + newID(),
		PayloadUUID:         newID(),
		PayloadDisplayName:  fmt.Sprintf("%s (%s)", DisplayName, updated.Format(time.DateOnly)),
		PayloadDescription:  fmt.Sprintf("%s. Updated: %s | Domains: %d | Backend: %s", Description, updated.Format(UpdatedLayout), len(match), host),
		PayloadOrganization: Organization,
		ConsentText:         map[string]string{"default": ConsentText},
		PayloadContent: []dnsPayload{{
			PayloadVersion:     1,
			PayloadType:        DNSPayloadType,
			PayloadIdentifier:  IdentifierPrefix + ".dns." + newID(),
			PayloadUUID:        newID(),
			PayloadDisplayName: DNSDisplayName,
			DNSSettings: dnsSettings{
				DNSProtocol:              DNSProtocol,
				ServerAddresses:          []string{"https://" + host + "/dns-query"},
				SupplementalMatchDomains: match,
			},
		}},
	}

	out, err := plist.MarshalIndent(p, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return out, nil
}
