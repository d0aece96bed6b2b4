package certlib

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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smallstep/pkcs7"
)

// ErrSigning is returned when a payload could not be signed. Callers fall back to
// publishing the unsigned payload.
var ErrSigning = errors.New("profile signing failed")

// Signer names accepted by NewSigner.
const (
	SignerNative  = "native"
	SignerOpenSSL = "openssl"
)

// Signer wraps a payload in DER encoded CMS signed-data with the content attached.
// The leaf from creds signs; the rest of the bundle is embedded as extra certificates.
type Signer interface {
	Sign(ctx context.Context, payload []byte, creds Credentials) ([]byte, error)
}

// NewSigner returns the signer registered under name.
func NewSigner(name string) (Signer, error) {
	switch strings.ToLower(name) {
	case "", SignerNative:
		return NativeSigner{}, nil
	case SignerOpenSSL:
		return OpenSSLSigner{}, nil
	default:
		return nil, fmt.Errorf("unknown signer %q (want %s or %s)", name, SignerNative, SignerOpenSSL)
	}
}

// NativeSigner signs in process with SHA-256.
type NativeSigner struct{}

// Sign implements Signer.
func (NativeSigner) Sign(ctx context.Context, payload []byte, creds Credentials) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSigning)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	m, err := creds.Load()
	if err != nil {
		return nil, err
	}

	sd, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(m.Leaf, m.Key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	for _, c := range m.Intermediates {
		sd.AddCertificate(c)
	}
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return der, nil
}

// OpenSSLSigner runs `openssl smime -sign`. The split leaf, chain, payload and output
// live in a private temporary directory that is removed before Sign returns.
type OpenSSLSigner struct {
	// Binary defaults to "openssl" looked up in PATH.
	Binary string
	// TempDir is the parent of the scratch directory. Empty means os.TempDir.
	TempDir string
}

// Sign implements Signer.
func (s OpenSSLSigner) Sign(ctx context.Context, payload []byte, creds Credentials) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSigning)
	}
	if err := creds.Check(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Clean(creds.CertPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	chain, err := SplitChain(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	work, release, err := scratchDir(s.TempDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	defer release()

	leafPath, chainPath, err := chain.WriteFiles(work)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	in := filepath.Join(work, "payload.plist")
	out := filepath.Join(work, "signed.mobileconfig")
	if err := os.WriteFile(in, payload, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	args := []string{
		"smime", "-sign",
		"-binary", "-nodetach",
		"-md", "sha256",
		"-outform", "DER",
		"-signer", leafPath,
		"-inkey", creds.KeyPath,
		"-in", in,
		"-out", out,
	}
	if chainPath != "" {
		args = append(args, "-certfile", chainPath)
	}

	bin := s.Binary
	if bin == "" {
		bin = "openssl"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: openssl: %w: %s", ErrSigning, err, msg)
		}
		return nil, fmt.Errorf("%w: openssl: %w", ErrSigning, err)
	}

	der, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return der, nil
}

// scratchDir creates a private directory under parent and returns a func removing it.
func scratchDir(parent string) (string, func(), error) {
	dir, err := os.MkdirTemp(parent, "revokeguard-sign-*")
	if err != nil {
		return "", func() {}, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
