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
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default credential locations, relative to the working directory.
const (
	DefaultCertPath = "fullchain.pem"
	DefaultKeyPath  = "privkey.pem"
)

// Credentials points at a PEM bundle (leaf first, then chain) and a PEM private key.
type Credentials struct {
	CertPath string
	KeyPath  string
}

// Material is the parsed form of Credentials.
type Material struct {
	Chain         *Chain
	Leaf          *x509.Certificate
	Intermediates []*x509.Certificate
	Key           crypto.Signer
}

// Check verifies both files are configured and readable without parsing them.
func (c Credentials) Check() error {
	if c.CertPath == "" || c.KeyPath == "" {
		return fmt.Errorf("%w: certificate or key path not configured", ErrSigning)
	}
	for _, p := range []string{c.CertPath, c.KeyPath} {
		if err := checkReadable(filepath.Clean(p)); err != nil {
			return fmt.Errorf("%w: %w", ErrSigning, err)
		}
	}
	return nil
}

// Load reads and parses the bundle and key. A bundle without certificate blocks yields
// an error matching both ErrSigning and ErrChain. The key must match the leaf.
func (c Credentials) Load() (*Material, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Clean(c.CertPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	chain, err := SplitChain(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	leaf, inter, err := chain.Certificates()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	keyPEM, err := os.ReadFile(filepath.Clean(c.KeyPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(leaf.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match leaf certificate %q", ErrSigning, leaf.Subject.CommonName)
	}

	return &Material{Chain: chain, Leaf: leaf, Intermediates: inter, Key: key}, nil
}

// ParsePrivateKey returns the first private key found in PEM data. PKCS#8, PKCS#1 and
// SEC 1 EC keys are accepted. Other blocks such as EC PARAMETERS are skipped.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key block found")
		}

		var (
			key any
			err error
		)
		switch block.Type {
		case "PRIVATE KEY":
			key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		case "RSA PRIVATE KEY":
			key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			key, err = x509.ParseECPrivateKey(block.Bytes)
		case "ENCRYPTED PRIVATE KEY":
			return nil, errors.New("encrypted private keys are not supported")
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", block.Type, err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return signer, nil
	}
}
