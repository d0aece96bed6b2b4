/*
Package certlib handles the signing side of profile generation: splitting a PEM bundle
into leaf and chain, loading the private key, and producing CMS signed-data either in
process or through the openssl binary.
*/
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
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrChain is returned when a certificate bundle holds no complete certificate block.
var ErrChain = errors.New("certificate chain error")

var (
	beginMarker = []byte("-----BEGIN CERTIFICATE-----")
	endMarker   = []byte("-----END CERTIFICATE-----")
)

// Chain is a PEM bundle split into its first certificate and the ones that follow.
// Blocks are kept byte for byte, markers included, in file order.
type Chain struct {
	Leaf          []byte
	Intermediates [][]byte
}

// SplitChain scans data for BEGIN/END CERTIFICATE pairs. Text outside the markers and
// an unterminated trailing block are ignored.
func SplitChain(data []byte) (*Chain, error) {
	var blocks [][]byte
	rest := data
	for {
		start := bytes.Index(rest, beginMarker)
		if start < 0 {
			break
		}
		rest = rest[start:]
		end := bytes.Index(rest, endMarker)
		if end < 0 {
			break
		}
		// A BEGIN that is never closed is dropped in favour of the last one before END.
		if inner := bytes.LastIndex(rest[:end], beginMarker); inner > 0 {
			rest = rest[inner:]
			end -= inner
		}
		stop := end + len(endMarker)
		block := make([]byte, 0, stop+1)
		block = append(block, rest[:stop]...)
		block = append(block, '\n')
		blocks = append(blocks, block)
		rest = rest[stop:]
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no certificate blocks found", ErrChain)
	}
	return &Chain{Leaf: blocks[0], Intermediates: blocks[1:]}, nil
}

// HasIntermediates reports whether anything follows the leaf.
func (c *Chain) HasIntermediates() bool {
	return len(c.Intermediates) > 0
}

// IntermediatesPEM returns the chain blocks concatenated, or nil when there are none.
func (c *Chain) IntermediatesPEM() []byte {
	if !c.HasIntermediates() {
		return nil
	}
	return bytes.Join(c.Intermediates, nil)
}

// Certificates parses the leaf and the intermediates.
func (c *Chain) Certificates() (*x509.Certificate, []*x509.Certificate, error) {
	leaf, err := parseBlock(c.Leaf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: leaf: %w", ErrChain, err)
	}
	inter := make([]*x509.Certificate, 0, len(c.Intermediates))
	for i, b := range c.Intermediates {
		cert, err := parseBlock(b)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: chain block %d: %w", ErrChain, i+1, err)
		}
		inter = append(inter, cert)
	}
	return leaf, inter, nil
}

// WriteFiles writes leaf.pem and, if present, chain.pem into dir. chainPath is empty
// when the bundle held only the leaf. The caller owns dir and its cleanup.
func (c *Chain) WriteFiles(dir string) (leafPath, chainPath string, err error) {
	leafPath = filepath.Join(dir, "leaf.pem")
	if err := os.WriteFile(leafPath, c.Leaf, 0o600); err != nil {
		return "", "", err
	}
	if !c.HasIntermediates() {
		return leafPath, "", nil
	}
	chainPath = filepath.Join(dir, "chain.pem")
	if err := os.WriteFile(chainPath, c.IntermediatesPEM(), 0o600); err != nil {
		return "", "", err
	}
	return leafPath, chainPath, nil
}

func parseBlock(b []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// LoadCertPool reads every certificate in a PEM file into a new pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChain, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrChain, path)
	}
	return pool, nil
}
