package rules

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
	"path/filepath"

	"github.com/rs/zerolog"
	rgio "github.com/x-stp/revokeguard/internal/io"
	"github.com/x-stp/revokeguard/internal/metrics"
)

// ErrEmission is returned for a document that could not be written.
var ErrEmission = errors.New("rule emission failed")

// Emitter writes rule documents into Dir.
type Emitter struct {
	Dir     string
	Formats []Format // nil means Formats
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// NewEmitter returns an Emitter for every known format.
func NewEmitter(dir string, log zerolog.Logger, m *metrics.Metrics) *Emitter {
	return &Emitter{Dir: dir, Log: log, Metrics: m}
}

// Emit writes a single document and returns its path.
func (e *Emitter) Emit(f Format, domains []string, h Header) (string, error) {
	path := filepath.Join(e.Dir, f.File)
	n, err := rgio.WriteFile(path, Render(f, domains, h), rgio.DefaultPerm)
	if err != nil {
		e.Metrics.RecordEmit(f.Name, err)
		return "", fmt.Errorf("%w: %s: %w", ErrEmission, f.Name, err)
	}
	e.Metrics.RecordEmit(f.Name, nil)
	e.Metrics.AddBytesWritten("rules", n)
	return path, nil
}

// EmitAll writes every format independently. It returns the name to path map of the
// documents written and the joined errors of those that failed.
func (e *Emitter) EmitAll(domains []string, h Header) (map[string]string, error) {
	formats := e.Formats
	if formats == nil {
		formats = Formats
	}

	written := make(map[string]string, len(formats))
	var errs []error
	for _, f := range formats {
		path, err := e.Emit(f, domains, h)
		if err != nil {
			e.Log.Error().Err(err).Str("format", f.Name).Msg("Failed to write rule file")
			errs = append(errs, err)
			continue
		}
		e.Log.Info().Str("format", f.Name).Str("path", path).Msg("Generated rule file")
		written[f.Name] = path
	}
	return written, errors.Join(errs...)
}
