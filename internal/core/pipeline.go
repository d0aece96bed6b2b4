package core

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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/x-stp/revokeguard/internal/certlib"
	rgio "github.com/x-stp/revokeguard/internal/io"
	"github.com/x-stp/revokeguard/internal/metrics"
	"github.com/x-stp/revokeguard/internal/profile"
	"github.com/x-stp/revokeguard/internal/rules"
	"github.com/x-stp/revokeguard/internal/scraper"
	"github.com/x-stp/revokeguard/internal/util"
)

// Fetcher returns the raw profile container published by a source.
type Fetcher interface {
	Fetch(ctx context.Context, src scraper.Source) ([]byte, error)
}

// PipelineConfig holds operational parameters.
type PipelineConfig struct {
	OutputDir   string
	Author      string
	BackendHost string
	Sources     []scraper.Source

	Credentials certlib.Credentials
	// Signer wraps the encoded profile. Nil disables signing.
	Signer     certlib.Signer
	SignerName string

	Decode profile.DecodeOptions
	// KeepProfiles saves every raw download under ProfilesDir.
	KeepProfiles bool
}

// PipelineStats uses atomic counters so they can be read while Run is in progress,
// as the CLI does from its interrupt handler. StartTime is set by Run and is not
// safe to read concurrently.
type PipelineStats struct {
	SourcesTotal     atomic.Int64
	SourcesProcessed atomic.Int64
	SourcesFailed    atomic.Int64
	BytesWritten     atomic.Int64
	StartTime        time.Time
}

// SourceResult is the outcome for one source. Domains are sorted.
type SourceResult struct {
	Name    string
	Domains []string
	// SignatureErr is set when the upstream envelope failed verification but was
	// accepted in permissive mode.
	SignatureErr error
	Err          error
}

// Result describes a completed run.
type Result struct {
	Timestamp    time.Time
	Sources      []SourceResult
	Domains      []string
	Fingerprint  string
	ProfilePath  string
	Signed       bool
	RuleFiles    map[string]string
	MetadataPath string
}

// Pipeline runs one aggregation job: fetch every source, decode and extract its
// domains, merge them, then publish the profile, rule documents and metadata.
// Sources are processed one after another; a failing source is skipped.
type Pipeline struct {
	fetcher Fetcher
	config  *PipelineConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
	emitter *rules.Emitter
	stats   *PipelineStats

	// Now and NewID are replaceable for deterministic output.
	Now   func() time.Time
	NewID func() string
}

// NewPipeline wires a pipeline. m may be nil.
func NewPipeline(config *PipelineConfig, fetcher Fetcher, log zerolog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		config:  config,
		log:     log,
		metrics: m,
		emitter: rules.NewEmitter(config.OutputDir, log.With().Str("component", "rules").Logger(), m),
		stats:   &PipelineStats{},
		Now:     time.Now,
	}
}

// Stats returns the live counters.
func (p *Pipeline) Stats() *PipelineStats {
	return p.stats
}

// Run executes the job. It fails only when the context is cancelled, the output
// directory cannot be created, no source yields a domain (ErrNoDomains), or the
// metadata cannot be written. Signing and rule emission failures are logged and
// reflected in the Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.stats.StartTime = p.Now()
	p.stats.SourcesTotal.Store(int64(len(p.config.Sources)))
	p.log.Info().
		Int("sources", len(p.config.Sources)).
		Str("output_dir", p.config.OutputDir).
		Msg("Starting profile aggregation")

	res := &Result{}
	sets := make([]profile.DomainSet, 0, len(p.config.Sources))

	done := p.metrics.MeasureStage(StageFetch)
	for _, src := range p.config.Sources {
		if err := ctx.Err(); err != nil {
			done()
			return nil, err
		}
		sr, set := p.processSource(ctx, src)
		res.Sources = append(res.Sources, sr)
		if sr.Err != nil {
			p.stats.SourcesFailed.Add(1)
			p.metrics.RecordSourceFailure(src.Name, errorType(sr.Err))
			p.log.Error().Err(sr.Err).Str("source", src.Name).Msg("Skipping source")
			continue
		}
		p.stats.SourcesProcessed.Add(1)
		p.metrics.SetSourceDomains(src.Name, len(sr.Domains))
		sets = append(sets, set)
	}
	done()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = p.metrics.MeasureStage(StageMerge)
	res.Domains = profile.MergeDomains(sets...)
	res.Fingerprint = profile.Fingerprint(res.Domains)
	done()
	p.metrics.SetMergedDomains(len(res.Domains))
	if len(res.Domains) == 0 {
		return res, ErrNoDomains
	}
	p.log.Info().
		Int("domains", len(res.Domains)).
		Str("fingerprint", res.Fingerprint).
		Msg("Merged domains")

	// One timestamp is shared by the profile, the rule headers and the metadata.
	res.Timestamp = p.Now().UTC()
	if err := os.MkdirAll(p.config.OutputDir, DirPerm); err != nil {
		return res, fmt.Errorf("failed to create output directory '%s': %w", p.config.OutputDir, err)
	}

	if err := p.publishProfile(ctx, res); err != nil {
		p.log.Error().Err(err).Msg("Failed to write profile")
	}

	done = p.metrics.MeasureStage(StageEmit)
	files, err := p.emitter.EmitAll(res.Domains, rules.NewHeader(p.config.Author, res.Timestamp, len(res.Domains)))
	done()
	res.RuleFiles = files
	if err != nil {
		p.log.Warn().Err(err).Int("written", len(files)).Msg("Some rule files could not be written")
	}

	path, n, err := WriteMetadata(p.config.OutputDir, NewMetadata(res))
	if err != nil {
		return res, err
	}
	p.addBytes("metadata", n)
	res.MetadataPath = path
	p.metrics.MarkRunFinished(p.Now())

	p.log.Info().
		Str("profile", res.ProfilePath).
		Bool("signed", res.Signed).
		Int("rule_files", len(res.RuleFiles)).
		Int("domains", len(res.Domains)).
		Dur("elapsed", p.Now().Sub(p.stats.StartTime)).
		Msg("Pipeline completed")
	return res, nil
}

// processSource fetches, decodes and extracts one source. Errors are returned in the
// result, never raised.
func (p *Pipeline) processSource(ctx context.Context, src scraper.Source) (SourceResult, profile.DomainSet) {
	sr := SourceResult{Name: src.Name}
	log := p.log.With().Str("source", src.Name).Logger()

	raw, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		sr.Err = err
		return sr, nil
	}
	if p.config.KeepProfiles {
		p.keepProfile(log, src.Name, raw)
	}

	done := p.metrics.MeasureStage(StageDecode)
	container, err := profile.Decode(raw, p.config.Decode)
	done()
	if err != nil {
		sr.Err = err
		return sr, nil
	}
	if container.SignatureErr != nil {
		sr.SignatureErr = container.SignatureErr
		log.Warn().Err(container.SignatureErr).Msg("Upstream signature did not verify, continuing")
	}

	set := profile.ExtractDomains(container.Payload)
	sr.Domains = set.Sorted()
	log.Info().Int("domains", len(sr.Domains)).Msg("Extracted domains")
	return sr, set
}

func (p *Pipeline) keepProfile(log zerolog.Logger, name string, raw []byte) {
	path := filepath.Join(p.config.OutputDir, ProfilesDir, util.ProfileFilename(name))
	n, err := rgio.WriteFile(path, raw, rgio.DefaultPerm)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to keep raw profile")
		return
	}
	p.addBytes("profiles", n)
	log.Debug().Str("path", path).Msg("Kept raw profile")
}

// publishProfile encodes the merged profile and writes it signed, or unsigned when
// signing is not possible.
func (p *Pipeline) publishProfile(ctx context.Context, res *Result) error {
	payload, err := profile.Encode(res.Domains, profile.Meta{
		Updated:     res.Timestamp,
		BackendHost: p.config.BackendHost,
		NewID:       p.NewID,
	})
	if err != nil {
		return err
	}

	done := p.metrics.MeasureStage(StageSign)
	signed, err := p.sign(ctx, payload)
	done()
	if err == nil {
		path := filepath.Join(p.config.OutputDir, ProfileFile)
		n, werr := rgio.WriteFile(path, signed, rgio.DefaultPerm)
		if werr == nil {
			p.addBytes("profile", n)
			res.ProfilePath, res.Signed = path, true
			p.log.Info().Str("path", path).Msg("Signed profile written")
			p.removeStale(UnsignedProfileFile)
			return nil
		}
		err = werr
	}
	p.log.Warn().Err(err).Msg("Signing unavailable, saving unsigned profile")

	path := filepath.Join(p.config.OutputDir, UnsignedProfileFile)
	n, err := rgio.WriteFile(path, payload, rgio.DefaultPerm)
	if err != nil {
		return fmt.Errorf("failed to write unsigned profile: %w", err)
	}
	p.addBytes("profile", n)
	res.ProfilePath, res.Signed = path, false
	p.log.Info().Str("path", path).Msg("Unsigned profile written")
	p.removeStale(ProfileFile)
	return nil
}

// removeStale deletes the other profile variant left by an earlier run, so the output
// directory only ever holds the profile this run produced.
func (p *Pipeline) removeStale(name string) {
	path := filepath.Join(p.config.OutputDir, name)
	if err := os.Remove(path); err == nil {
		p.log.Info().Str("path", path).Msg("Removed profile from previous run")
	} else if !errors.Is(err, os.ErrNotExist) {
		p.log.Warn().Err(err).Str("path", path).Msg("Failed to remove profile from previous run")
	}
}

func (p *Pipeline) sign(ctx context.Context, payload []byte) ([]byte, error) {
	if p.config.Signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", certlib.ErrSigning)
	}
	if err := p.config.Credentials.Check(); err != nil {
		p.metrics.RecordSign(p.config.SignerName, err)
		return nil, err
	}
	out, err := p.config.Signer.Sign(ctx, payload, p.config.Credentials)
	p.metrics.RecordSign(p.config.SignerName, err)
	if err != nil && !errors.Is(err, certlib.ErrSigning) && !errors.Is(err, certlib.ErrChain) {
		err = fmt.Errorf("%w: %w", certlib.ErrSigning, err)
	}
	return out, err
}

func (p *Pipeline) addBytes(operation string, n int) {
	p.stats.BytesWritten.Add(int64(n))
	p.metrics.AddBytesWritten(operation, n)
}
