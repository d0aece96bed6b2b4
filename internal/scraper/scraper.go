package scraper

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
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/x-stp/revokeguard/internal/metrics"
	"github.com/x-stp/revokeguard/internal/retry"
)

// ErrFetch is returned when a page or profile could not be downloaded.
var ErrFetch = errors.New("fetch failed")

// Fetch stages, used as log fields and metric labels.
const (
	StagePage    = "page"
	StageProfile = "profile"
)

// DefaultMaxBodyBytes caps page and profile downloads.
const DefaultMaxBodyBytes = 8 << 20

// Scraper fetches profiles for sources.
type Scraper struct {
	client  *http.Client
	policy  retry.Policy
	log     zerolog.Logger
	metrics *metrics.Metrics

	// MaxBodyBytes bounds every response body.
	MaxBodyBytes int64
}

// New returns a Scraper. m may be nil.
func New(c *http.Client, policy retry.Policy, log zerolog.Logger, m *metrics.Metrics) *Scraper {
	return &Scraper{
		client:       c,
		policy:       policy,
		log:          log,
		metrics:      m,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Fetch resolves the download link of src and returns the raw profile bytes.
func (s *Scraper) Fetch(ctx context.Context, src Source) ([]byte, error) {
	link, err := s.DownloadURL(ctx, src)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("source", src.Name).Str("url", link).Msg("Found profile link")

	resp, err := s.get(ctx, src.Name, StageProfile, link)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("source", src.Name).Int("bytes", len(resp.body)).Msg("Downloaded profile")
	return resp.body, nil
}

// DownloadURL fetches the source page and returns the absolute URL of its download link.
func (s *Scraper) DownloadURL(ctx context.Context, src Source) (string, error) {
	base, err := url.Parse(src.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: %s: invalid page url %q", ErrFetch, src.Name, src.URL)
	}
	page, err := s.get(ctx, src.Name, StagePage, src.URL)
	if err != nil {
		return "", err
	}
	return Locate(page.body, page.contentType, base, src.Locator)
}

type response struct {
	body        []byte
	contentType string
}

func (s *Scraper) get(ctx context.Context, source, stage, rawURL string) (response, error) {
	defer s.metrics.MeasureFetch(stage)()

	policy := s.policy
	policy.OnRetry = func(attempt int, err error) {
		s.log.Warn().Err(err).
			Str("source", source).
			Str("stage", stage).
			Bool("retryable", retry.IsRetryable(err)).
			Msgf("Retrying fetch (attempt %d/%d)", attempt+1, policy.Attempts)
		s.metrics.RecordRetry(source, stage)
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (response, error) {
		return s.getOnce(ctx, rawURL)
	})
	s.metrics.RecordFetch(source, stage, err)
	if err != nil {
		return response{}, fmt.Errorf("%w: %s %s %s: %w", ErrFetch, source, stage, rawURL, err)
	}
	return resp, nil
}

func (s *Scraper) getOnce(ctx context.Context, rawURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, retry.Permanent(err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		// Server errors, 408 and 429 are flagged retryable; other client errors end the loop.
		return response{}, retry.NewError("unexpected status "+res.Status, !isPermanentStatus(res.StatusCode))
	}

	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return response{}, err
	}
	if int64(len(body)) > limit {
		return response{}, retry.Permanent(fmt.Errorf("response larger than %d bytes", limit))
	}
	return response{body: body, contentType: res.Header.Get("Content-Type")}, nil
}

// isPermanentStatus reports client errors that another attempt will not fix.
func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
