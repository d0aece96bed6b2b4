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
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	rgio "github.com/x-stp/revokeguard/internal/io"
)

// Metadata is the run summary written to MetadataFile.
type Metadata struct {
	Timestamp        string                  `json:"timestamp"`
	TotalDomains     int                     `json:"total_domains"`
	SourcesProcessed int                     `json:"sources_processed"`
	GeneratedFiles   map[string]string       `json:"generated_files"`
	SourceDetails    map[string]SourceDetail `json:"source_details"`
	Profile          ProfileInfo             `json:"profile"`
	Fingerprint      string                  `json:"fingerprint"`
}

// SourceDetail summarises one successfully processed source.
type SourceDetail struct {
	DomainsCount  int      `json:"domains_count"`
	DomainsSample []string `json:"domains_sample"`
}

// ProfileInfo records which profile artifact was written.
type ProfileInfo struct {
	Path   string `json:"path"`
	Signed bool   `json:"signed"`
}

// NewMetadata assembles the summary for a finished run. Only sources that produced a
// result are listed.
func NewMetadata(res *Result) Metadata {
	details := make(map[string]SourceDetail, len(res.Sources))
	for _, s := range res.Sources {
		if s.Err != nil {
			continue
		}
		sample := s.Domains
		if len(sample) > SampleSize {
			sample = sample[:SampleSize]
		}
		details[s.Name] = SourceDetail{
			DomainsCount:  len(s.Domains),
			DomainsSample: append([]string{}, sample...),
		}
	}

	files := res.RuleFiles
	if files == nil {
		files = map[string]string{}
	}

	return Metadata{
		Timestamp:        res.Timestamp.UTC().Format(time.RFC3339),
		TotalDomains:     len(res.Domains),
		SourcesProcessed: len(details),
		GeneratedFiles:   files,
		SourceDetails:    details,
		Profile:          ProfileInfo{Path: res.ProfilePath, Signed: res.Signed},
		Fingerprint:      res.Fingerprint,
	}
}

// WriteMetadata writes md as indented JSON to MetadataFile under dir.
func WriteMetadata(dir string, md Metadata) (string, int, error) {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode metadata: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, MetadataFile)
	n, err := rgio.WriteFile(path, data, rgio.DefaultPerm)
	if err != nil {
		return "", n, fmt.Errorf("failed to write metadata: %w", err)
	}
	return path, n, nil
}
