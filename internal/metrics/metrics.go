// Package metrics records per-run counters for the pipeline. A run is short lived, so
// instead of serving /metrics the registry is written to a node_exporter textfile.
//
// All methods are safe on a nil *Metrics, which disables collection.
package metrics

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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics contains all the Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Source metrics
	FetchTotal     *prometheus.CounterVec
	FetchRetries   *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	SourceFailures *prometheus.CounterVec
	SourceDomains  *prometheus.GaugeVec

	// Output metrics
	MergedDomains  prometheus.Gauge
	RuleEmitTotal  *prometheus.CounterVec
	SignTotal      *prometheus.CounterVec
	DiskWriteBytes *prometheus.CounterVec

	// Run metrics
	StageDuration    *prometheus.HistogramVec
	LastRunTimestamp prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	f := promauto.With(registry)
	buckets := []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	return &Metrics{
		registry: registry,

		FetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_fetch_total",
				Help: "Total number of source fetches by stage and outcome",
			},
			[]string{"source", "stage", "status"},
		),
		FetchRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_fetch_retries_total",
				Help: "Total number of retried fetch attempts",
			},
			[]string{"source", "stage"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revokeguard_fetch_duration_seconds",
				Help:    "Time spent fetching pages and profiles, retries included",
				Buckets: buckets,
			},
			[]string{"stage"},
		),
		SourceFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_source_failures_total",
				Help: "Sources skipped, by error type",
			},
			[]string{"source", "error_type"},
		),
		SourceDomains: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "revokeguard_source_domains",
				Help: "Domains extracted from each source in the last run",
			},
			[]string{"source"},
		),
		MergedDomains: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "revokeguard_merged_domains",
				Help: "Unique domains after merging all sources",
			},
		),
		RuleEmitTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_rule_emit_total",
				Help: "Rule documents written, by format and outcome",
			},
			[]string{"format", "status"},
		),
		SignTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_sign_total",
				Help: "Profile signing attempts, by signer and outcome",
			},
			[]string{"signer", "status"},
		),
		DiskWriteBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revokeguard_disk_write_bytes_total",
				Help: "Total number of bytes written to disk",
			},
			[]string{"operation"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revokeguard_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: buckets,
			},
			[]string{"stage"},
		),
		LastRunTimestamp: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "revokeguard_last_run_timestamp_seconds",
				Help: "Unix time at which the last run finished",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordFetch counts one finished fetch of stage ("page" or "profile") for source.
func (m *Metrics) RecordFetch(source, stage string, err error) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(source, stage, status(err)).Inc()
}

// RecordRetry counts one retried attempt.
func (m *Metrics) RecordRetry(source, stage string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(source, stage).Inc()
}

// RecordSourceFailure counts a skipped source.
func (m *Metrics) RecordSourceFailure(source, errorType string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source, errorType).Inc()
}

// SetSourceDomains records how many domains a source contributed.
func (m *Metrics) SetSourceDomains(source string, n int) {
	if m == nil {
		return
	}
	m.SourceDomains.WithLabelValues(source).Set(float64(n))
}

// SetMergedDomains records the size of the merged list.
func (m *Metrics) SetMergedDomains(n int) {
	if m == nil {
		return
	}
	m.MergedDomains.Set(float64(n))
}

// RecordEmit counts one rule document write.
func (m *Metrics) RecordEmit(format string, err error) {
	if m == nil {
		return
	}
	m.RuleEmitTotal.WithLabelValues(format, status(err)).Inc()
}

// RecordSign counts one signing attempt.
func (m *Metrics) RecordSign(signer string, err error) {
	if m == nil {
		return
	}
	m.SignTotal.WithLabelValues(signer, status(err)).Inc()
}

// AddBytesWritten adds n to the bytes written for operation.
func (m *Metrics) AddBytesWritten(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DiskWriteBytes.WithLabelValues(operation).Add(float64(n))
}

// MarkRunFinished stamps the completion time.
func (m *Metrics) MarkRunFinished(t time.Time) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(t.Unix()))
}

// MeasureStage starts a timer for stage and returns the func that stops it.
func (m *Metrics) MeasureStage(stage string) func() {
	if m == nil {
		return func() {}
	}
	return MeasureDuration(m.StageDuration, prometheus.Labels{"stage": stage})
}

// MeasureFetch starts a timer for a fetch of stage and returns the func that stops it.
func (m *Metrics) MeasureFetch(stage string) func() {
	if m == nil {
		return func() {}
	}
	return MeasureDuration(m.FetchDuration, prometheus.Labels{"stage": stage})
}

// MeasureDuration is a helper to measure the duration of a function
func MeasureDuration(histogram *prometheus.HistogramVec, labels prometheus.Labels) func() {
	start := time.Now()
	return func() {
		histogram.With(labels).Observe(time.Since(start).Seconds())
	}
}
