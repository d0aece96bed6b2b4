/*
Package main is the command-line entry point for revokeguard.

revokeguard scrapes a fixed list of pages that publish signed iOS configuration
profiles, pulls the DNS SupplementalMatchDomains out of each one, and republishes the
merged list as a freshly signed profile, a set of proxy rule documents and a
metadata.json summary.

Subcommands (`run`, `inspect`, `chain`, `sources`) share the persistent
`--config`, `--log-level` and `--log-format` flags. Settings resolve in the order
defaults, YAML file, environment, flags. SIGINT and SIGTERM cancel the run.
*/
package main

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
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/x-stp/revokeguard/internal/certlib"
	"github.com/x-stp/revokeguard/internal/client"
	"github.com/x-stp/revokeguard/internal/config"
	"github.com/x-stp/revokeguard/internal/core"
	"github.com/x-stp/revokeguard/internal/logging"
	"github.com/x-stp/revokeguard/internal/metrics"
	"github.com/x-stp/revokeguard/internal/profile"
	"github.com/x-stp/revokeguard/internal/rules"
	"github.com/x-stp/revokeguard/internal/scraper"
)

// Global flags (persistent across commands)
var (
	configPath string
	logLevel   string
	logFormat  string
)

// Flags for the run command
var (
	outputDir    string
	author       string
	backendHost  string
	certPath     string
	keyPath      string
	signerName   string
	strictVerify bool
	keepProfiles bool
	metricsFile  string
	httpTimeout  time.Duration
	httpRetries  int
)

// Flags for inspect and chain
var (
	rootsFile     string
	inspectFormat string
	chainOut      string
)

var rootCmd = &cobra.Command{
	Use:           "revokeguard",
	Short:         "revokeguard - merges iOS DNS profiles into a signed profile and proxy rule lists",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every source, merge the domains and write the profile, rules and metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Decode a local profile (signed or plain plist) and print its domains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspectProfile(cmd, args[0])
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain <pem>",
	Short: "Split a PEM bundle into leaf and chain and print the subjects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return splitChain(cmd, args[0])
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured profile sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return core.ListSources(cmd.OutOrStdout(), cfg.Sources)
	},
}

func init() {
	// Persistent flags (available for all commands)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "Log format (console or json)")

	// Flags for the run command
	runCmd.Flags().StringVarP(&outputDir, "output", "o", config.DefaultOutputDir, "Output directory")
	runCmd.Flags().StringVar(&author, "author", "", "Author recorded in rule headers")
	runCmd.Flags().StringVar(&backendHost, "backend-host", "", "DNS-over-HTTPS host the profile routes matched domains to")
	runCmd.Flags().StringVar(&certPath, "cert", "", "PEM bundle with the signing leaf first, then its chain")
	runCmd.Flags().StringVar(&keyPath, "key", "", "PEM private key of the signing leaf")
	runCmd.Flags().StringVar(&signerName, "signer", certlib.SignerNative, "Signing backend (native or openssl)")
	runCmd.Flags().BoolVar(&strictVerify, "strict-verify", false, "Require upstream profiles to chain to a trusted root")
	runCmd.Flags().BoolVar(&keepProfiles, "keep-profiles", false, "Save raw upstream profiles under <output>/profiles")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	runCmd.Flags().DurationVar(&httpTimeout, "timeout", 0, "Per-attempt HTTP timeout")
	runCmd.Flags().IntVar(&httpRetries, "retries", 0, "HTTP attempts per request")

	// Flags for the inspect command
	inspectCmd.Flags().BoolVar(&strictVerify, "strict-verify", false, "Require the signer to chain to a trusted root")
	inspectCmd.Flags().StringVar(&rootsFile, "roots", "", "PEM file of trusted roots for --strict-verify (default: system pool)")
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "", "Print the domains as a rule document in this format (e.g. Surge, Hosts)")

	// Flags for the chain command
	chainCmd.Flags().StringVarP(&chainOut, "output", "o", "", "Also write leaf.pem and chain.pem into this directory")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return logging.New(logging.Options{Level: logLevel, Format: logFormat})
}

// loadConfig resolves the config and applies the flags the user actually set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("author") {
		cfg.Author = author
	}
	if flags.Changed("backend-host") {
		cfg.BackendHost = backendHost
	}
	if flags.Changed("cert") {
		cfg.CertPath = certPath
	}
	if flags.Changed("key") {
		cfg.KeyPath = keyPath
	}
	if flags.Changed("signer") {
		cfg.Signer = signerName
	}
	if flags.Changed("strict-verify") {
		cfg.StrictVerify = strictVerify
	}
	if flags.Changed("keep-profiles") {
		cfg.KeepProfiles = keepProfiles
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = httpTimeout
	}
	if flags.Changed("retries") {
		cfg.HTTP.Retries = httpRetries
	}
	return cfg, cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM. onSignal, if set, runs before the
// cancel so it can report progress.
func signalContext(log zerolog.Logger, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signalChan:
			log.Warn().Str("signal", sig.String()).Msg("Interrupt received, cancelling run")
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signalChan)
	}()
	return ctx, cancel
}

// runPipeline is the handler for the 'run' command.
func runPipeline(cmd *cobra.Command) error {
	log := newLogger()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	signer, err := certlib.NewSigner(cfg.Signer)
	if err != nil {
		return err
	}
	decode := profile.DecodeOptions{Strict: cfg.StrictVerify}

	m := metrics.New()
	httpClient := client.New(cfg.ClientConfig())
	defer client.CloseIdleConnections(httpClient)
	fetcher := scraper.New(httpClient, cfg.RetryPolicy(), logging.Named(log, "scraper"), m)

	pipeline := core.NewPipeline(&core.PipelineConfig{
		OutputDir:    cfg.OutputDir,
		Author:       cfg.Author,
		BackendHost:  cfg.BackendHost,
		Sources:      cfg.Sources,
		Credentials:  cfg.Credentials(),
		Signer:       signer,
		SignerName:   cfg.Signer,
		Decode:       decode,
		KeepProfiles: cfg.KeepProfiles,
	}, fetcher, logging.Named(log, "pipeline"), m)

	ctx, cancel := signalContext(log, func() { logStats(log, pipeline.Stats()) })
	defer cancel()

	res, runErr := pipeline.Run(ctx)
	logStats(log, pipeline.Stats())

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Error().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics textfile")
		}
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile:  %s (signed: %t)\n", res.ProfilePath, res.Signed)
	fmt.Fprintf(out, "Rules:    %d files\n", len(res.RuleFiles))
	fmt.Fprintf(out, "Metadata: %s\n", res.MetadataPath)
	fmt.Fprintf(out, "Domains:  %d (fingerprint %s)\n", len(res.Domains), res.Fingerprint)
	return nil
}

// logStats reports the pipeline counters. It only reads atomics, so the signal
// goroutine may call it while Run is in progress.
func logStats(log zerolog.Logger, stats *core.PipelineStats) {
	log.Info().
		Int64("sources_total", stats.SourcesTotal.Load()).
		Int64("sources_processed", stats.SourcesProcessed.Load()).
		Int64("sources_failed", stats.SourcesFailed.Load()).
		Int64("bytes_written", stats.BytesWritten.Load()).
		Msg("Run statistics")
}

// inspectProfile is the handler for the 'inspect' command.
func inspectProfile(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	opts := profile.DecodeOptions{Strict: strictVerify}
	if rootsFile != "" {
		if opts.Roots, err = certlib.LoadCertPool(rootsFile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	var payload profile.Value
	if isPlist(data) {
		if payload, err = profile.DecodePayload(data); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signature: none (plain property list)")
	} else {
		c, err := profile.Decode(data, opts)
		if err != nil {
			return err
		}
		payload = c.Payload
		status := "valid"
		if c.SignatureErr != nil {
			status = "INVALID (" + c.SignatureErr.Error() + ")"
		}
		fmt.Fprintf(out, "Signature: %s\n", status)
		for _, cert := range c.Certificates {
			fmt.Fprintf(out, "Certificate: %s (issuer %s, expires %s)\n",
				cert.Subject.CommonName, cert.Issuer.CommonName, cert.NotAfter.UTC().Format(time.DateOnly))
		}
	}

	describePayload(out, payload)
	domains := profile.ExtractDomains(payload).Sorted()
	fmt.Fprintf(out, "Domains: %d (fingerprint %s)\n", len(domains), profile.Fingerprint(domains))
	if inspectFormat == "" {
		for _, d := range domains {
			fmt.Fprintln(out, d)
		}
		return nil
	}

	f, ok := rules.Lookup(inspectFormat)
	if !ok {
		return fmt.Errorf("unknown format %q (want one of: %s)", inspectFormat, formatNames())
	}
	_, err = out.Write(rules.Render(f, domains, rules.NewHeader("", time.Now(), len(domains))))
	return err
}

// describePayload prints the top-level profile fields and one line per payload entry.
// Fields that are missing or of an unexpected type are skipped.
func describePayload(w io.Writer, v profile.Value) {
	if s, ok := v.Get("PayloadDisplayName").Str(); ok {
		fmt.Fprintf(w, "Name: %s\n", s)
	}
	if s, ok := v.Get("PayloadType").Str(); ok {
		fmt.Fprintf(w, "Type: %s\n", s)
	}
	version := v.Get("PayloadVersion")
	if n, ok := version.Int(); ok {
		fmt.Fprintf(w, "Version: %d\n", n)
	} else if f, ok := version.Float(); ok {
		fmt.Fprintf(w, "Version: %g\n", f)
	}
	if s, ok := v.Get("PayloadIdentifier").Str(); ok {
		fmt.Fprintf(w, "Identifier: %s\n", s)
	}
	if b, ok := v.Get("PayloadRemovalDisallowed").Bool(); ok {
		fmt.Fprintf(w, "Removal disallowed: %t\n", b)
	}
	if t, ok := v.Get("PayloadExpirationDate").Time(); ok {
		fmt.Fprintf(w, "Expires: %s\n", t.UTC().Format(time.RFC3339))
	}

	content := v.Get(profile.KeyPayloadContent)
	fmt.Fprintf(w, "Payloads: %d\n", content.Len())
	for i := range content.Len() {
		entry := content.Index(i)
		if !entry.IsValid() {
			continue
		}
		typ, ok := entry.Get("PayloadType").Str()
		if !ok {
			typ = "(untyped " + entry.Kind().String() + ")"
		}
		fmt.Fprintf(w, "Payload[%d]: %s [%s]\n", i, typ, strings.Join(entry.Keys(), ", "))
	}
}

func formatNames() string {
	names := make([]string, len(rules.Formats))
	for i, f := range rules.Formats {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

// isPlist reports whether data is an unsigned XML or binary property list rather
// than a CMS envelope.
func isPlist(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) ||
		bytes.HasPrefix(trimmed, []byte("<plist")) ||
		bytes.HasPrefix(trimmed, []byte("bplist"))
}

// splitChain is the handler for the 'chain' command.
func splitChain(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	chain, err := certlib.SplitChain(data)
	if err != nil {
		return err
	}
	leaf, inter, err := chain.Certificates()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Leaf: %s (issuer %s)\n", leaf.Subject.CommonName, leaf.Issuer.CommonName)
	for i, c := range inter {
		fmt.Fprintf(out, "Chain[%d]: %s (issuer %s)\n", i, c.Subject.CommonName, c.Issuer.CommonName)
	}
	if !chain.HasIntermediates() {
		fmt.Fprintln(out, "Chain: none")
	}

	if chainOut == "" {
		return nil
	}
	if err := os.MkdirAll(chainOut, 0o755); err != nil {
		return err
	}
	leafPath, chainPath, err := chain.WriteFiles(chainOut)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", leafPath)
	if chainPath != "" {
		fmt.Fprintf(out, "Wrote %s\n", chainPath)
	}
	return nil
}
