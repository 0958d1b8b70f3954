package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/docmirror/internal/citation"
	"github.com/nao1215/docmirror/internal/config"
)

// addExportFlags registers the flags shared by the crawling commands.
func addExportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	// Export and configuration
	flags.StringP("out", "o", "", "Export directory (created if needed)")
	flags.StringP("config", "c", "",
		"Configuration file path (default: .docmirror.yaml in current or home directory)")

	// Crawl scope
	flags.StringSlice("allow-host-suffix", nil,
		"Allowed host or parent domain (repeatable; default: the seed hosts)")
	flags.Bool("follow-offsite", false, "Follow links to any host")
	flags.StringSlice("ignore-pattern", nil, "Skip discovered links whose path matches (repeatable)")
	flags.StringSlice("follow-pattern", nil, "Only follow discovered links whose path matches (repeatable)")
	flags.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum fetches per run (0 = no limit)")
	flags.IntP("max-depth", "d", config.DefaultMaxDepth, "Maximum link depth from the seeds")

	// Politeness and transport
	flags.Duration("per-host-delay", config.DefaultPerHostDelay, "Minimum interval between requests to one host")
	flags.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	flags.Int("max-retries", config.DefaultMaxRetries, "Retries for 429, 5xx and network errors")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent header")
	flags.Bool("no-robots", false, "Do not check robots.txt")
	flags.String("proxy", "", "SOCKS5 proxy address (host:port)")
	flags.String("cookie", "", "Cookie header sent with every request")
	flags.StringToString("header", nil, "Extra request header NAME=VALUE (repeatable)")

	// Cache and resume
	flags.Bool("refresh-cache", false, "Ignore cached responses")
	flags.Bool("revalidate", false, "Revalidate cached responses with conditional requests")
	flags.Bool("no-resume", false, "Ignore the queue saved by a previous run")

	// Outputs
	flags.Bool("emit-ris", false, "Write citations/refs.ris")
	flags.Bool("emit-csl-json", false, "Write citations/refs.csl.json")
	flags.Bool("emit-bibtex", false, "Write citations/refs.bib")
	flags.String("report", config.DefaultReportFormat, "Report format: md, json or text")
	flags.String("report-file", "", "Write the report to a file instead of stdout")
	flags.String("metrics-file", "", "Write Prometheus metrics to a textfile")
	flags.String("log-file", "", "Also write logs to a rotated file")
	flags.Bool("progress", false, "Show a progress bar on stderr")
	flags.Bool("validate", false, "Fail with exit code 4 when the export references missing files")
	flags.Bool("no-history", false, "Do not record the run in the history database")
}

// override copies the value of flag name into dst when it was set on the
// command line, so unset flags never clobber profile values.
func override[T any](flags *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// negate clears dst when the boolean flag name is set.
func negate(flags *pflag.FlagSet, name string, dst *bool) error {
	v, err := flags.GetBool(name)
	if err != nil {
		return err
	}
	if v {
		*dst = false
	}
	return nil
}

// buildConfig creates a Config from the profile file, the profile named
// profile and the command line, in that order of precedence.
func buildConfig(cmd *cobra.Command, profile string) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.NewConfig()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = configPath

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, use the built-in profiles only.
	file, path, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if flags.Lookup("profile") != nil {
		if err := override(flags, "profile", flags.GetString, &profile); err != nil {
			return nil, err
		}
	}
	p, err := file.Profile(profile)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	cfg.ApplyProfile(profile, p)

	err = errors.Join(
		override(flags, "out", flags.GetString, &cfg.OutDir),
		override(flags, "allow-host-suffix", flags.GetStringSlice, &cfg.AllowHostSuffixes),
		override(flags, "follow-offsite", flags.GetBool, &cfg.FollowOffsite),
		override(flags, "ignore-pattern", flags.GetStringSlice, &cfg.IgnorePatterns),
		override(flags, "follow-pattern", flags.GetStringSlice, &cfg.FollowPatterns),
		override(flags, "max-pages", flags.GetInt, &cfg.MaxPages),
		override(flags, "max-depth", flags.GetInt, &cfg.MaxDepth),
		override(flags, "per-host-delay", flags.GetDuration, &cfg.PerHostDelay),
		override(flags, "timeout", flags.GetDuration, &cfg.Timeout),
		override(flags, "max-retries", flags.GetInt, &cfg.MaxRetries),
		override(flags, "user-agent", flags.GetString, &cfg.UserAgent),
		override(flags, "proxy", flags.GetString, &cfg.ProxyAddress),
		override(flags, "cookie", flags.GetString, &cfg.Cookie),
		override(flags, "refresh-cache", flags.GetBool, &cfg.RefreshCache),
		override(flags, "revalidate", flags.GetBool, &cfg.Revalidate),
		override(flags, "report", flags.GetString, &cfg.ReportFormat),
		override(flags, "report-file", flags.GetString, &cfg.ReportFile),
		override(flags, "metrics-file", flags.GetString, &cfg.MetricsFile),
		override(flags, "log-file", flags.GetString, &cfg.LogFile),
		override(flags, "progress", flags.GetBool, &cfg.Progress),
		override(flags, "validate", flags.GetBool, &cfg.ValidateExport),
		negate(flags, "no-robots", &cfg.RespectRobots),
		negate(flags, "no-resume", &cfg.Resume),
		negate(flags, "no-history", &cfg.SaveToDB),
	)
	if err != nil {
		return nil, err
	}

	if flags.Changed("header") {
		headers, err := flags.GetStringToString("header")
		if err != nil {
			return nil, err
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}

	for name, format := range map[string]citation.Format{
		"emit-ris":      citation.FormatRIS,
		"emit-csl-json": citation.FormatCSLJSON,
		"emit-bibtex":   citation.FormatBibTeX,
	} {
		on, err := flags.GetBool(name)
		if err != nil {
			return nil, err
		}
		if on && !slices.Contains(cfg.CitationFormats, format) {
			cfg.CitationFormats = append(cfg.CitationFormats, format)
		}
	}
	slices.SortFunc(cfg.CitationFormats, compareCitationFormats)

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.DBDir = getDBDir(cmd)
	return cfg, nil
}

// citationOrder is the order citation files are written and reported in.
var citationOrder = []citation.Format{citation.FormatRIS, citation.FormatCSLJSON, citation.FormatBibTeX}

func compareCitationFormats(a, b citation.Format) int {
	return slices.Index(citationOrder, a) - slices.Index(citationOrder, b)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getDBDir returns the history database directory.
func getDBDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil || dir == "" {
		return config.XDGDataDir()
	}
	return dir
}
