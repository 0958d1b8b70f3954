package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Mirror a documentation site into an export directory",
		Long: `Crawl mirrors a documentation site into an export directory.

Starting from the seed URLs, crawl follows links within the allowed hosts
up to --max-depth, fetching at most --max-pages URLs per run. Every outcome
is appended to manifest.jsonl; HTML pages are rendered to Markdown, HTML
and text, and JSON, XML, PDF and text documents to Markdown and text.

Runs are resumable: the queue is saved while crawling and restored by the
next run over the same directory, and cached responses are reused.

Examples:
  # Mirror a site, staying on the seed's host
  docmirror crawl --out ./export --seed https://docs.example.com/

  # Use a built-in profile
  docmirror crawl --out ./endnote --profile endnote25 --emit-ris

  # Markdown report to a file, with a progress bar
  docmirror crawl -o ./export --report md --report-file ./report.md --progress \
    https://docs.example.com/

  # Start over, ignoring cached responses and the saved queue
  docmirror crawl -o ./export --refresh-cache --no-resume https://docs.example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addExportFlags(cmd)
	cmd.Flags().StringSliceP("seed", "s", nil, "Seed URL (repeatable; positional arguments are seeds too)")
	cmd.Flags().String("profile", "", "Named profile from the configuration file or built in (uspto-data, endnote25)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, "")
	if err != nil {
		return withCode(exitFailure, fmt.Errorf("configuration error: %w", err))
	}
	if err := override(cmd.Flags(), "seed", cmd.Flags().GetStringSlice, &cfg.Seeds); err != nil {
		return withCode(exitFailure, err)
	}
	cfg.Seeds = append(cfg.Seeds, args...)
	cfg.AllowSeedHosts()

	if err := cfg.Validate(); err != nil {
		return withCode(exitFailure, fmt.Errorf("configuration error: %w", err))
	}

	logger, closeLog := newLogger(cmd, cfg.LogFile, cfg.Verbose)
	defer closeLog() //nolint:errcheck // best effort on exit

	ctx, cancel := withSignals(cmd.Context(), logger)
	defer cancel()

	logger.Info("starting crawl",
		"out", cfg.OutDir,
		"profile", cfg.Profile,
		"seeds", cfg.Seeds,
		"allow", cfg.AllowHostSuffixes,
		"resume", cfg.Resume,
	)

	run, err := runExport(ctx, cmd, cfg, logger, exportOptions{writeReport: true})
	if err != nil {
		return err
	}
	return checkRun(run, cfg.ValidateExport)
}
