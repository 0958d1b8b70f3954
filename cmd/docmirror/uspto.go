package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/crawler"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/pipeline"
)

// NewUSPTODataCmd creates the uspto-data command.
func NewUSPTODataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uspto-data",
		Short: "Mirror the USPTO Open Data Portal documentation",
		Long: `uspto-data mirrors data.uspto.gov with the built-in "uspto-data" profile.

API endpoint responses below /apis/ are rendered as endpoint pages.

The portal is often protected by a JavaScript challenge that docmirror does
not solve. Save the pages you need from a browser and pass them with
--seed-html or --seed-html-dir: they are stored as ingested_local and their
links become the crawl seeds. Saved challenge pages are skipped.

Exit codes:
  0  success
  2  error (bad flags, unreadable seed pages, no links found)
  3  every page was a bot-protection challenge; nothing fetched
  4  --validate found missing files

Examples:
  # Crawl with the default seeds
  docmirror uspto-data --out ./uspto

  # Bootstrap from pages saved in a browser
  docmirror uspto-data --out ./uspto --seed-html-dir ~/Downloads/uspto

  # Check the export after crawling
  docmirror uspto-data --out ./uspto --validate`,
		Args: cobra.NoArgs,
		RunE: runUSPTODataCmd,
	}

	addExportFlags(cmd)
	cmd.Flags().StringSlice("seed-html", nil, "Browser-saved HTML page used as a seed (repeatable)")
	cmd.Flags().String("seed-html-dir", "", "Directory searched recursively for browser-saved *.html pages")
	cmd.Flags().String("seed-url", "", "Page URL of saved pages without a \"saved from\" comment (default https://data.uspto.gov/)")

	return cmd
}

// runUSPTODataCmd executes the uspto-data command.
func runUSPTODataCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	cfg, err := buildConfig(cmd, config.ProfileUSPTOData)
	if err != nil {
		return withCode(exitFailure, fmt.Errorf("configuration error: %w", err))
	}
	err = errors.Join(
		override(flags, "seed-html", flags.GetStringSlice, &cfg.SeedHTML),
		override(flags, "seed-html-dir", flags.GetString, &cfg.SeedHTMLDir),
		override(flags, "seed-url", flags.GetString, &cfg.SeedURL),
	)
	if err != nil {
		return withCode(exitFailure, err)
	}

	if len(cfg.SeedHTML) > 0 || cfg.SeedHTMLDir != "" {
		files, err := snapshotFiles(cfg)
		switch {
		case errors.Is(err, crawler.ErrSnapshotDirNotFound):
			return usageError("--seed-html-dir does not exist: %s", cfg.SeedHTMLDir)
		case errors.Is(err, crawler.ErrSnapshotDirNotDir):
			return usageError("--seed-html-dir must be a directory: %s", cfg.SeedHTMLDir)
		case err != nil:
			return withCode(exitFailure, err)
		}
		if len(files) == 0 {
			return usageError("No seeds provided; use --seed-html or --seed-html-dir")
		}
		// The saved pages replace the default seeds.
		cfg.SeedHTML, cfg.SeedHTMLDir = files, ""
		cfg.Seeds = nil
	}

	if err := cfg.Validate(); err != nil {
		return withCode(exitFailure, fmt.Errorf("configuration error: %w", err))
	}

	logger, closeLog := newLogger(cmd, cfg.LogFile, cfg.Verbose)
	defer closeLog() //nolint:errcheck // best effort on exit

	ctx, cancel := withSignals(cmd.Context(), logger)
	defer cancel()

	run, err := runExport(ctx, cmd, cfg, logger, exportOptions{
		writeReport:          flags.Changed("report") || cfg.ReportFile != "",
		requireSnapshotLinks: true,
	})
	if err != nil {
		return err
	}

	printUSPTOSummary(cmd.OutOrStdout(), run)
	return checkRun(run, cfg.ValidateExport)
}

// printUSPTOSummary prints the one-line result of a uspto-data run.
func printUSPTOSummary(w io.Writer, run *pipeline.Run) {
	s := run.Report.Summary
	var html, nonHTML, endpoints, missing int
	if n := run.Report.Normalize; n != nil {
		html, nonHTML, endpoints = n.HTML, n.NonHTML, n.Endpoints
	}
	if in := run.Report.Inspection; in != nil {
		missing = in.MissingFiles
	}
	fmt.Fprintf(w,
		"uspto-data: fetched=%d blocked=%d blocked_waf=%d error=%d "+
			"normalize_html=%d normalize_non_html=%d normalize_endpoints=%d missing_files=%d\n",
		s.Stat(model.StatFetched), s.Stat(model.StatBlocked), s.Stat(model.StatBlockedWAF), s.Stat(model.StatError),
		html, nonHTML, endpoints, missing,
	)
}
