package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/config"
)

// NewRootCmd creates the root command for docmirror.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docmirror",
		Short: "Mirror documentation sites into an offline, citable archive",
		Long: `docmirror is a polite, resumable crawler for documentation sites.

It stays inside the allowed hosts, honors robots.txt, paces requests per
host, caches every response on disk and records each outcome in an
append-only manifest. Pages are rendered to Markdown, HTML and text
variants that can be cited offline.

Bot-protection challenges are detected and skipped, never bypassed.
Browser-saved pages can seed a crawl when the live site is protected.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the crawl history database")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewUSPTODataCmd())
	cmd.AddCommand(NewNormalizeExportCmd())
	cmd.AddCommand(NewInspectExportCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the command's exit code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:]))
}

// run executes cmd with args and maps the result to an exit code.
func run(cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), err)
	return exitFailure
}
