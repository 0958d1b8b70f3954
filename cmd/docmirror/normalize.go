package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/pipeline"
	"github.com/nao1215/docmirror/internal/render"
)

// NewNormalizeExportCmd creates the normalize-export command.
func NewNormalizeExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize-export",
		Short: "Render missing variants of existing exports",
		Long: `normalize-export re-renders the Markdown, HTML and text variants of an
export from its manifest and raw files, without network access.

Three passes run in order: HTML pages, non-HTML documents (JSON, XML,
PDF, text) and API endpoint responses. Artifacts whose variants already
exist are skipped, so running the command twice changes nothing.

Examples:
  docmirror normalize-export --in ./export

  # Several exports at once, then check for missing files
  docmirror normalize-export --in ./uspto --in ./endnote --validate`,
		Args: cobra.NoArgs,
		RunE: runNormalizeExportCmd,
	}

	cmd.Flags().StringSliceP("in", "i", nil, "Export directory (repeatable)")
	cmd.Flags().Bool("validate", false, "Fail with exit code 4 when the export references missing files")
	cmd.Flags().Int("max-render-chars", config.DefaultMaxRenderChars, "Character cap of non-HTML text variants")
	cmd.Flags().String("endpoint-host", render.DefaultEndpointRule.Host, "Host of API endpoint responses")
	cmd.Flags().String("endpoint-prefix", render.DefaultEndpointRule.PathPrefix, "Path prefix of API endpoint responses")
	cmd.Flags().IntP("concurrency", "j", pipeline.DefaultConcurrency, "Exports processed in parallel")
	_ = cmd.MarkFlagRequired("in") //nolint:errcheck // flag is defined above

	return cmd
}

// runNormalizeExportCmd executes the normalize-export command.
func runNormalizeExportCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	dirs, err := flags.GetStringSlice("in")
	if err != nil {
		return err
	}
	validate, err := flags.GetBool("validate")
	if err != nil {
		return err
	}
	maxChars, err := flags.GetInt("max-render-chars")
	if err != nil {
		return err
	}
	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return err
	}
	var rule render.EndpointRule
	if rule.Host, err = flags.GetString("endpoint-host"); err != nil {
		return err
	}
	if rule.PathPrefix, err = flags.GetString("endpoint-prefix"); err != nil {
		return err
	}

	logger, _ := newLogger(cmd, "", getVerboseFlag(cmd))
	ctx, cancel := withSignals(cmd.Context(), logger)
	defer cancel()

	bp := pipeline.NewBatchProcessor(
		func(dir string) *pipeline.Pipeline {
			p := pipeline.New(pipeline.WithLogger(logger))
			p.AddStep(pipeline.NewNormalizeStep(newNormalizer(dir, rule, maxChars, logger)))
			if validate {
				p.AddStep(pipeline.NewInspectStep(true))
			}
			return p
		},
		pipeline.WithConcurrency(concurrency),
		pipeline.WithBatchLogger(logger),
	)
	runs, err := bp.ProcessBatch(ctx, dirs)
	if err != nil {
		return withCode(exitFailure, err)
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	code := exitOK
	for _, run := range runs {
		prefix := "normalize-export:"
		if len(runs) > 1 {
			prefix = fmt.Sprintf("normalize-export: in=%s", run.ExportDir)
		}
		if n := run.Report.Normalize; n != nil {
			fmt.Fprintf(out, "%s html=%d non_html=%d endpoints=%d\n", prefix, n.HTML, n.NonHTML, n.Endpoints)
		}
		switch {
		case run.Err == nil:
		case errors.Is(run.Err, pipeline.ErrMissingFiles):
			fmt.Fprintf(errOut, "%s missing_files=%d\n", prefix, run.Report.Inspection.MissingFiles)
			code = max(code, exitInvalid)
		default:
			fmt.Fprintf(errOut, "%s %v\n", prefix, run.Err)
			code = exitFailure
		}
	}
	if code != exitOK {
		return withCode(code, nil)
	}
	return nil
}
