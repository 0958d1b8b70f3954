package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/inspect"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/pipeline"
)

// NewInspectExportCmd creates the inspect-export command.
func NewInspectExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect-export",
		Short: "Check that an export's manifest matches its files",
		Long: `inspect-export reads manifest.jsonl (or manifest.json) and checks that
every file it references exists in the export directory.

It reports the number of manifest lines, lines that are not valid JSON,
events per kind, referenced and missing files, missing files per artifact
key and a sample of the missing paths.

Examples:
  docmirror inspect-export --in ./export

  # Machine-readable output
  docmirror inspect-export --in ./export --json

  # Fail (exit code 4) when files are missing
  docmirror inspect-export --in ./export --fail-on-missing`,
		Args: cobra.NoArgs,
		RunE: runInspectExportCmd,
	}

	cmd.Flags().StringSliceP("in", "i", nil, "Export directory (repeatable)")
	cmd.Flags().BoolP("json", "j", false, "Print the inspection as JSON")
	cmd.Flags().Bool("fail-on-missing", false, "Exit with code 4 when files are missing")
	cmd.Flags().Int("max-missing-sample", inspect.DefaultMaxMissingSample, "Missing paths listed in the sample")
	cmd.Flags().Int("concurrency", pipeline.DefaultConcurrency, "Exports inspected in parallel")
	_ = cmd.MarkFlagRequired("in") //nolint:errcheck // flag is defined above

	return cmd
}

// runInspectExportCmd executes the inspect-export command.
func runInspectExportCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	dirs, err := flags.GetStringSlice("in")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	failOnMissing, err := flags.GetBool("fail-on-missing")
	if err != nil {
		return err
	}
	sample, err := flags.GetInt("max-missing-sample")
	if err != nil {
		return err
	}
	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return err
	}

	logger, _ := newLogger(cmd, "", getVerboseFlag(cmd))
	bp := pipeline.NewBatchProcessor(
		func(string) *pipeline.Pipeline {
			p := pipeline.New(pipeline.WithLogger(logger))
			p.AddStep(pipeline.NewInspectStep(failOnMissing, inspect.WithMaxMissingSample(sample)))
			return p
		},
		pipeline.WithConcurrency(concurrency),
		pipeline.WithBatchLogger(logger),
	)
	runs, err := bp.ProcessBatch(cmd.Context(), dirs)
	if err != nil {
		return withCode(exitFailure, err)
	}

	code := exitOK
	var results []*model.Inspection
	for _, run := range runs {
		switch {
		case run.Err == nil:
		case errors.Is(run.Err, pipeline.ErrMissingFiles):
			code = max(code, exitInvalid)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "inspect-export: %s: %v\n", run.ExportDir, run.Err)
			code = exitFailure
			continue
		}
		results = append(results, run.Report.Inspection)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := writeInspectionJSON(out, results, len(dirs) == 1); err != nil {
			return withCode(exitFailure, err)
		}
	} else {
		for _, in := range results {
			writeInspectionText(out, in, len(dirs) > 1)
		}
	}

	if code != exitOK {
		return withCode(code, nil)
	}
	return nil
}

// writeInspectionJSON prints one object for a single export, an array otherwise.
func writeInspectionJSON(w io.Writer, results []*model.Inspection, single bool) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if single && len(results) == 1 {
		return encoder.Encode(results[0])
	}
	if results == nil {
		results = []*model.Inspection{}
	}
	return encoder.Encode(results)
}

// writeInspectionText prints the line-oriented inspection summary.
func writeInspectionText(w io.Writer, in *model.Inspection, withDir bool) {
	prefix := "inspect-export:"
	if withDir {
		prefix = fmt.Sprintf("inspect-export: in=%s", in.ExportDir)
	}
	fmt.Fprintf(w, "%s lines=%d invalid_json=%d referenced_files=%d missing_files=%d\n",
		prefix, in.LinesTotal, in.LinesInvalidJSON, in.ReferencedFiles, in.MissingFiles)
	if in.MissingFiles == 0 {
		return
	}

	counts := model.SortedCounts(in.MissingByKey)
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Key, c.Value))
	}
	fmt.Fprintf(w, "%s missing_by_key: %s\n", prefix, strings.Join(parts, " "))

	if len(in.MissingPathsSample) > 0 {
		fmt.Fprintf(w, "%s missing_paths_sample:\n", prefix)
		for _, p := range in.MissingPathsSample {
			fmt.Fprintf(w, "- %s\n", p)
		}
	}
}
