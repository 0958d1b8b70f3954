package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	if cmd.Use != "docmirror" {
		t.Errorf("expected use 'docmirror', got %q", cmd.Use)
	}
	if cmd.Version == "" {
		t.Error("expected non-empty version")
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("expected SilenceUsage and SilenceErrors")
	}

	flag := cmd.PersistentFlags().Lookup("verbose")
	if flag == nil || flag.Shorthand != "v" || flag.DefValue != "false" {
		t.Errorf("unexpected verbose flag: %+v", flag)
	}
	if cmd.PersistentFlags().Lookup("db-dir") == nil {
		t.Error("expected db-dir flag")
	}

	want := []string{"crawl", "uspto-data", "normalize-export", "inspect-export", "history", "init", "version"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("expected %s subcommand", name)
		}
	}
}

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		runE       func(*cobra.Command, []string) error
		wantCode   int
		wantStderr string
	}{
		{
			name:     "success",
			runE:     func(*cobra.Command, []string) error { return nil },
			wantCode: exitOK,
		},
		{
			name:       "plain error",
			runE:       func(*cobra.Command, []string) error { return errors.New("boom") },
			wantCode:   exitFailure,
			wantStderr: "boom",
		},
		{
			name:       "coded error",
			runE:       func(*cobra.Command, []string) error { return withCode(exitBlocked, errors.New("blocked")) },
			wantCode:   exitBlocked,
			wantStderr: "blocked",
		},
		{
			name:     "silent coded error",
			runE:     func(*cobra.Command, []string) error { return withCode(exitInvalid, nil) },
			wantCode: exitInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stderr strings.Builder
			cmd := &cobra.Command{Use: "x", RunE: tt.runE, SilenceErrors: true, SilenceUsage: true}
			cmd.SetErr(&stderr)

			if got := run(cmd, []string{}); got != tt.wantCode {
				t.Errorf("run() = %d, want %d", got, tt.wantCode)
			}
			if tt.wantStderr == "" && stderr.Len() != 0 {
				t.Errorf("unexpected stderr %q", stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("stderr %q does not contain %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()

	res := execute(t, t.TempDir(), "no-such-command")
	if res.code != exitFailure {
		t.Errorf("code = %d, want %d", res.code, exitFailure)
	}
	if !strings.Contains(res.stderr, "unknown command") {
		t.Errorf("stderr = %q", res.stderr)
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	err := withCode(exitInvalid, inner)
	if !errors.Is(err, inner) {
		t.Error("exitError should unwrap to the inner error")
	}
	if err.Error() != "inner" {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := withCode(exitBlocked, nil).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	if ue := usageError("bad %s", "flag"); ue.Error() != "bad flag" {
		t.Errorf("usageError() = %q", ue.Error())
	}
}
