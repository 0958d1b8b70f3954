package main

import "fmt"

// Exit codes.
const (
	exitOK = 0
	// exitFailure covers usage, configuration and I/O errors.
	exitFailure = 2
	// exitBlocked means every page was a bot-protection challenge.
	exitBlocked = 3
	// exitInvalid means the export references files that do not exist.
	exitInvalid = 4
	// exitInterrupted follows the shell convention for SIGINT.
	exitInterrupted = 130
)

// exitError carries the process exit code of a failed command.
// A nil err exits silently; the command already printed its message.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// withCode wraps err so the command exits with code.
func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// usageError formats a message that exits with exitFailure.
func usageError(format string, args ...any) error {
	return withCode(exitFailure, fmt.Errorf(format, args...))
}
