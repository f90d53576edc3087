package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Exit codes for semantic error classification.
const (
	ExitSuccess      = 0 // Command completed successfully
	ExitGeneralError = 1 // Operation failed (connect, stat, read, write, ...)
	ExitUsageError   = 2 // CLI usage error (missing args, invalid flags, malformed URL)
	ExitPanic        = 3 // Internal panic (unexpected crash)
)

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{fmt.Errorf(format, args...)}
}

// ExitCodeForError returns the exit code for an error returned by a command.
//
// Malformed URLs count as usage errors: the operation never reached a
// backend.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ue *usageError
	switch {
	case errors.As(err, &ue):
		return ExitUsageError
	case errors.Is(err, virtfs.ErrParse):
		return ExitUsageError
	}

	// cobra reports these as plain errors
	msg := err.Error()
	for _, prefix := range cobraUsagePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return ExitUsageError
		}
	}

	return ExitGeneralError
}

var cobraUsagePrefixes = []string{
	"unknown command",
	"required flag(s)",
	"if any flags in the group",
}

// exactArgs is cobra.ExactArgs with the failure classified as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("accepts %d arg(s), received %d\n\nUsage: %s", n, len(args), cmd.UseLine())
		}
		return nil
	}
}

// rangeArgs is cobra.RangeArgs with the failure classified as a usage error.
func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			return usagef("accepts between %d and %d arg(s), received %d\n\nUsage: %s", min, max, len(args), cmd.UseLine())
		}
		return nil
	}
}
