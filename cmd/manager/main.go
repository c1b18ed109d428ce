package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	// Storage drivers for remote download paths.
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/AhmedYasen/download-manager/internal/client"
	"github.com/AhmedYasen/download-manager/internal/daemon"
	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
)

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitInvalidArgs       = 2
	ExitDaemonUnreachable = 3
	ExitAlreadyRunning    = 4
	ExitConfigError       = 5
	ExitRequestRejected   = 6
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("Error:"), err)
		return exitCode(err)
	}
	return ExitSuccess
}

// usageError marks errors caused by bad command-line input.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// configError marks errors loading or validating configuration.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		ue *usageError
		ce *configError
	)
	switch {
	case errors.As(err, &ue):
		return ExitInvalidArgs
	case errors.As(err, &ce):
		return ExitConfigError
	case errors.Is(err, daemon.ErrAlreadyRunning):
		return ExitAlreadyRunning
	case errors.Is(err, client.ErrDaemonNotRunning):
		return ExitDaemonUnreachable
	case errors.Is(err, dlhttp.ErrBadRequest),
		errors.Is(err, dlhttp.ErrNotFound),
		errors.Is(err, dlhttp.ErrMethodNotAllowed):
		return ExitRequestRejected
	default:
		return ExitGeneralError
	}
}
