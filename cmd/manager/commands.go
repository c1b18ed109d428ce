package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// send posts cmd to the daemon and prints the response.
func (a *app) send(cmd *cobra.Command, c protocol.Command) error {
	a.log.Debug().Str("command", c.Kind()).Str("addr", a.cfg.Addr).Msg("sending")
	resp, err := a.client().Send(cmd.Context(), c)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, resp)
	return nil
}

func newAddCommand(a *app) *cobra.Command {
	var (
		url          string
		customName   string
		downloadPath string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a URL for download",
		Long: `Queue a URL for download.

The file is named after the last path segment of the URL unless
--custom-name is given, in which case the extension of the URL's file is
kept.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return &usageError{errors.New("--url is required")}
			}
			path, err := absPath(downloadPath)
			if err != nil {
				return &usageError{err}
			}
			return a.send(cmd, protocol.Command{Add: &protocol.Add{
				URL:                url,
				CustomName:         protocol.StringPtr(customName),
				CustomDownloadPath: protocol.StringPtr(path),
			}})
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "URL to download (required)")
	cmd.Flags().StringVarP(&customName, "custom-name", "f", "", "File name to save as")
	cmd.Flags().StringVarP(&downloadPath, "custom-download-path", "p", "", "Directory to save into instead of the daemon default")

	return cmd
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "list {all|active|done}",
		Short:     "List jobs",
		Args:      exactArgs(1),
		ValidArgs: []string{"all", "active", "done"},
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := protocol.ParseScope(args[0])
			if err != nil {
				return &usageError{err}
			}
			return a.send(cmd, protocol.Command{List: &protocol.List{Scope: scope}})
		},
	}
}

func newCancelCommand(a *app) *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a job (not supported yet)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filename == "" {
				return &usageError{errors.New("--filename is required")}
			}
			return a.send(cmd, protocol.Command{Cancel: &protocol.Cancel{Filename: filename}})
		},
	}
	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Name of the job (required)")
	return cmd
}

func newInfoCommand(a *app) *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a single job",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filename == "" {
				return &usageError{errors.New("--filename is required")}
			}
			return a.send(cmd, protocol.Command{Info: &protocol.Info{Filename: filename}})
		},
	}
	cmd.Flags().StringVarP(&filename, "filename", "f", "", "Name of the job (required)")
	return cmd
}
