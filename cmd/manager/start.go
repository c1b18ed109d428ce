package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AhmedYasen/download-manager/internal/config"
	"github.com/AhmedYasen/download-manager/internal/daemon"
)

func newStartCommand(a *app) *cobra.Command {
	var (
		activeDownloads int
		downloadPath    string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Long: `Start the download daemon and serve commands until interrupted.

At most --active-downloads jobs download at the same time. Files go to
--download-path unless a job names its own directory. Both can also come
from the config file or MANAGER_ACTIVE_DOWNLOADS and MANAGER_DOWNLOAD_PATH.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(downloadPath)
			if err != nil {
				return &usageError{err}
			}
			a.cfg = a.cfg.Merge(config.Config{
				ActiveDownloads: activeDownloads,
				DownloadPath:    path,
			})

			d, err := daemon.New(a.cfg, a.log)
			if err != nil {
				return &configError{err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Run(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Good Bye!")
			return nil
		},
	}

	cmd.Flags().IntVarP(&activeDownloads, "active-downloads", "a", 0, "Maximum number of simultaneous downloads")
	cmd.Flags().StringVarP(&downloadPath, "download-path", "p", "", "Default directory for downloaded files")

	return cmd
}

// absPath makes a local directory absolute. Empty paths and bucket URLs are
// returned as they are.
func absPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "://") {
		return p, nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}
