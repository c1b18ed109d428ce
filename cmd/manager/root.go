package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AhmedYasen/download-manager/internal/client"
	"github.com/AhmedYasen/download-manager/internal/config"
	dlhttp "github.com/AhmedYasen/download-manager/internal/http"
)

const cliExecutable = "manager"

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	envFile    string
	addr       string
	verbosity  int

	cfg config.Config
	log zerolog.Logger
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Addr, dlhttp.Options{
		MaxIdleConnsPerHost: a.cfg.HTTP.MaxIdleConnsPerHost,
		Timeout:             a.cfg.HTTP.Timeout,
	})
}

// loadConfig applies defaults, the config file, the .env file, the
// environment and finally flags, in that order.
func (a *app) loadConfig() error {
	cfg := config.Default()
	if a.configFile != "" {
		loaded, err := config.LoadFromFile(a.configFile)
		if err != nil {
			return &configError{err}
		}
		cfg = loaded
	}
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return &configError{err}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return &configError{err}
	}
	a.cfg = cfg.Merge(config.Config{Addr: a.addr})
	a.log = newLogger(a.stderr, a.cfg.Log, a.verbosity)
	return nil
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Download manager daemon and client",
		Long: `manager queues HTTP downloads in a local daemon.

Run 'manager start' to launch the daemon in the foreground, then use the
other commands from another terminal to add and inspect downloads.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before reading MANAGER_ variables")
	cmd.PersistentFlags().StringVar(&a.addr, "addr", "", "Control address of the daemon (default 127.0.0.1:7878)")
	cmd.PersistentFlags().CountVarP(&a.verbosity, "verbosity", "v", "Increase logging verbosity (repeatable)")

	cmd.AddCommand(newStartCommand(a))
	cmd.AddCommand(newAddCommand(a))
	cmd.AddCommand(newListCommand(a))
	cmd.AddCommand(newCancelCommand(a))
	cmd.AddCommand(newInfoCommand(a))

	return cmd
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}
