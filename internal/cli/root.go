package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/queuemon/internal/broker"
	"github.com/branchd-dev/queuemon/internal/cli/commands"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/server"
)

// Process exit codes
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitConfiguration     = 2
	ExitBrokerUnreachable = 3
	ExitPortUnavailable   = 4
)

// NewRootCmd builds the queuemon command tree. Running it without a
// subcommand is the same as "serve".
func NewRootCmd(version string) *cobra.Command {
	var configFile string

	serveCmd := commands.NewServeCmd(&configFile)

	rootCmd := &cobra.Command{
		Use:   "queuemon",
		Short: "queuemon - task queue monitoring dashboard launcher",
		Long: `queuemon connects to the Redis broker of an asynq task queue and serves
the asynqmon monitoring dashboard for it.

Configuration is read from the environment (REDIS_URL, PORT, FLOWER_AUTH,
FLOWER_URL_PREFIX, ...), .env files and an optional YAML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional YAML configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "queuemon version %s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(commands.NewCheckCmd(&configFile))
	rootCmd.AddCommand(commands.NewHashPasswordCmd())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(version string) int {
	return execute(NewRootCmd(version), os.Stderr)
}

// execute prints failures to stderr unless the command already logged them.
func execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	code := ExitCode(err)
	if code != ExitOK && !commands.AlreadyLogged(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// ExitCode maps a startup error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitOK
	case errors.Is(err, config.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, broker.ErrUnreachable):
		return ExitBrokerUnreachable
	case errors.Is(err, server.ErrPortUnavailable):
		return ExitPortUnavailable
	default:
		return ExitFailure
	}
}
