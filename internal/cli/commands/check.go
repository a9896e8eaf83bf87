package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/queuemon/internal/bootstrap"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/logger"
)

// NewCheckCmd creates the check command
func NewCheckCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the broker URL and connectivity, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), *configFile, cmd.OutOrStdout())
		},
	}
}

func runCheck(ctx context.Context, configFile string, out io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Keep stdout for the report
	log := logger.New(os.Stderr, "console")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.New(cfg, log).Check(ctx, out); err != nil {
		return err
	}

	fmt.Fprintln(out, "OK")
	return nil
}
