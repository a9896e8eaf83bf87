package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/branchd-dev/queuemon/internal/bootstrap"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/logger"
)

// NewServeCmd creates the serve command
func NewServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the broker and serve the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("address", cfg.Server.ListenAddr()).
		Str("url_prefix", cfg.Server.URLPrefix).
		Msg("Starting queuemon")

	if err := bootstrap.New(cfg, log).Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Interrupted during startup")
			return nil
		}
		log.Error().Err(err).Msg("Monitor failed")
		return loggedError{err: err}
	}

	log.Info().Msg("Monitor stopped")
	return nil
}

// loggedError marks a failure that has already been written to the log.
type loggedError struct {
	err error
}

func (e loggedError) Error() string { return e.err.Error() }

func (e loggedError) Unwrap() error { return e.err }

// AlreadyLogged reports whether err was reported through the logger and
// should not be printed again.
func AlreadyLogged(err error) bool {
	var le loggedError
	return errors.As(err, &le)
}
