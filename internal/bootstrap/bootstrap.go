// Package bootstrap runs the monitor startup sequence:
// configure, connect to the broker, bind the listener, serve.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/branchd-dev/queuemon/internal/auth"
	"github.com/branchd-dev/queuemon/internal/broker"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/monitor"
	"github.com/branchd-dev/queuemon/internal/server"
	"github.com/branchd-dev/queuemon/internal/stats"
)

// DashboardFactory builds the dashboard for a connected client.
type DashboardFactory func(client *broker.Client, opts monitor.Options) monitor.Dashboard

// Bootstrapper wires configuration, broker client and dashboard together.
type Bootstrapper struct {
	cfg          *config.Config
	logger       zerolog.Logger
	newDashboard DashboardFactory
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithDashboardFactory replaces the asynqmon dashboard.
func WithDashboardFactory(f DashboardFactory) Option {
	return func(b *Bootstrapper) {
		b.newDashboard = f
	}
}

// New creates a Bootstrapper for cfg.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		cfg:    cfg,
		logger: logger,
		newDashboard: func(client *broker.Client, opts monitor.Options) monitor.Dashboard {
			return monitor.NewAsynqmon(client, opts)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run blocks until ctx is cancelled or startup fails. Startup failures wrap
// config.ErrConfiguration, broker.ErrUnreachable or server.ErrPortUnavailable.
func (b *Bootstrapper) Run(ctx context.Context) error {
	client, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing broker client")
		}
	}()

	var reporter *stats.Reporter
	if b.cfg.Stats.Schedule != "" {
		reporter, err = stats.NewReporter(b.cfg.Stats.Schedule, client.Inspector(), b.logger)
		if err != nil {
			return err
		}
	}

	dashboard := b.newDashboard(client, monitor.Options{
		RootPath:          b.cfg.Server.URLPrefix,
		ReadOnly:          b.cfg.Server.ReadOnly,
		PrometheusAddress: b.cfg.Server.PrometheusAddress,
	})
	defer func() {
		if err := dashboard.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("Error closing dashboard")
		}
	}()

	srv, err := server.New(b.cfg.Server, dashboard, client, b.logger)
	if err != nil {
		return err
	}

	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	if reporter != nil {
		reporter.Start()
		defer reporter.Stop()
	}

	return srv.Serve(ctx, ln)
}

// Check derives the broker URL, connects once through the retry policy and
// writes the redacted URL and queue names to w.
func (b *Bootstrapper) Check(ctx context.Context, w io.Writer) error {
	client, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	queues, err := client.Inspector().Queues()
	if err != nil {
		return fmt.Errorf("%w: failed to list queues: %v", broker.ErrUnreachable, err)
	}

	fmt.Fprintf(w, "Broker: %s\n", client.URL().Redacted())
	if len(queues) == 0 {
		fmt.Fprintln(w, "Queues: none")
		return nil
	}
	fmt.Fprintln(w, "Queues:")
	for _, q := range queues {
		fmt.Fprintf(w, "  - %s\n", q)
	}
	return nil
}

// connect validates everything that can be checked offline, then builds the
// client and waits for the broker.
func (b *Bootstrapper) connect(ctx context.Context) (*broker.Client, error) {
	connURL, err := broker.ParseURL(b.cfg.Broker.URL)
	if err != nil {
		b.logger.Error().Err(err).Str("redis_url", broker.Redact(b.cfg.Broker.URL)).Msg("Invalid broker URL")
		return nil, err
	}
	if connURL.DroppedCredentials {
		b.logger.Warn().Msg("REDIS_URL has a username or a password but not both - connecting without credentials")
	}

	if _, err := auth.ParseCredentials(b.cfg.Server.Auth); err != nil {
		return nil, err
	}
	if b.cfg.Stats.Schedule != "" {
		if err := stats.ValidateSchedule(b.cfg.Stats.Schedule); err != nil {
			return nil, err
		}
	}

	b.logger.Info().
		Str("broker", connURL.Redacted()).
		Int("max_retries", b.cfg.Broker.MaxRetries).
		Int("pool_size", b.cfg.Broker.PoolSize).
		Msg("Connecting to broker")

	client, err := broker.NewClient(connURL.String(), b.cfg.Broker, b.logger)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
