package monitor

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// Dashboard is the monitoring web application served by queuemon.
type Dashboard interface {
	http.Handler

	// RootPath is the path prefix every dashboard route lives under ("" for /).
	RootPath() string

	// Close releases the dashboard's broker connections.
	Close() error
}

// Options controls how the dashboard is mounted.
type Options struct {
	RootPath          string
	ReadOnly          bool
	PrometheusAddress string
}

// ConnOptProvider is what the dashboard needs from the task-queue client.
type ConnOptProvider interface {
	ConnOpt() asynq.RedisConnOpt
}

// NewAsynqmon builds the asynqmon dashboard bound to the client's broker.
func NewAsynqmon(client ConnOptProvider, opts Options) Dashboard {
	return asynqmon.New(asynqmon.Options{
		RootPath:          opts.RootPath,
		RedisConnOpt:      client.ConnOpt(),
		ReadOnly:          opts.ReadOnly,
		PrometheusAddress: opts.PrometheusAddress,
	})
}
