package stats

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/queuemon/internal/config"
)

// Inspector is the subset of *asynq.Inspector the reporter reads.
type Inspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reporter periodically logs a summary of every queue on the broker.
type Reporter struct {
	cron      *cron.Cron
	inspector Inspector
	logger    zerolog.Logger
}

// NewReporter schedules Report on a standard 5-field cron spec (descriptors
// like @every 1m are accepted too).
func NewReporter(schedule string, inspector Inspector, logger zerolog.Logger) (*Reporter, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	r := &Reporter{
		cron:      cron.New(cron.WithParser(parser)),
		inspector: inspector,
		logger:    logger.With().Str("component", "stats").Logger(),
	}

	if _, err := r.cron.AddFunc(schedule, r.Report); err != nil {
		return nil, fmt.Errorf("%w: invalid stats schedule %q: %v", config.ErrConfiguration, schedule, err)
	}

	return r, nil
}

// ValidateSchedule reports whether schedule is a usable cron spec.
func ValidateSchedule(schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("%w: invalid stats schedule %q: %v", config.ErrConfiguration, schedule, err)
	}
	return nil
}

// Start runs the schedule in the background.
func (r *Reporter) Start() {
	r.logger.Info().Msg("Starting queue stats reporter")
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// Report logs one line per queue. Broker errors are logged, never returned.
func (r *Reporter) Report() {
	queues, err := r.inspector.Queues()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list queues")
		return
	}

	if len(queues) == 0 {
		r.logger.Info().Msg("No queues found on broker")
		return
	}

	for _, q := range queues {
		info, err := r.inspector.GetQueueInfo(q)
		if err != nil {
			r.logger.Warn().Err(err).Str("queue", q).Msg("Failed to get queue info")
			continue
		}

		r.logger.Info().
			Str("queue", info.Queue).
			Int("size", info.Size).
			Int("pending", info.Pending).
			Int("active", info.Active).
			Int("scheduled", info.Scheduled).
			Int("retry", info.Retry).
			Int("archived", info.Archived).
			Int("processed_today", info.Processed).
			Int("failed_today", info.Failed).
			Bool("paused", info.Paused).
			Dur("latency", info.Latency).
			Msg("Queue stats")
	}
}
