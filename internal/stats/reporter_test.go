package stats

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchd-dev/queuemon/internal/config"
)

type fakeInspector struct {
	queues   []string
	infos    map[string]*asynq.QueueInfo
	queueErr error
}

func (f *fakeInspector) Queues() ([]string, error) {
	return f.queues, f.queueErr
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[queue]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return info, nil
}

func TestNewReporter_Schedule(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		shouldError bool
	}{
		{name: "every five minutes", schedule: "*/5 * * * *"},
		{name: "descriptor", schedule: "@every 30s"},
		{name: "hourly", schedule: "@hourly"},
		{name: "six fields", schedule: "0 */5 * * * *", shouldError: true},
		{name: "garbage", schedule: "often", shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReporter(tt.schedule, &fakeInspector{}, zerolog.Nop())
			if tt.shouldError {
				require.ErrorIs(t, err, config.ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	inspector := &fakeInspector{
		queues: []string{"critical", "default", "missing"},
		infos: map[string]*asynq.QueueInfo{
			"critical": {Queue: "critical", Size: 3, Pending: 2, Active: 1},
			"default":  {Queue: "default", Size: 0, Paused: true},
		},
	}

	r, err := NewReporter("@hourly", inspector, zerolog.New(&buf))
	require.NoError(t, err)

	r.Report()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"queue":"critical"`)
	assert.Contains(t, lines[0], `"pending":2`)
	assert.Contains(t, lines[1], `"paused":true`)
	assert.Contains(t, lines[2], "Failed to get queue info")
}

func TestReporter_ReportNoQueues(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReporter("@hourly", &fakeInspector{}, zerolog.New(&buf))
	require.NoError(t, err)

	r.Report()

	assert.Contains(t, buf.String(), "No queues found")
}

func TestReporter_ReportBrokerError(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReporter("@hourly", &fakeInspector{queueErr: errors.New("connection refused")}, zerolog.New(&buf))
	require.NoError(t, err)

	r.Report()

	assert.Contains(t, buf.String(), "connection refused")
}

func TestReporter_StartStop(t *testing.T) {
	r, err := NewReporter("@every 1h", &fakeInspector{}, zerolog.Nop())
	require.NoError(t, err)

	r.Start()
	r.Stop()
}
