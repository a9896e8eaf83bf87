package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/branchd-dev/queuemon/internal/broker"
	"github.com/branchd-dev/queuemon/internal/config"
	"github.com/branchd-dev/queuemon/internal/server"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: ExitOK},
		{name: "cancelled", err: context.Canceled, expected: ExitOK},
		{name: "configuration", err: fmt.Errorf("load: %w", config.ErrConfiguration), expected: ExitConfiguration},
		{name: "invalid broker url", err: broker.ErrInvalidURL, expected: ExitConfiguration},
		{name: "broker unreachable", err: fmt.Errorf("%w after 10 attempts", broker.ErrUnreachable), expected: ExitBrokerUnreachable},
		{name: "port unavailable", err: fmt.Errorf("%w: 0.0.0.0:5555", server.ErrPortUnavailable), expected: ExitPortUnavailable},
		{name: "other", err: errors.New("boom"), expected: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.expected {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd("1.2.3")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	if got := out.String(); got != "queuemon version 1.2.3\n" {
		t.Errorf("output = %q", got)
	}
}

func TestServeWithoutBrokerURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cmd := NewRootCmd("dev")
	cmd.SetArgs([]string{"serve"})

	err := cmd.Execute()
	if ExitCode(err) != ExitConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func unreachableBroker(t *testing.T) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	t.Setenv("REDIS_URL", fmt.Sprintf("redis://%s", addr))
	t.Setenv("BROKER_CONNECTION_MAX_RETRIES", "1")
	t.Setenv("BROKER_CONNECTION_RETRY_INTERVAL", "10ms")
}

func TestExecute_Reporting(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		setup       func(t *testing.T)
		expected    int
		wantPrinted bool
	}{
		{
			name:        "serve failure is only logged",
			args:        []string{"serve"},
			setup:       unreachableBroker,
			expected:    ExitBrokerUnreachable,
			wantPrinted: false,
		},
		{
			name:        "serve configuration error is printed",
			args:        []string{"serve"},
			setup:       func(t *testing.T) { t.Setenv("REDIS_URL", "") },
			expected:    ExitConfiguration,
			wantPrinted: true,
		},
		{
			name:        "check failure is printed",
			args:        []string{"check"},
			setup:       unreachableBroker,
			expected:    ExitBrokerUnreachable,
			wantPrinted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)

			cmd := NewRootCmd("dev")
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			var stderr bytes.Buffer
			if got := execute(cmd, &stderr); got != tt.expected {
				t.Fatalf("exit code = %d, want %d", got, tt.expected)
			}

			printed := strings.HasPrefix(stderr.String(), "Error: ")
			if printed != tt.wantPrinted {
				t.Errorf("stderr = %q, want printed=%v", stderr.String(), tt.wantPrinted)
			}
		})
	}
}
