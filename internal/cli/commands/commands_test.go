package commands

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchd-dev/queuemon/internal/auth"
	"github.com/branchd-dev/queuemon/internal/broker"
	"github.com/branchd-dev/queuemon/internal/config"
)

func TestRunHashPassword(t *testing.T) {
	var out bytes.Buffer

	err := runHashPassword(strings.NewReader("s3cret\n"), &out, "ops")
	require.NoError(t, err)

	entry := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(entry, "ops:$2"), entry)

	accounts, err := auth.ParseCredentials(entry)
	require.NoError(t, err)
	assert.True(t, accounts.Verify("ops", "s3cret"))
}

func TestRunHashPassword_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		username string
	}{
		{name: "no input", input: "", username: "admin"},
		{name: "empty line", input: "\n", username: "admin"},
		{name: "empty username", input: "pw\n", username: ""},
		{name: "username with colon", input: "pw\n", username: "a:b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runHashPassword(strings.NewReader(tt.input), &out, tt.username)
			require.Error(t, err)
			assert.Empty(t, out.String())
		})
	}
}

func TestRunCheck(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	t.Setenv("REDIS_URL", fmt.Sprintf("redis://%s", mr.Addr()))

	var out bytes.Buffer
	require.NoError(t, runCheck(context.Background(), "", &out))

	assert.Contains(t, out.String(), "Queues: none")
	assert.Contains(t, out.String(), "OK")
}

func TestRunCheck_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	t.Setenv("REDIS_URL", fmt.Sprintf("redis://%s", addr))
	t.Setenv("BROKER_CONNECTION_MAX_RETRIES", "2")
	t.Setenv("BROKER_CONNECTION_RETRY_INTERVAL", "10ms")

	var out bytes.Buffer
	err = runCheck(context.Background(), "", &out)
	require.ErrorIs(t, err, broker.ErrUnreachable)
}

func TestRunCheck_MissingURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	var out bytes.Buffer
	err := runCheck(context.Background(), "", &out)
	require.ErrorIs(t, err, config.ErrConfiguration)
}

func TestRunServe_FailureIsLogged(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	t.Setenv("REDIS_URL", fmt.Sprintf("redis://%s", addr))
	t.Setenv("BROKER_CONNECTION_MAX_RETRIES", "1")
	t.Setenv("BROKER_CONNECTION_RETRY_INTERVAL", "10ms")

	err = runServe(context.Background(), "")
	require.ErrorIs(t, err, broker.ErrUnreachable)
	assert.True(t, AlreadyLogged(err))
}

func TestRunServe_ConfigErrorNotLogged(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	err := runServe(context.Background(), "")
	require.ErrorIs(t, err, config.ErrConfiguration)
	// The logger does not exist yet, so the caller must print it
	assert.False(t, AlreadyLogged(err))
}
