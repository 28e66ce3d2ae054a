package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRegistersShutdownableProvider(t *testing.T) {
	cfg := Config{ServiceName: "test-service", Endpoint: "localhost:4317"}

	shutdown, err := Init(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// No collector is listening; shutdown may return a connection error but
	// must return promptly rather than hang or panic.
	done := make(chan struct{})
	go func() {
		_ = shutdown(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return in time")
	}

	assert.NotNil(t, shutdown)
}
