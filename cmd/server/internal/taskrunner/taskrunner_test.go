package taskrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndShutdown(t *testing.T) {
	c := Create()

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	c.Run(ctx, "detached", func(ctx context.Context) {
		cancel()
		ran <- ctx.Err()
	})

	require.NoError(t, c.Shutdown(context.Background()))
	assert.NoError(t, <-ran, "task context should outlive its parent")
	assert.Zero(t, c.InFlight())
}

func TestPanicIsContained(t *testing.T) {
	c := Create()
	c.Run(context.Background(), "boom", func(context.Context) {
		panic("boom")
	})

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Zero(t, c.InFlight())
}

func TestShutdownTimeout(t *testing.T) {
	c := Create()
	release := make(chan struct{})
	defer close(release)

	c.Run(context.Background(), "slow", func(context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, c.Shutdown(ctx), ErrShutdownTimeout)
	assert.Equal(t, int64(1), c.InFlight())
}
