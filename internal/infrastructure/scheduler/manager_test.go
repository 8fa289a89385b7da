package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/shared/logger"
)

type countingFlusher struct {
	calls atomic.Int64
}

func (f *countingFlusher) FlushAllUsers(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

func TestFlushJobRunsImmediatelyAtStart(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	flusher := &countingFlusher{}
	require.NoError(t, m.RegisterAnalyticsFlushJob(flusher, time.Hour))

	m.Start()
	defer func() { require.NoError(t, m.Stop()) }()

	// The hour-long interval cannot have elapsed, so any invocation is the
	// start-up drain.
	assert.Eventually(t, func() bool {
		return flusher.calls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFlushJobRepeatsOnInterval(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	flusher := &countingFlusher{}
	require.NoError(t, m.RegisterAnalyticsFlushJob(flusher, 50*time.Millisecond))

	m.Start()
	defer func() { require.NoError(t, m.Stop()) }()

	assert.Eventually(t, func() bool {
		return flusher.calls.Load() >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStartIsIdempotent(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	assert.False(t, m.IsStarted())
	m.Start()
	m.Start()
	assert.True(t, m.IsStarted())

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	require.NoError(t, m.Stop())
}
