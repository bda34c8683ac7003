package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWithoutSchedules(t *testing.T) {
	s := NewPipelineScheduler(nil, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.NextRuns())
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewPipelineScheduler(nil, []Schedule{
		{PipelineID: 1, Spec: "not a cron spec"},
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")
	assert.False(t, s.IsRunning())
}

func TestStartAndStop(t *testing.T) {
	s := NewPipelineScheduler(nil, []Schedule{
		{PipelineID: 1, Spec: "0 3 * * *"},
		{PipelineID: 2, Spec: "*/15 * * * *"},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Len(t, s.NextRuns(), 2)

	// Second Start is a no-op.
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.NextRuns())
}
