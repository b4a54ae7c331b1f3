package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	j := New(KindRepair)
	assert.Equal(t, StatusPending, j.Status)
	assert.False(t, j.Status.Terminal())

	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.Status)

	require.NoError(t, j.Complete())
	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	require.NotNil(t, j.CompletedAt)
	assert.True(t, j.Status.Terminal())
}

func TestJobFailure(t *testing.T) {
	j := New(KindDNCExport)
	require.NoError(t, j.Start())
	require.NoError(t, j.Fail("active routing not found"))

	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "active routing not found", j.ErrorMessage)
	require.NotNil(t, j.CompletedAt)
}

func TestJobInvalidTransitions(t *testing.T) {
	j := New(KindRepair)
	assert.Error(t, j.Complete(), "pending job cannot complete")

	require.NoError(t, j.Start())
	assert.Error(t, j.Start(), "running job cannot start again")

	require.NoError(t, j.Complete())
	assert.Error(t, j.Fail("late"), "terminal job cannot fail")
}
