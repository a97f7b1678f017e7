package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobManager_Run(t *testing.T) {
	t.Parallel()

	jm := NewJobManager()
	_, ok := jm.LastJob()
	require.False(t, ok)

	job := jm.Run("j1", "pause", func() error { return nil })
	require.Equal(t, JobStatusSuccess, job.Status)

	job = jm.Run("j2", "reset", func() error { return errors.New("boom") })
	require.Equal(t, JobStatusFailed, job.Status)
	require.Equal(t, "boom", job.Error)

	last, ok := jm.LastJob()
	require.True(t, ok)
	require.Equal(t, "j2", last.ID)
}

func TestJobManager_SkipsRepeatedID(t *testing.T) {
	t.Parallel()

	jm := NewJobManager()
	var runs int
	action := func() error { runs++; return nil }
	jm.Run("same", "pause", action)
	jm.Run("same", "pause", action)
	require.Equal(t, 1, runs)

	// Commands without an id always run.
	jm.Run("", "pause", action)
	jm.Run("", "pause", action)
	require.Equal(t, 3, runs)
}

func TestJobManager_BoundedHistory(t *testing.T) {
	t.Parallel()

	jm := NewJobManager()
	for i := 0; i < maxJobs+5; i++ {
		jm.Run(fmt.Sprintf("j%d", i), "reset", func() error { return nil })
	}
	_, ok := jm.GetJob("j0")
	require.False(t, ok)
	_, ok = jm.GetJob(fmt.Sprintf("j%d", maxJobs+4))
	require.True(t, ok)
	require.Len(t, jm.order, maxJobs)
}
