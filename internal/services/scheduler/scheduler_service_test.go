package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikemenltd/gasgen/internal/common"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(common.GetLogger()).(*Service)
}

func TestRegisterJobRejectsDuplicates(t *testing.T) {
	s := newTestService(t)

	err := s.RegisterJob("dispatch", "*/1 * * * *", func() error { return nil })
	require.NoError(t, err)

	err = s.RegisterJob("dispatch", "*/5 * * * *", func() error { return nil })
	assert.Error(t, err)
}

func TestRegisterJobRejectsInvalidSchedule(t *testing.T) {
	s := newTestService(t)

	err := s.RegisterJob("broken", "not a schedule", func() error { return nil })
	assert.Error(t, err)
}

func TestExecuteJobTracksStatus(t *testing.T) {
	s := newTestService(t)

	calls := 0
	require.NoError(t, s.RegisterJob("cleanup", "*/1 * * * *", func() error {
		calls++
		if calls == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	}))

	s.executeJob("cleanup")

	status, err := s.GetJobStatus("cleanup")
	require.NoError(t, err)
	assert.Equal(t, "transient failure", status.LastError)
	require.NotNil(t, status.LastRun)
	firstRun := *status.LastRun

	s.executeJob("cleanup")

	status, err = s.GetJobStatus("cleanup")
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
	require.NotNil(t, status.LastRun)
	assert.False(t, status.LastRun.Before(firstRun))
}

func TestExecuteJobRecoversFromPanic(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.RegisterJob("volatile", "*/1 * * * *", func() error {
		panic("boom")
	}))

	s.executeJob("volatile")

	status, err := s.GetJobStatus("volatile")
	require.NoError(t, err)
	assert.Contains(t, status.LastError, "panic")
}

func TestGetAllJobStatuses(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.RegisterJob("recover-stale", "*/5 * * * *", func() error { return nil }))
	require.NoError(t, s.RegisterJob("cleanup-old", "0 3 * * *", func() error { return nil }))

	statuses := s.GetAllJobStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "*/5 * * * *", statuses["recover-stale"].Schedule)
	assert.Equal(t, "0 3 * * *", statuses["cleanup-old"].Schedule)
}

func TestStartAndStop(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.RegisterJob("dispatch", "*/1 * * * *", func() error { return nil }))
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
