package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parchment/internal/queue"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (r *recordingQueue) Enqueue(_ context.Context, task queue.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&recordingQueue{}, "not a cron spec", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestSchedulerDisabledWithoutSpec(t *testing.T) {
	s := NewScheduler(&recordingQueue{}, "", zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
}

func TestSchedulerRegistersSessionSweep(t *testing.T) {
	s := NewScheduler(&recordingQueue{}, "0 0 * * * *", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 1)
}

func TestEnqueueSessionSweep(t *testing.T) {
	q := &recordingQueue{}
	s := NewScheduler(q, "0 0 * * * *", zerolog.Nop())

	s.enqueueSessionSweep()

	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskSessionSweep, q.tasks[0].Type)
}
