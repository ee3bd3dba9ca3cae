package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"parchment/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type Scheduler struct {
	cron         *cron.Cron
	queue        Enqueuer
	sessionSweep string
	log          zerolog.Logger
}

func NewScheduler(q Enqueuer, sessionSweep string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds()),
		queue:        q,
		sessionSweep: sessionSweep,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.sessionSweep == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.sessionSweep, s.enqueueSessionSweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish, up to five seconds.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskSessionSweep}); err != nil {
		s.log.Error().Err(err).Msg("enqueue session sweep failed")
		return
	}
	s.log.Debug().Msg("session sweep enqueued")
}
