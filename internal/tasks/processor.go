package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"parchment/internal/queue"
)

type ObjectRemover interface {
	RemoveObject(ctx context.Context, bucket, object string) error
}

type ExpiredSessionSweeper interface {
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type Processor struct {
	objects  ObjectRemover
	sessions ExpiredSessionSweeper
	logger   zerolog.Logger
	now      func() time.Time
}

func NewProcessor(objects ObjectRemover, sessions ExpiredSessionSweeper, logger zerolog.Logger) *Processor {
	return &Processor{
		objects:  objects,
		sessions: sessions,
		logger:   logger.With().Str("component", "tasks").Logger(),
		now:      time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg)
	if err != nil {
		return err
	}

	switch task.Type {
	case queue.TaskImageDelete:
		return p.handleImageDelete(ctx, task)
	case queue.TaskSessionSweep:
		return p.handleSessionSweep(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleImageDelete(ctx context.Context, task queue.Task) error {
	if task.Bucket == "" || task.Object == "" {
		return fmt.Errorf("%w: image.delete needs bucket and object", queue.ErrMalformedTask)
	}
	if err := p.objects.RemoveObject(ctx, task.Bucket, task.Object); err != nil {
		return fmt.Errorf("remove %s/%s: %w", task.Bucket, task.Object, err)
	}
	p.logger.Info().Str("bucket", task.Bucket).Str("object", task.Object).Msg("image removed")
	return nil
}

func (p *Processor) handleSessionSweep(ctx context.Context) error {
	cleared, err := p.sessions.ClearExpiredRefreshTokens(ctx, p.now().UTC())
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	p.logger.Info().Int64("cleared", cleared).Msg("expired sessions swept")
	return nil
}
