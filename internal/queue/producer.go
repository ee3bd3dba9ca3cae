package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Producer appends tasks to a Redis stream.
type Producer struct {
	client streamAdder
	stream string
	now    func() time.Time
}

func NewProducer(client streamAdder, stream string) *Producer {
	return &Producer{
		client: client,
		stream: stream,
		now:    time.Now,
	}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = p.now().UTC()
	}
	values, err := task.values()
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
