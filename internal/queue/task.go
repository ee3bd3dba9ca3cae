package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TaskImageDelete  = "image.delete"
	TaskSessionSweep = "session.sweep"
)

var ErrMalformedTask = errors.New("malformed task")

// Task is the unit of work carried on the stream.
type Task struct {
	Type       string    `json:"type"`
	Bucket     string    `json:"bucket,omitempty"`
	Object     string    `json:"object,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func (t Task) values() (map[string]any, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":    t.Type,
		"payload": string(body),
	}, nil
}

// DecodeTask reads a task back from a stream entry.
func DecodeTask(msg redis.XMessage) (Task, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok || raw == "" {
		return Task{}, fmt.Errorf("%w: entry %s has no payload", ErrMalformedTask, msg.ID)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if task.Type == "" {
		return Task{}, fmt.Errorf("%w: entry %s has no type", ErrMalformedTask, msg.ID)
	}
	return task, nil
}
