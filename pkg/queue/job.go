package queue

import "context"

// Job consumes messages of one type from the queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job is registered for.
	Type() string

	// Handle processes one dequeued payload. A returned error triggers the
	// queue's retry schedule.
	Handle(ctx context.Context, payload interface{}) error
}
