package ports

import "context"

// EventPublisher is the outbound operational-event publish port.
// The application uses this abstraction to keep broker/client concerns in
// adapters. The partition key keeps events for one subject ordered.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}

// EventQueue is a FIFO parking lot for publishes that failed at the broker.
// Backed by a cache list so a broker blip never loses ops events.
type EventQueue interface {
	Enqueue(ctx context.Context, item []byte) error
	Dequeue(ctx context.Context) ([]byte, bool, error)
	Size(ctx context.Context) (int64, error)
}
