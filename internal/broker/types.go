package broker

import (
	"context"
)

// Disposition is the handler's verdict on one delivery. The consumer
// owns the mechanics: acknowledging, republishing with a bumped attempt
// counter, or moving the message to the dead-letter queue.
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Delivery is one consumed message, decoupled from the backend's wire
// types. Attempts counts deliveries including this one.
type Delivery struct {
	Queue         string
	Body          []byte
	CorrelationID string
	Attempts      int
	Headers       map[string]interface{}
}

type HandlerFunc func(ctx context.Context, d Delivery) Disposition

type Producer interface {
	Publish(ctx context.Context, queue string, body []byte, correlationID string) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, queue string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}
