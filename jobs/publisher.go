package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/vendora-erp/vendora-erp/internal/fulfillment"
)

// Publisher delivers fulfillment events to the job queue. It satisfies
// fulfillment.Publisher.
type Publisher struct {
	client *Client
}

// NewPublisher constructs a queue-backed event publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues the event for the worker.
func (p *Publisher) Publish(ctx context.Context, evt fulfillment.Event) error {
	task, err := NewFulfillmentEventTask(evt)
	if err != nil {
		return err
	}
	_, err = p.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}
