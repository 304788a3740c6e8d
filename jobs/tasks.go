package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/vendora-erp/vendora-erp/internal/fulfillment"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeFulfillmentEvent carries committed workflow transitions to
	// collaborators (notification, cache invalidation, projections).
	TaskTypeFulfillmentEvent = "fulfillment:event"
)

// NewFulfillmentEventTask wraps a domain event in an Asynq task.
func NewFulfillmentEventTask(evt fulfillment.Event) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFulfillmentEvent, data), nil
}

// Notifier reacts to fulfillment events. Deliveries dedupe on the event ref
// via Redis so a retried task does not notify twice.
type Notifier struct {
	logger *slog.Logger
	redis  *redis.Client
	ttl    time.Duration
}

// NewNotifier constructs a Notifier. redis may be nil, disabling dedupe.
func NewNotifier(logger *slog.Logger, rdb *redis.Client) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger, redis: rdb, ttl: 24 * time.Hour}
}

// HandleFulfillmentEvent processes TaskTypeFulfillmentEvent tasks.
func (n *Notifier) HandleFulfillmentEvent(ctx context.Context, t *asynq.Task) error {
	var evt fulfillment.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.Type == "" || evt.Ref == "" {
		return asynq.SkipRetry
	}

	if n.redis != nil {
		key := dedupeKey(evt)
		set, err := n.redis.SetNX(ctx, key, 1, n.ttl).Result()
		if err != nil {
			return fmt.Errorf("jobs: dedupe %s: %w", key, err)
		}
		if !set {
			n.logger.Debug("event already delivered", slog.String("type", evt.Type), slog.String("ref", evt.Ref))
			return nil
		}
	}

	n.logger.Info("fulfillment event",
		slog.String("type", evt.Type),
		slog.String("ref", evt.Ref),
		slog.Int64("actor_id", evt.ActorID),
		slog.Any("payload", evt.Payload))
	return nil
}

func dedupeKey(evt fulfillment.Event) string {
	return fmt.Sprintf("fulfillment:event:%s:%s", evt.Type, evt.Ref)
}
