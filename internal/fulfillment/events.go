package fulfillment

import (
	"context"
	"time"
)

// Event types published after a workflow transition commits. Collaborators
// (notification fan-out, cache invalidation, UI projections) react to these;
// the core itself makes no outbound calls.
const (
	EventPurchaseOrdersCreated = "fulfillment:purchase_orders_created"
	EventInvoiceApproved       = "fulfillment:invoice_approved"
	EventGoodsReceiptCreated   = "fulfillment:goods_receipt_created"
	EventOrderFulfilled        = "fulfillment:order_fulfilled"
	EventTicketOpened          = "fulfillment:ticket_opened"
)

// Event is the envelope emitted to collaborators.
type Event struct {
	Type       string         `json:"type"`
	Ref        string         `json:"ref"`
	ActorID    int64          `json:"actor_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher delivers events after the owning transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}
