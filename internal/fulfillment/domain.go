package fulfillment

import "time"

// Customer order lifecycle statuses. Status only ever advances; FULFILLED is
// terminal.
type OrderStatus string

const (
	OrderStatusReceived   OrderStatus = "RECEIVED"
	OrderStatusAssigned   OrderStatus = "ASSIGNED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusFulfilled  OrderStatus = "FULFILLED"
)

// IsValid reports whether the status is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusAssigned, OrderStatusProcessing, OrderStatusFulfilled:
		return true
	}
	return false
}

// Convertible reports whether purchase orders may still be generated from
// the order.
func (s OrderStatus) Convertible() bool {
	return s == OrderStatusReceived || s == OrderStatusAssigned
}

// Vendor assignment statuses.
type AssignmentStatus string

const (
	AssignmentStatusPending      AssignmentStatus = "PENDING"
	AssignmentStatusConfirmation AssignmentStatus = "PENDING_CONFIRMATION"
	AssignmentStatusCompleted    AssignmentStatus = "COMPLETED"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft         POStatus = "DRAFT"
	POStatusIssued        POStatus = "ISSUED"
	POStatusPartiallyPaid POStatus = "PARTIALLY_PAID"
	POStatusPaid          POStatus = "PAID"
	POStatusCancelled     POStatus = "CANCELLED"
)

// Vendor invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusPendingVerification InvoiceStatus = "PENDING_VERIFICATION"
	InvoiceStatusApproved            InvoiceStatus = "APPROVED"
	InvoiceStatusRejected            InvoiceStatus = "REJECTED"
)

// Payment statuses.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
)

// Dispatch lifecycle statuses.
type DispatchStatus string

const (
	DispatchStatusPending   DispatchStatus = "PENDING"
	DispatchStatusInTransit DispatchStatus = "IN_TRANSIT"
	DispatchStatusDelivered DispatchStatus = "DELIVERED"
)

// Goods receipt verification statuses, shared by notes and their lines.
type GRNStatus string

const (
	GRNStatusPendingVerification GRNStatus = "PENDING_VERIFICATION"
	GRNStatusVerifiedOK          GRNStatus = "VERIFIED_OK"
	GRNStatusPartiallyVerified   GRNStatus = "PARTIALLY_VERIFIED"
	GRNStatusVerifiedMismatch    GRNStatus = "VERIFIED_MISMATCH"
)

// Terminal reports whether verification has concluded, regardless of
// outcome.
func (s GRNStatus) Terminal() bool {
	return s == GRNStatusVerifiedOK || s == GRNStatusVerifiedMismatch
}

// Dispute ticket statuses.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusResolved TicketStatus = "RESOLVED"
)

// Order is a customer order moving through fulfillment.
type Order struct {
	ID            int64
	Number        string
	ClientOrderID string
	Status        OrderStatus
	TotalValue    float64
	Items         []OrderItem
	CreatedAt     time.Time
}

// OrderItem is one product line of an order. An item may be split across
// vendors, so it owns zero or more assignments.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductName string
	Quantity    float64
	UnitPrice   float64
	Assignments []Assignment
	CreatedAt   time.Time
}

// Assignment links an order item to the vendor fulfilling (part of) it.
type Assignment struct {
	ID          int64
	OrderItemID int64
	VendorID    int64
	Quantity    float64
	Status      AssignmentStatus
	CreatedAt   time.Time
}

// PurchaseOrder is a vendor-scoped commitment generated from an order's
// assignments.
type PurchaseOrder struct {
	ID          int64
	Number      string
	OrderID     int64
	VendorID    int64
	TotalAmount float64
	Status      POStatus
	Items       []PurchaseOrderItem
	CreatedAt   time.Time
}

// PurchaseOrderItem carries one assignment into a purchase order.
type PurchaseOrderItem struct {
	ID              int64
	PurchaseOrderID int64
	AssignmentID    int64
	Quantity        float64
	UnitPrice       float64
	LineTotal       float64
}

// VendorInvoice is the vendor's bill against a purchase order.
type VendorInvoice struct {
	ID               int64
	PurchaseOrderID  int64
	Number           string
	InvoiceDate      time.Time
	Amount           float64
	Status           InvoiceStatus
	SubmittedFileRef string
	VerifiedFileRef  string
	CreatedAt        time.Time
}

// Payment is the release record for a purchase order. At most one exists per
// purchase order; re-approval updates it in place.
type Payment struct {
	ID              int64
	PurchaseOrderID int64
	Number          string
	Amount          float64
	Status          PaymentStatus
	TransactionRef  string
	ProcessedAt     time.Time
	ProcessedBy     int64
	CreatedAt       time.Time
}

// Dispatch groups shipped lines for one shipment.
type Dispatch struct {
	ID        int64
	VendorID  int64
	Status    DispatchStatus
	Items     []DispatchItem
	CreatedAt time.Time
}

// DispatchItem ships a quantity against one assignment.
type DispatchItem struct {
	ID           int64
	DispatchID   int64
	AssignmentID int64
	Quantity     float64
}

// GoodsReceiptNote records physical receipt of a dispatch. Exactly one
// exists per dispatch.
type GoodsReceiptNote struct {
	ID         int64
	DispatchID int64
	Number     string
	Status     GRNStatus
	ReceivedAt time.Time
	VerifiedAt time.Time
	Items      []GoodsReceiptItem
	CreatedAt  time.Time
}

// GoodsReceiptItem verifies one dispatch line.
type GoodsReceiptItem struct {
	ID             int64
	GRNID          int64
	DispatchItemID int64
	AssignmentID   int64
	AssignedQty    float64
	ConfirmedQty   float64
	ReceivedQty    float64
	Status         GRNStatus
}

// Ticket tracks a goods-receipt discrepancy raised under the strict
// completion policy.
type Ticket struct {
	ID        int64
	Number    string
	OrderID   int64
	GRNID     int64
	Reason    string
	Status    TicketStatus
	CreatedAt time.Time
}
