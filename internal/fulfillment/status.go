package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkflowView is the denormalized progress of one order: every line item
// with its vendor assignments, and for each assignment the purchase order,
// invoice, payment and goods receipts it has reached.
type WorkflowView struct {
	OrderID       int64              `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	ClientOrderID string             `json:"client_order_id"`
	Status        OrderStatus        `json:"status"`
	TotalValue    float64            `json:"total_value"`
	Items         []WorkflowItemView `json:"items"`
}

// WorkflowItemView is one order line with its assignment progress.
type WorkflowItemView struct {
	OrderItemID int64                    `json:"order_item_id"`
	ProductName string                   `json:"product_name"`
	Quantity    float64                  `json:"quantity"`
	UnitPrice   float64                  `json:"unit_price"`
	Assignments []WorkflowAssignmentView `json:"assignments"`
}

// WorkflowAssignmentView traces one vendor assignment through the workflow.
type WorkflowAssignmentView struct {
	AssignmentID int64             `json:"assignment_id"`
	VendorID     int64             `json:"vendor_id"`
	Quantity     float64           `json:"quantity"`
	Status       AssignmentStatus  `json:"status"`
	PONumber     string            `json:"po_number,omitempty"`
	POStatus     POStatus          `json:"po_status,omitempty"`
	Invoice      *WorkflowInvoice  `json:"invoice,omitempty"`
	Payment      *WorkflowPayment  `json:"payment,omitempty"`
	Receipts     []WorkflowReceipt `json:"receipts,omitempty"`
}

// WorkflowInvoice summarises the invoice on an assignment's purchase order.
type WorkflowInvoice struct {
	Number      string        `json:"number"`
	Amount      float64       `json:"amount"`
	Status      InvoiceStatus `json:"status"`
	InvoiceDate time.Time     `json:"invoice_date"`
}

// WorkflowPayment summarises the payment on an assignment's purchase order.
type WorkflowPayment struct {
	Number string        `json:"number"`
	Amount float64       `json:"amount"`
	Status PaymentStatus `json:"status"`
}

// WorkflowReceipt summarises one receipt line for an assignment.
type WorkflowReceipt struct {
	GRNNumber   string    `json:"grn_number"`
	GRNStatus   GRNStatus `json:"grn_status"`
	ReceivedQty float64   `json:"received_qty"`
}

// Aggregator assembles workflow status views.
type Aggregator struct {
	repo RepositoryPort
}

// NewAggregator constructs an Aggregator.
func NewAggregator(repo RepositoryPort) *Aggregator {
	return &Aggregator{repo: repo}
}

// OrderWorkflow loads the full progress view of one order. The per-purchase-
// order satellites (invoice, payment, receipts) load concurrently.
func (a *Aggregator) OrderWorkflow(ctx context.Context, orderID int64) (*WorkflowView, error) {
	order, err := a.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	pos, err := a.repo.ListPurchaseOrdersByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	type satellite struct {
		po       PurchaseOrder
		invoice  *VendorInvoice
		payment  *Payment
		receipts []GoodsReceiptNote
	}
	satellites := make([]satellite, len(pos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var mu sync.Mutex
	for i := range pos {
		g.Go(func() error {
			po := pos[i]
			invoice, err := a.repo.GetInvoiceByPO(gctx, po.ID)
			if err != nil {
				return err
			}
			payment, err := a.repo.GetPaymentByPO(gctx, po.ID)
			if err != nil {
				return err
			}
			receipts, err := a.repo.ListReceiptsByPO(gctx, po.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			satellites[i] = satellite{po: po, invoice: invoice, payment: payment, receipts: receipts}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Index workflow facts by assignment id.
	poByAssignment := make(map[int64]*satellite)
	receiptsByAssignment := make(map[int64][]WorkflowReceipt)
	for i := range satellites {
		sat := &satellites[i]
		for _, line := range sat.po.Items {
			poByAssignment[line.AssignmentID] = sat
		}
		for _, grn := range sat.receipts {
			for _, line := range grn.Items {
				receiptsByAssignment[line.AssignmentID] = append(receiptsByAssignment[line.AssignmentID], WorkflowReceipt{
					GRNNumber:   grn.Number,
					GRNStatus:   grn.Status,
					ReceivedQty: line.ReceivedQty,
				})
			}
		}
	}

	view := &WorkflowView{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		ClientOrderID: order.ClientOrderID,
		Status:        order.Status,
		TotalValue:    order.TotalValue,
	}
	for _, item := range order.Items {
		itemView := WorkflowItemView{
			OrderItemID: item.ID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
		for _, assignment := range item.Assignments {
			assignmentView := WorkflowAssignmentView{
				AssignmentID: assignment.ID,
				VendorID:     assignment.VendorID,
				Quantity:     assignment.Quantity,
				Status:       assignment.Status,
				Receipts:     receiptsByAssignment[assignment.ID],
			}
			if sat := poByAssignment[assignment.ID]; sat != nil {
				assignmentView.PONumber = sat.po.Number
				assignmentView.POStatus = sat.po.Status
				if sat.invoice != nil {
					assignmentView.Invoice = &WorkflowInvoice{
						Number:      sat.invoice.Number,
						Amount:      sat.invoice.Amount,
						Status:      sat.invoice.Status,
						InvoiceDate: sat.invoice.InvoiceDate,
					}
				}
				if sat.payment != nil {
					assignmentView.Payment = &WorkflowPayment{
						Number: sat.payment.Number,
						Amount: sat.payment.Amount,
						Status: sat.payment.Status,
					}
				}
			}
			itemView.Assignments = append(itemView.Assignments, assignmentView)
		}
		view.Items = append(view.Items, itemView)
	}
	return view, nil
}
