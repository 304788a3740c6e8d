package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderWorkflowTracesEveryAssignment(t *testing.T) {
	repo := newMemoryRepo()
	seedAssignedOrder(repo)

	// Vendor 1's assignments have reached a purchase order with invoice,
	// payment and a verified receipt. Vendor 2's assignment has not.
	repo.pos[30] = PurchaseOrder{
		ID: 30, Number: "PO-2025-0001", OrderID: 1, VendorID: 1, TotalAmount: 41, Status: POStatusPartiallyPaid,
		Items: []PurchaseOrderItem{
			{ID: 31, PurchaseOrderID: 30, AssignmentID: 101, Quantity: 2, UnitPrice: 10.5, LineTotal: 21},
			{ID: 32, PurchaseOrderID: 30, AssignmentID: 103, Quantity: 1, UnitPrice: 20, LineTotal: 20},
		},
	}
	repo.invoices[40] = VendorInvoice{
		ID: 40, PurchaseOrderID: 30, Number: "INV-V1-77", Amount: 41, Status: InvoiceStatusApproved, InvoiceDate: testClock,
	}
	repo.payments[30] = Payment{
		ID: 45, PurchaseOrderID: 30, Number: "PAY-2025-0001", Amount: 41, Status: PaymentStatusPending,
	}
	repo.grns[60] = GoodsReceiptNote{
		ID: 60, DispatchID: 50, Number: "GRN-2025-0001", Status: GRNStatusVerifiedOK,
		Items: []GoodsReceiptItem{
			{ID: 61, GRNID: 60, AssignmentID: 101, AssignedQty: 2, ConfirmedQty: 2, ReceivedQty: 2, Status: GRNStatusVerifiedOK},
		},
	}

	agg := NewAggregator(repo)
	view, err := agg.OrderWorkflow(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "ORD-2025-0001", view.OrderNumber)
	require.Len(t, view.Items, 2)

	byAssignment := make(map[int64]WorkflowAssignmentView)
	for _, item := range view.Items {
		for _, a := range item.Assignments {
			byAssignment[a.AssignmentID] = a
		}
	}
	require.Len(t, byAssignment, 3)

	covered := byAssignment[101]
	require.Equal(t, "PO-2025-0001", covered.PONumber)
	require.Equal(t, POStatusPartiallyPaid, covered.POStatus)
	require.NotNil(t, covered.Invoice)
	require.Equal(t, "INV-V1-77", covered.Invoice.Number)
	require.NotNil(t, covered.Payment)
	require.Equal(t, "PAY-2025-0001", covered.Payment.Number)
	require.Len(t, covered.Receipts, 1)
	require.Equal(t, "GRN-2025-0001", covered.Receipts[0].GRNNumber)
	require.InDelta(t, 2.0, covered.Receipts[0].ReceivedQty, 0.001)

	// Same purchase order, no receipt line yet.
	sibling := byAssignment[103]
	require.Equal(t, "PO-2025-0001", sibling.PONumber)
	require.Empty(t, sibling.Receipts)

	// Not yet converted.
	unconverted := byAssignment[102]
	require.Empty(t, unconverted.PONumber)
	require.Nil(t, unconverted.Invoice)
	require.Nil(t, unconverted.Payment)
	require.Empty(t, unconverted.Receipts)
}

func TestOrderWorkflowNotFound(t *testing.T) {
	repo := newMemoryRepo()
	agg := NewAggregator(repo)

	_, err := agg.OrderWorkflow(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}
