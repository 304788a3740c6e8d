package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testClock = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, policy CompletionPolicy) (*Service, *capturePublisher, *memoryAudit) {
	publisher := &capturePublisher{}
	audit := &memoryAudit{}
	svc := NewService(repo, audit, publisher, nil, nil, ServiceConfig{Completion: policy})
	svc.SetClock(fixedClock(testClock))
	return svc, publisher, audit
}

func seedAssignedOrder(repo *memoryRepo) Order {
	order := Order{
		ID:     1,
		Number: "ORD-2025-0001",
		Status: OrderStatusAssigned,
		Items: []OrderItem{
			{
				ID: 10, OrderID: 1, ProductName: "steel pipe", Quantity: 5, UnitPrice: 10.50,
				Assignments: []Assignment{
					{ID: 101, OrderItemID: 10, VendorID: 1, Quantity: 2, Status: AssignmentStatusPending},
					{ID: 102, OrderItemID: 10, VendorID: 2, Quantity: 3, Status: AssignmentStatusPending},
				},
			},
			{
				ID: 11, OrderID: 1, ProductName: "valve", Quantity: 1, UnitPrice: 20,
				Assignments: []Assignment{
					{ID: 103, OrderItemID: 11, VendorID: 1, Quantity: 1, Status: AssignmentStatusPending},
				},
			},
		},
	}
	repo.orders[order.ID] = order
	return order
}

func TestConvertOrderPartitionsByVendor(t *testing.T) {
	repo := newMemoryRepo()
	seedAssignedOrder(repo)
	svc, publisher, audit := newTestService(repo, CompletionAnyTerminal)

	ids, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Vendors are processed in ascending id order, so numbering is stable.
	first := repo.pos[ids[0]]
	second := repo.pos[ids[1]]
	require.Equal(t, "PO-2025-0001", first.Number)
	require.EqualValues(t, 1, first.VendorID)
	require.InDelta(t, 41.0, first.TotalAmount, 0.001) // 2*10.50 + 1*20
	require.Len(t, first.Items, 2)
	require.Equal(t, POStatusIssued, first.Status)

	require.Equal(t, "PO-2025-0002", second.Number)
	require.EqualValues(t, 2, second.VendorID)
	require.InDelta(t, 31.5, second.TotalAmount, 0.001) // 3*10.50
	require.Len(t, second.Items, 1)

	order := repo.orders[1]
	require.Equal(t, OrderStatusProcessing, order.Status)
	for _, item := range order.Items {
		for _, a := range item.Assignments {
			require.Equal(t, AssignmentStatusConfirmation, a.Status)
		}
	}

	require.Len(t, publisher.events, 1)
	require.Equal(t, EventPurchaseOrdersCreated, publisher.events[0].Type)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "ORDER_CONVERT", audit.logs[0].Action)
}

func TestConvertOrderTotalMatchesRoundedLines(t *testing.T) {
	repo := newMemoryRepo()
	// Quantities with sub-cent raw products: each line rounds to 15.57, and
	// the header must carry their sum, not the rounding of the raw sum.
	repo.orders[3] = Order{
		ID: 3, Number: "ORD-2025-0003", Status: OrderStatusAssigned,
		Items: []OrderItem{
			{
				ID: 30, OrderID: 3, ProductName: "copper wire", Quantity: 3.11, UnitPrice: 10.01,
				Assignments: []Assignment{
					{ID: 301, OrderItemID: 30, VendorID: 7, Quantity: 1.555, Status: AssignmentStatusPending},
					{ID: 302, OrderItemID: 30, VendorID: 7, Quantity: 1.555, Status: AssignmentStatusPending},
				},
			},
		},
	}
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	ids, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 3, 42)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	po := repo.pos[ids[0]]
	var sum float64
	for _, line := range po.Items {
		sum += line.LineTotal
	}
	require.InDelta(t, 31.14, po.TotalAmount, 0.0001)
	require.InDelta(t, sum, po.TotalAmount, 0.0001)
}

func TestConvertOrderTwiceDoesNotDuplicate(t *testing.T) {
	repo := newMemoryRepo()
	seedAssignedOrder(repo)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.NoError(t, err)

	// The first conversion moved the order to PROCESSING, so the second
	// attempt is rejected instead of creating duplicates.
	_, err = svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, repo.pos, 2)
}

func TestConvertOrderRechecksStatusInTransaction(t *testing.T) {
	repo := newMemoryRepo()
	seedAssignedOrder(repo)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Len(t, repo.pos, 2)

	// A second caller whose pre-transaction read raced the first conversion
	// still sees the order as assignable, but the in-transaction status read
	// must reject it before any duplicate purchase orders are written.
	stale := seedAssignedOrder(newMemoryRepo())
	svc2 := NewService(&staleReadRepo{memoryRepo: repo, order: &stale}, nil, nil, nil, nil, ServiceConfig{Completion: CompletionAnyTerminal})
	svc2.SetClock(fixedClock(testClock))

	_, err = svc2.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, repo.pos, 2)
}

func TestApproveInvoiceRechecksStatusInTransaction(t *testing.T) {
	repo := newMemoryRepo()
	_, inv := seedPOWithInvoice(repo)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ApproveInvoice(context.Background(), 40, 42)
	require.NoError(t, err)

	stale := inv
	svc2 := NewService(&staleReadRepo{memoryRepo: repo, invoice: &stale}, nil, nil, nil, nil, ServiceConfig{Completion: CompletionAnyTerminal})
	svc2.SetClock(fixedClock(testClock))

	_, err = svc2.ApproveInvoice(context.Background(), 40, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, repo.payments, 1)
}

func TestCompleteOrderRechecksStatusInTransaction(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	seedReceiptFor(repo, 60, []int64{101, 102, 103}, GRNStatusVerifiedOK)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	require.NoError(t, svc.CompleteOrder(context.Background(), 1, 42))

	stale := order
	svc2 := NewService(&staleReadRepo{memoryRepo: repo, order: &stale}, nil, nil, nil, nil, ServiceConfig{Completion: CompletionAnyTerminal})
	svc2.SetClock(fixedClock(testClock))

	err := svc2.CompleteOrder(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConvertOrderRejectsNonConvertibleStatus(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConvertOrderRequiresAssignments(t *testing.T) {
	repo := newMemoryRepo()
	repo.orders[2] = Order{
		ID: 2, Number: "ORD-2025-0002", Status: OrderStatusReceived,
		Items: []OrderItem{{ID: 20, OrderID: 2, ProductName: "bolt", Quantity: 10, UnitPrice: 1}},
	}
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 2, 42)
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestConvertOrderNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 999, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func seedPOWithInvoice(repo *memoryRepo) (PurchaseOrder, VendorInvoice) {
	po := PurchaseOrder{ID: 30, Number: "PO-2025-0001", OrderID: 1, VendorID: 1, TotalAmount: 41, Status: POStatusIssued}
	inv := VendorInvoice{
		ID: 40, PurchaseOrderID: 30, Number: "INV-V1-77", Amount: 41,
		Status: InvoiceStatusPendingVerification, InvoiceDate: testClock.AddDate(0, 0, -1),
	}
	repo.pos[po.ID] = po
	repo.invoices[inv.ID] = inv
	return po, inv
}

func TestApproveInvoiceReleasesPayment(t *testing.T) {
	repo := newMemoryRepo()
	seedPOWithInvoice(repo)
	svc, publisher, _ := newTestService(repo, CompletionAnyTerminal)

	payment, err := svc.ApproveInvoice(context.Background(), 40, 42)
	require.NoError(t, err)
	require.Equal(t, "PAY-2025-0001", payment.Number)
	require.Equal(t, PaymentStatusPending, payment.Status)
	require.InDelta(t, 41.0, payment.Amount, 0.001)
	require.EqualValues(t, 42, payment.ProcessedBy)

	require.Equal(t, InvoiceStatusApproved, repo.invoices[40].Status)
	require.Equal(t, POStatusPartiallyPaid, repo.pos[30].Status)
	require.Len(t, publisher.events, 1)
	require.Equal(t, EventInvoiceApproved, publisher.events[0].Type)
}

func TestApproveInvoiceKeepsPaymentNumberOnReapproval(t *testing.T) {
	repo := newMemoryRepo()
	seedPOWithInvoice(repo)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	first, err := svc.ApproveInvoice(context.Background(), 40, 42)
	require.NoError(t, err)

	// A corrected invoice against the same purchase order refreshes the
	// payment in place instead of minting a second one.
	repo.invoices[41] = VendorInvoice{
		ID: 41, PurchaseOrderID: 30, Number: "INV-V1-78", Amount: 45,
		Status: InvoiceStatusPendingVerification, InvoiceDate: testClock,
	}
	second, err := svc.ApproveInvoice(context.Background(), 41, 43)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Number, second.Number)
	require.InDelta(t, 45.0, second.Amount, 0.001)
	require.Len(t, repo.payments, 1)
	require.InDelta(t, 45.0, repo.payments[30].Amount, 0.001)
	require.EqualValues(t, 43, repo.payments[30].ProcessedBy)
}

func TestApproveInvoiceRejectsProcessedInvoice(t *testing.T) {
	repo := newMemoryRepo()
	_, inv := seedPOWithInvoice(repo)
	inv.Status = InvoiceStatusRejected
	repo.invoices[inv.ID] = inv
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.ApproveInvoice(context.Background(), 40, 42)
	require.ErrorIs(t, err, ErrInvalidState)
}

func seedDeliveredDispatch(repo *memoryRepo) Dispatch {
	d := Dispatch{
		ID: 50, VendorID: 1, Status: DispatchStatusDelivered,
		Items: []DispatchItem{
			{ID: 51, DispatchID: 50, AssignmentID: 101, Quantity: 2},
			{ID: 52, DispatchID: 50, AssignmentID: 103, Quantity: 1},
		},
	}
	repo.dispatches[d.ID] = d
	return d
}

func TestCreateGoodsReceiptSeedsLines(t *testing.T) {
	repo := newMemoryRepo()
	seedDeliveredDispatch(repo)
	svc, publisher, _ := newTestService(repo, CompletionAnyTerminal)

	grn, err := svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.NoError(t, err)
	require.Equal(t, "GRN-2025-0001", grn.Number)
	require.Equal(t, GRNStatusPendingVerification, grn.Status)
	require.Len(t, grn.Items, 2)
	for _, line := range grn.Items {
		require.Equal(t, GRNStatusVerifiedOK, line.Status)
		require.Equal(t, line.AssignedQty, line.ReceivedQty)
		require.Equal(t, line.AssignedQty, line.ConfirmedQty)
	}
	require.Len(t, publisher.events, 1)
	require.Equal(t, EventGoodsReceiptCreated, publisher.events[0].Type)
}

func TestCreateGoodsReceiptRequiresDeliveredDispatch(t *testing.T) {
	repo := newMemoryRepo()
	d := seedDeliveredDispatch(repo)
	d.Status = DispatchStatusInTransit
	repo.dispatches[d.ID] = d
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateGoodsReceiptRejectsDuplicate(t *testing.T) {
	repo := newMemoryRepo()
	seedDeliveredDispatch(repo)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	_, err := svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.NoError(t, err)

	// The rejection names the existing receipt so the caller can find it.
	_, err = svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.ErrorIs(t, err, ErrPrecondition)
	require.ErrorContains(t, err, "GRN-2025-0001")
	require.Len(t, repo.grns, 1)
}

func TestCreateGoodsReceiptRechecksStatusInTransaction(t *testing.T) {
	repo := newMemoryRepo()
	d := seedDeliveredDispatch(repo)
	stale := d
	d.Status = DispatchStatusInTransit
	repo.dispatches[d.ID] = d

	svc := NewService(&staleReadRepo{memoryRepo: repo, dispatch: &stale}, nil, nil, nil, nil, ServiceConfig{Completion: CompletionAnyTerminal})
	svc.SetClock(fixedClock(testClock))

	_, err := svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, repo.grns)
}

func seedReceiptFor(repo *memoryRepo, id int64, assignmentIDs []int64, status GRNStatus) {
	grn := GoodsReceiptNote{ID: id, DispatchID: id, Number: "GRN-X", Status: status}
	for i, aid := range assignmentIDs {
		grn.Items = append(grn.Items, GoodsReceiptItem{
			ID: id*10 + int64(i), GRNID: id, AssignmentID: aid,
		})
	}
	repo.grns[id] = grn
}

func TestCompleteOrderFulfills(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	seedReceiptFor(repo, 60, []int64{101, 102, 103}, GRNStatusVerifiedOK)
	svc, publisher, _ := newTestService(repo, CompletionAnyTerminal)

	require.NoError(t, svc.CompleteOrder(context.Background(), 1, 42))

	got := repo.orders[1]
	require.Equal(t, OrderStatusFulfilled, got.Status)
	for _, item := range got.Items {
		for _, a := range item.Assignments {
			require.Equal(t, AssignmentStatusCompleted, a.Status)
		}
	}
	require.Len(t, publisher.events, 1)
	require.Equal(t, EventOrderFulfilled, publisher.events[0].Type)
}

func TestCompleteOrderBlockedWithoutReceipts(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	// Receipts cover two of the three assignments.
	seedReceiptFor(repo, 60, []int64{101, 103}, GRNStatusVerifiedOK)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	err := svc.CompleteOrder(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, OrderStatusProcessing, repo.orders[1].Status)
}

func TestCompleteOrderAcceptsMismatchUnderDefaultPolicy(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	seedReceiptFor(repo, 60, []int64{101, 102}, GRNStatusVerifiedOK)
	seedReceiptFor(repo, 61, []int64{103}, GRNStatusVerifiedMismatch)
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	require.NoError(t, svc.CompleteOrder(context.Background(), 1, 42))
	require.Equal(t, OrderStatusFulfilled, repo.orders[1].Status)
}

func TestCompleteOrderOpensTicketUnderStrictPolicy(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusProcessing
	repo.orders[order.ID] = order
	seedReceiptFor(repo, 60, []int64{101, 102}, GRNStatusVerifiedOK)
	seedReceiptFor(repo, 61, []int64{103}, GRNStatusVerifiedMismatch)
	svc, publisher, _ := newTestService(repo, CompletionCleanOnly)

	err := svc.CompleteOrder(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, OrderStatusProcessing, repo.orders[1].Status)

	require.Len(t, repo.tickets, 1)
	for _, ticket := range repo.tickets {
		require.Equal(t, "TKT-000001", ticket.Number)
		require.Equal(t, TicketStatusOpen, ticket.Status)
		require.EqualValues(t, 1, ticket.OrderID)
		require.EqualValues(t, 61, ticket.GRNID)
	}
	require.Len(t, publisher.events, 1)
	require.Equal(t, EventTicketOpened, publisher.events[0].Type)
}

type captureRecorder struct {
	counts map[string]int
}

func (c *captureRecorder) ObserveTransition(step, outcome string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[step+"/"+outcome]++
}

func TestServiceCountsTransitionOutcomes(t *testing.T) {
	repo := newMemoryRepo()
	seedAssignedOrder(repo)
	seedDeliveredDispatch(repo)
	rec := &captureRecorder{}
	svc := NewService(repo, nil, nil, rec, nil, ServiceConfig{Completion: CompletionAnyTerminal})
	svc.SetClock(fixedClock(testClock))

	_, err := svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.NoError(t, err)
	_, err = svc.ConvertOrderToPurchaseOrders(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.CreateGoodsReceipt(context.Background(), 50, 42)
	require.NoError(t, err)

	require.Equal(t, 1, rec.counts["order_convert/ok"])
	require.Equal(t, 1, rec.counts["order_convert/error"])
	require.Equal(t, 1, rec.counts["receipt_create/ok"])
}

func TestCompleteOrderRejectsAlreadyFulfilled(t *testing.T) {
	repo := newMemoryRepo()
	order := seedAssignedOrder(repo)
	order.Status = OrderStatusFulfilled
	repo.orders[order.ID] = order
	svc, _, _ := newTestService(repo, CompletionAnyTerminal)

	err := svc.CompleteOrder(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrInvalidState)
}
