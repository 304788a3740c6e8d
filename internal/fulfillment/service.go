package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vendora-erp/vendora-erp/internal/sequence"
	"github.com/vendora-erp/vendora-erp/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TransitionRecorder counts workflow step outcomes for observability.
type TransitionRecorder interface {
	ObserveTransition(step, outcome string)
}

// ServiceConfig carries the policy knobs of the workflow.
type ServiceConfig struct {
	Completion CompletionPolicy
}

// Service orchestrates the fulfillment workflow: order to purchase orders,
// invoice to payment, dispatch to goods receipt, and order completion. All
// persisted state is mutated exclusively through this service so the
// cross-entity invariants stay centralised.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	publisher Publisher
	metrics   TransitionRecorder
	logger    *slog.Logger
	cfg       ServiceConfig
	now       func() time.Time
}

// NewService constructs the fulfillment service.
func NewService(repo RepositoryPort, audit AuditPort, publisher Publisher, metrics TransitionRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if !cfg.Completion.IsValid() {
		cfg.Completion = CompletionAnyTerminal
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, publisher: publisher, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// SetClock overrides the service clock, used by tests.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ConvertOrderToPurchaseOrders partitions the order's vendor assignments by
// vendor and creates one issued purchase order per vendor, as one unit of
// work. Returns the created purchase order ids.
//
// The convertibility gate is re-checked inside the transaction: the initial
// read only produces friendly errors, while the in-transaction read is what
// actually guards against a concurrent conversion committing first.
func (s *Service) ConvertOrderToPurchaseOrders(ctx context.Context, orderID, actorID int64) (created []int64, err error) {
	defer func() { s.observe("order_convert", err) }()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	if !order.Status.Convertible() {
		return nil, fmt.Errorf("%w: order %s not assignable in status %s", ErrInvalidState, order.Number, order.Status)
	}

	unitPrice := make(map[int64]float64, len(order.Items))
	byVendor := make(map[int64][]Assignment)
	for _, item := range order.Items {
		unitPrice[item.ID] = item.UnitPrice
		for _, a := range item.Assignments {
			byVendor[a.VendorID] = append(byVendor[a.VendorID], a)
		}
	}
	if len(byVendor) == 0 {
		return nil, fmt.Errorf("%w: no items assigned to vendors yet", ErrPrecondition)
	}

	vendorIDs := make([]int64, 0, len(byVendor))
	for vendorID := range byVendor {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })

	var numbers []string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		numbers = numbers[:0]

		status, err := tx.GetOrderStatus(ctx, order.ID)
		if err != nil {
			return err
		}
		if !status.Convertible() {
			return fmt.Errorf("%w: order %s not assignable in status %s", ErrInvalidState, order.Number, status)
		}

		gen := sequence.NewGenerator(tx, s.now)
		for _, vendorID := range vendorIDs {
			assignments := byVendor[vendorID]

			// Total is the sum of the rounded line totals so header and
			// lines agree to the cent.
			var total float64
			for _, a := range assignments {
				total += round2(a.Quantity * unitPrice[a.OrderItemID])
			}
			total = round2(total)

			number, err := gen.Next(ctx, sequence.KindPurchaseOrder)
			if err != nil {
				return err
			}

			poID, err := tx.CreatePurchaseOrder(ctx, PurchaseOrder{
				Number:      number,
				OrderID:     order.ID,
				VendorID:    vendorID,
				TotalAmount: total,
				Status:      POStatusIssued,
			})
			if err != nil {
				return fmt.Errorf("create purchase order %s: %w", number, err)
			}

			for _, a := range assignments {
				price := unitPrice[a.OrderItemID]
				if err := tx.InsertPurchaseOrderItem(ctx, PurchaseOrderItem{
					PurchaseOrderID: poID,
					AssignmentID:    a.ID,
					Quantity:        a.Quantity,
					UnitPrice:       price,
					LineTotal:       round2(a.Quantity * price),
				}); err != nil {
					return fmt.Errorf("insert purchase order line: %w", err)
				}
				if err := tx.UpdateAssignmentStatus(ctx, a.ID, AssignmentStatusConfirmation); err != nil {
					return err
				}
			}
			created = append(created, poID)
			numbers = append(numbers, number)
		}
		return tx.UpdateOrderStatus(ctx, order.ID, OrderStatusProcessing)
	})
	if err != nil {
		s.logger.Error("order conversion failed",
			slog.Int64("order_id", orderID), slog.Int64("actor_id", actorID), slog.Any("error", err))
		return nil, err
	}

	s.recordAudit(ctx, actorID, "ORDER_CONVERT", "order", order.ID,
		map[string]any{"order_number": order.Number, "purchase_orders": numbers})
	s.publish(ctx, Event{
		Type:    EventPurchaseOrdersCreated,
		Ref:     deterministicRef("ORDER", order.ID),
		ActorID: actorID,
		Payload: map[string]any{"order_id": order.ID, "purchase_order_ids": created, "numbers": numbers},
	})
	return created, nil
}

// ApproveInvoice approves a pending vendor invoice, releases (or refreshes)
// the single payment of its purchase order and marks the purchase order
// partially paid, as one transaction.
func (s *Service) ApproveInvoice(ctx context.Context, invoiceID, actorID int64) (payment Payment, err error) {
	defer func() { s.observe("invoice_approve", err) }()

	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Payment{}, fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
		}
		return Payment{}, err
	}
	if inv.Status != InvoiceStatusPendingVerification {
		return Payment{}, fmt.Errorf("%w: invoice %s cannot be processed in status %s", ErrInvalidState, inv.Number, inv.Status)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.GetInvoiceStatus(ctx, inv.ID)
		if err != nil {
			return err
		}
		if status != InvoiceStatusPendingVerification {
			return fmt.Errorf("%w: invoice %s cannot be processed in status %s", ErrInvalidState, inv.Number, status)
		}

		if err := tx.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusApproved); err != nil {
			return err
		}

		existing, err := tx.GetPaymentByPO(ctx, inv.PurchaseOrderID)
		if err != nil {
			return err
		}
		number := ""
		if existing != nil {
			number = existing.Number
		} else {
			gen := sequence.NewGenerator(tx, s.now)
			number, err = gen.Next(ctx, sequence.KindPayment)
			if err != nil {
				return err
			}
		}

		payment = Payment{
			PurchaseOrderID: inv.PurchaseOrderID,
			Number:          number,
			Amount:          inv.Amount,
			Status:          PaymentStatusPending,
			ProcessedAt:     s.now(),
			ProcessedBy:     actorID,
		}
		id, err := tx.UpsertPayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("upsert payment %s: %w", number, err)
		}
		payment.ID = id

		return tx.UpdatePurchaseOrderStatus(ctx, inv.PurchaseOrderID, POStatusPartiallyPaid)
	})
	if err != nil {
		s.logger.Error("invoice approval failed",
			slog.Int64("invoice_id", invoiceID), slog.Int64("actor_id", actorID), slog.Any("error", err))
		return Payment{}, err
	}

	s.recordAudit(ctx, actorID, "INVOICE_APPROVE", "vendor_invoice", inv.ID,
		map[string]any{"invoice_number": inv.Number, "payment_number": payment.Number, "amount": payment.Amount})
	s.publish(ctx, Event{
		Type:    EventInvoiceApproved,
		Ref:     deterministicRef("INVOICE", inv.ID),
		ActorID: actorID,
		Payload: map[string]any{"invoice_id": inv.ID, "purchase_order_id": inv.PurchaseOrderID, "payment_number": payment.Number},
	})
	return payment, nil
}

// CreateGoodsReceipt converts a delivered dispatch into a goods receipt note
// with one line per dispatch line, seeded as verified-ok. Exactly one
// receipt may exist per dispatch; the existence check and the insert share
// one transaction so concurrent calls cannot both pass.
func (s *Service) CreateGoodsReceipt(ctx context.Context, dispatchID, actorID int64) (grn GoodsReceiptNote, err error) {
	defer func() { s.observe("receipt_create", err) }()

	dispatch, err := s.repo.GetDispatch(ctx, dispatchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GoodsReceiptNote{}, fmt.Errorf("%w: dispatch %d", ErrNotFound, dispatchID)
		}
		return GoodsReceiptNote{}, err
	}
	if dispatch.Status != DispatchStatusDelivered {
		return GoodsReceiptNote{}, fmt.Errorf("%w: dispatch %d not ready for receipt in status %s", ErrInvalidState, dispatchID, dispatch.Status)
	}
	if len(dispatch.Items) == 0 {
		return GoodsReceiptNote{}, fmt.Errorf("%w: dispatch %d has no lines", ErrPrecondition, dispatchID)
	}
	if existing, err := s.repo.GetGRNByDispatch(ctx, dispatch.ID); err != nil {
		return GoodsReceiptNote{}, err
	} else if existing != nil {
		return GoodsReceiptNote{}, fmt.Errorf("%w: dispatch %d already received as %s", ErrPrecondition, dispatch.ID, existing.Number)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.GetDispatchStatus(ctx, dispatch.ID)
		if err != nil {
			return err
		}
		if status != DispatchStatusDelivered {
			return fmt.Errorf("%w: dispatch %d not ready for receipt in status %s", ErrInvalidState, dispatch.ID, status)
		}

		exists, err := tx.ExistsGRNForDispatch(ctx, dispatch.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: goods receipt already exists for dispatch %d", ErrPrecondition, dispatch.ID)
		}

		gen := sequence.NewGenerator(tx, s.now)
		number, err := gen.Next(ctx, sequence.KindGoodsReceipt)
		if err != nil {
			return err
		}
		grn = GoodsReceiptNote{
			DispatchID: dispatch.ID,
			Number:     number,
			Status:     GRNStatusPendingVerification,
			ReceivedAt: s.now(),
		}
		id, err := tx.CreateGoodsReceipt(ctx, grn)
		if err != nil {
			return fmt.Errorf("create goods receipt %s: %w", grn.Number, err)
		}
		grn.ID = id

		for _, line := range dispatch.Items {
			// Receipt creation optimistically assumes the shipment matches;
			// verification adjustments happen in a later step.
			item := GoodsReceiptItem{
				GRNID:          id,
				DispatchItemID: line.ID,
				AssignmentID:   line.AssignmentID,
				AssignedQty:    line.Quantity,
				ConfirmedQty:   line.Quantity,
				ReceivedQty:    line.Quantity,
				Status:         GRNStatusVerifiedOK,
			}
			if err := tx.InsertReceiptItem(ctx, item); err != nil {
				return fmt.Errorf("insert receipt line: %w", err)
			}
			grn.Items = append(grn.Items, item)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("goods receipt creation failed",
			slog.Int64("dispatch_id", dispatchID), slog.Int64("actor_id", actorID), slog.Any("error", err))
		return GoodsReceiptNote{}, err
	}

	s.recordAudit(ctx, actorID, "GRN_CREATE", "goods_receipt_note", grn.ID,
		map[string]any{"grn_number": grn.Number, "dispatch_id": dispatch.ID})
	s.publish(ctx, Event{
		Type:    EventGoodsReceiptCreated,
		Ref:     deterministicRef("DISPATCH", dispatch.ID),
		ActorID: actorID,
		Payload: map[string]any{"grn_id": grn.ID, "grn_number": grn.Number, "dispatch_id": dispatch.ID},
	})
	return grn, nil
}

// CompleteOrder marks the order fulfilled once every assignment has a
// concluded goods receipt, per the configured completion policy. Under the
// strict policy a mismatch opens a dispute ticket instead.
func (s *Service) CompleteOrder(ctx context.Context, orderID, actorID int64) (err error) {
	defer func() { s.observe("order_complete", err) }()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return err
	}
	if order.Status == OrderStatusFulfilled {
		return fmt.Errorf("%w: order %s already fulfilled", ErrInvalidState, order.Number)
	}

	chain, err := s.repo.ListReceiptStatusByAssignment(ctx, order.ID)
	if err != nil {
		return err
	}

	var assignments []int64
	var disputedGRN int64
	disputed := false
	for _, item := range order.Items {
		for _, a := range item.Assignments {
			receipts := chain[a.ID]
			statuses := make([]GRNStatus, len(receipts))
			for i, ref := range receipts {
				statuses[i] = ref.Status
			}
			if !s.cfg.Completion.Satisfied(statuses) {
				if s.cfg.Completion.Disputed(statuses) {
					disputed = true
					if disputedGRN == 0 {
						for _, ref := range receipts {
							if ref.Status == GRNStatusVerifiedMismatch {
								disputedGRN = ref.GRNID
								break
							}
						}
					}
					continue
				}
				return fmt.Errorf("%w: not all items verified", ErrPrecondition)
			}
			assignments = append(assignments, a.ID)
		}
	}
	if disputed {
		return s.openDisputeTicket(ctx, order, disputedGRN, actorID)
	}
	if len(assignments) == 0 {
		return fmt.Errorf("%w: order has no vendor assignments", ErrPrecondition)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.GetOrderStatus(ctx, order.ID)
		if err != nil {
			return err
		}
		if status == OrderStatusFulfilled {
			return fmt.Errorf("%w: order %s already fulfilled", ErrInvalidState, order.Number)
		}

		for _, id := range assignments {
			if err := tx.UpdateAssignmentStatus(ctx, id, AssignmentStatusCompleted); err != nil {
				return err
			}
		}
		return tx.UpdateOrderStatus(ctx, order.ID, OrderStatusFulfilled)
	})
	if err != nil {
		s.logger.Error("order completion failed",
			slog.Int64("order_id", orderID), slog.Int64("actor_id", actorID), slog.Any("error", err))
		return err
	}

	s.recordAudit(ctx, actorID, "ORDER_FULFILL", "order", order.ID,
		map[string]any{"order_number": order.Number})
	s.publish(ctx, Event{
		Type:    EventOrderFulfilled,
		Ref:     deterministicRef("ORDER", order.ID),
		ActorID: actorID,
		Payload: map[string]any{"order_id": order.ID, "order_number": order.Number},
	})
	return nil
}

func (s *Service) openDisputeTicket(ctx context.Context, order Order, grnID, actorID int64) error {
	var ticket Ticket
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		gen := sequence.NewGenerator(tx, s.now)
		number, err := gen.Next(ctx, sequence.KindTicket)
		if err != nil {
			return err
		}
		ticket = Ticket{
			Number:  number,
			OrderID: order.ID,
			GRNID:   grnID,
			Reason:  "goods receipt mismatch blocks completion",
			Status:  TicketStatusOpen,
		}
		id, err := tx.CreateTicket(ctx, ticket)
		if err != nil {
			return err
		}
		ticket.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "TICKET_OPEN", "ticket", ticket.ID,
		map[string]any{"ticket_number": ticket.Number, "order_number": order.Number, "grn_id": grnID})
	s.publish(ctx, Event{
		Type:    EventTicketOpened,
		Ref:     deterministicRef("TICKET", ticket.ID),
		ActorID: actorID,
		Payload: map[string]any{"ticket_id": ticket.ID, "ticket_number": ticket.Number, "order_id": order.ID, "grn_id": grnID},
	})
	return fmt.Errorf("%w: receipt mismatch under review, ticket %s opened", ErrPrecondition, ticket.Number)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.publisher == nil {
		return
	}
	evt.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("event publish failed", slog.String("type", evt.Type), slog.Any("error", err))
	}
}

func (s *Service) observe(step string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveTransition(step, outcome)
}

func deterministicRef(entity string, id int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", entity, id))).String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
