package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PaymentDisplay is the payment state shown on status views.
type PaymentDisplay string

const (
	PaymentDisplayReleased PaymentDisplay = "Released"
	PaymentDisplayOverdue  PaymentDisplay = "Overdue"
	PaymentDisplayPending  PaymentDisplay = "Pending"
)

// Reconciliation is the derived delivery and money view of one purchase
// order.
type Reconciliation struct {
	PurchaseOrderID int64                `json:"purchase_order_id"`
	PONumber        string               `json:"po_number"`
	Delivery        DeliveryVerification `json:"delivery"`
	InvoiceAmount   float64              `json:"invoice_amount"`
	ComputedAmount  float64              `json:"computed_amount"`
	// AuthoritativeAmount is the vendor's invoice amount only once delivery
	// is fully verified; otherwise the system-computed line total sum.
	AuthoritativeAmount float64        `json:"authoritative_amount"`
	Payment             PaymentDisplay `json:"payment"`
}

// Reconciler derives delivery verification and the authoritative monetary
// amount for purchase orders. Pure read side; it never mutates state.
type Reconciler struct {
	repo      RepositoryPort
	policy    DeliveryPolicy
	graceDays int
	now       func() time.Time
}

// NewReconciler constructs a Reconciler. graceDays is the overdue grace
// period counted from the invoice date.
func NewReconciler(repo RepositoryPort, policy DeliveryPolicy, graceDays int) *Reconciler {
	if !policy.IsValid() {
		policy = DeliveryAnyLine
	}
	if graceDays <= 0 {
		graceDays = 7
	}
	return &Reconciler{repo: repo, policy: policy, graceDays: graceDays, now: time.Now}
}

// SetClock overrides the reconciler clock, used by tests.
func (r *Reconciler) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// ReconcilePurchaseOrder walks the purchase order's assignment -> dispatch
// -> receipt graph and derives its reconciliation view.
func (r *Reconciler) ReconcilePurchaseOrder(ctx context.Context, poID int64) (Reconciliation, error) {
	po, err := r.repo.GetPurchaseOrder(ctx, poID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Reconciliation{}, fmt.Errorf("%w: purchase order %d", ErrNotFound, poID)
		}
		return Reconciliation{}, err
	}

	receipts, err := r.repo.ListReceiptsByPO(ctx, po.ID)
	if err != nil {
		return Reconciliation{}, err
	}
	statuses := make([]GRNStatus, 0, len(receipts))
	for _, grn := range receipts {
		statuses = append(statuses, grn.Status)
	}
	delivery := r.policy.Derive(statuses)

	var computed float64
	for _, item := range po.Items {
		computed += item.LineTotal
	}
	computed = round2(computed)

	invoice, err := r.repo.GetInvoiceByPO(ctx, po.ID)
	if err != nil {
		return Reconciliation{}, err
	}
	var invoiceAmount float64
	var invoiceDate time.Time
	if invoice != nil {
		invoiceAmount = invoice.Amount
		invoiceDate = invoice.InvoiceDate
	}

	payment, err := r.repo.GetPaymentByPO(ctx, po.ID)
	if err != nil {
		return Reconciliation{}, err
	}

	return Reconciliation{
		PurchaseOrderID:     po.ID,
		PONumber:            po.Number,
		Delivery:            delivery,
		InvoiceAmount:       invoiceAmount,
		ComputedAmount:      computed,
		AuthoritativeAmount: SelectAuthoritativeAmount(delivery, invoiceAmount, computed),
		Payment:             r.paymentDisplay(payment, invoiceDate),
	}, nil
}

// SelectAuthoritativeAmount decides which monetary amount to trust. The
// vendor-submitted invoice amount wins only when delivery is fully verified
// and the amount is positive; anything else falls back to the
// system-computed sum, so an unverified vendor claim is never accepted.
func SelectAuthoritativeAmount(delivery DeliveryVerification, invoiceAmount, computedAmount float64) float64 {
	if delivery == DeliveryYes && invoiceAmount > 0 {
		return invoiceAmount
	}
	return computedAmount
}

func (r *Reconciler) paymentDisplay(payment *Payment, invoiceDate time.Time) PaymentDisplay {
	return PaymentDisplayStatus(payment, invoiceDate, r.graceDays, r.now())
}

// PaymentDisplayStatus classifies a payment for display: Released once
// completed, Overdue when the invoice grace period has lapsed without
// release, Pending otherwise.
func PaymentDisplayStatus(payment *Payment, invoiceDate time.Time, graceDays int, now time.Time) PaymentDisplay {
	if payment != nil && payment.Status == PaymentStatusCompleted {
		return PaymentDisplayReleased
	}
	if !invoiceDate.IsZero() && now.After(invoiceDate.AddDate(0, 0, graceDays)) {
		return PaymentDisplayOverdue
	}
	return PaymentDisplayPending
}
