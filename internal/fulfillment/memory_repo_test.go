package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vendora-erp/vendora-erp/internal/sequence"
	"github.com/vendora-erp/vendora-erp/internal/shared"
)

// memoryRepo backs tests without PostgreSQL. Entities keep their child lines
// embedded, mirroring what the eager-loading queries return.
type memoryRepo struct {
	orders     map[int64]Order
	pos        map[int64]PurchaseOrder
	invoices   map[int64]VendorInvoice
	payments   map[int64]Payment // keyed by purchase order id
	dispatches map[int64]Dispatch
	grns       map[int64]GoodsReceiptNote
	tickets    map[int64]Ticket
	counters   map[string]int64
	nextID     int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:     make(map[int64]Order),
		pos:        make(map[int64]PurchaseOrder),
		invoices:   make(map[int64]VendorInvoice),
		payments:   make(map[int64]Payment),
		dispatches: make(map[int64]Dispatch),
		grns:       make(map[int64]GoodsReceiptNote),
		tickets:    make(map[int64]Ticket),
		counters:   make(map[string]int64),
		nextID:     100,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	out := order
	out.Items = make([]OrderItem, len(order.Items))
	for i, item := range order.Items {
		out.Items[i] = item
		out.Items[i].Assignments = append([]Assignment(nil), item.Assignments...)
	}
	return out, nil
}

func (r *memoryRepo) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.Items = append([]PurchaseOrderItem(nil), po.Items...)
	return po, nil
}

func (r *memoryRepo) ListPurchaseOrdersByOrder(ctx context.Context, orderID int64) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range r.pos {
		if po.OrderID == orderID {
			po.Items = append([]PurchaseOrderItem(nil), po.Items...)
			out = append(out, po)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (VendorInvoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return VendorInvoice{}, ErrNotFound
	}
	return inv, nil
}

func (r *memoryRepo) GetInvoiceByPO(ctx context.Context, poID int64) (*VendorInvoice, error) {
	var found *VendorInvoice
	for _, inv := range r.invoices {
		if inv.PurchaseOrderID == poID && (found == nil || inv.ID > found.ID) {
			cp := inv
			found = &cp
		}
	}
	return found, nil
}

func (r *memoryRepo) GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error) {
	p, ok := r.payments[poID]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (r *memoryRepo) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	d, ok := r.dispatches[id]
	if !ok {
		return Dispatch{}, ErrNotFound
	}
	d.Items = append([]DispatchItem(nil), d.Items...)
	return d, nil
}

func (r *memoryRepo) GetGRNByDispatch(ctx context.Context, dispatchID int64) (*GoodsReceiptNote, error) {
	for _, grn := range r.grns {
		if grn.DispatchID == dispatchID {
			cp := grn
			cp.Items = append([]GoodsReceiptItem(nil), grn.Items...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) ListReceiptsByPO(ctx context.Context, poID int64) ([]GoodsReceiptNote, error) {
	po, ok := r.pos[poID]
	if !ok {
		return nil, nil
	}
	assignments := make(map[int64]bool)
	for _, line := range po.Items {
		assignments[line.AssignmentID] = true
	}
	var out []GoodsReceiptNote
	for _, grn := range r.grns {
		for _, line := range grn.Items {
			if assignments[line.AssignmentID] {
				cp := grn
				cp.Items = append([]GoodsReceiptItem(nil), grn.Items...)
				out = append(out, cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListReceiptStatusByAssignment(ctx context.Context, orderID int64) (map[int64][]AssignmentReceipt, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return map[int64][]AssignmentReceipt{}, nil
	}
	result := make(map[int64][]AssignmentReceipt)
	for _, item := range order.Items {
		for _, a := range item.Assignments {
			result[a.ID] = nil
			for _, grn := range r.grns {
				for _, line := range grn.Items {
					if line.AssignmentID == a.ID {
						result[a.ID] = append(result[a.ID], AssignmentReceipt{GRNID: grn.ID, Status: grn.Status})
					}
				}
			}
		}
	}
	return result, nil
}

func (tx *memoryTx) allocID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTx) GetOrderStatus(ctx context.Context, id int64) (OrderStatus, error) {
	order, ok := tx.repo.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	return order.Status, nil
}

func (tx *memoryTx) GetInvoiceStatus(ctx context.Context, id int64) (InvoiceStatus, error) {
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return "", ErrNotFound
	}
	return inv.Status, nil
}

func (tx *memoryTx) GetDispatchStatus(ctx context.Context, id int64) (DispatchStatus, error) {
	d, ok := tx.repo.dispatches[id]
	if !ok {
		return "", ErrNotFound
	}
	return d.Status, nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, kind sequence.Kind, year int) (int64, error) {
	key := fmt.Sprintf("%s/%d", kind, year)
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryTx) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	po.ID = tx.allocID()
	tx.repo.pos[po.ID] = po
	return po.ID, nil
}

func (tx *memoryTx) InsertPurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) error {
	po, ok := tx.repo.pos[item.PurchaseOrderID]
	if !ok {
		return ErrNotFound
	}
	item.ID = tx.allocID()
	po.Items = append(po.Items, item)
	tx.repo.pos[po.ID] = po
	return nil
}

func (tx *memoryTx) UpdateAssignmentStatus(ctx context.Context, id int64, status AssignmentStatus) error {
	for orderID, order := range tx.repo.orders {
		for i := range order.Items {
			for j := range order.Items[i].Assignments {
				if order.Items[i].Assignments[j].ID == id {
					order.Items[i].Assignments[j].Status = status
					tx.repo.orders[orderID] = order
					return nil
				}
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	order, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	tx.repo.orders[id] = order
	return nil
}

func (tx *memoryTx) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	tx.repo.invoices[id] = inv
	return nil
}

func (tx *memoryTx) GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error) {
	return tx.repo.GetPaymentByPO(ctx, poID)
}

func (tx *memoryTx) UpsertPayment(ctx context.Context, p Payment) (int64, error) {
	if existing, ok := tx.repo.payments[p.PurchaseOrderID]; ok {
		existing.Amount = p.Amount
		existing.Status = p.Status
		existing.ProcessedAt = p.ProcessedAt
		existing.ProcessedBy = p.ProcessedBy
		tx.repo.payments[p.PurchaseOrderID] = existing
		return existing.ID, nil
	}
	p.ID = tx.allocID()
	tx.repo.payments[p.PurchaseOrderID] = p
	return p.ID, nil
}

func (tx *memoryTx) UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := tx.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryTx) ExistsGRNForDispatch(ctx context.Context, dispatchID int64) (bool, error) {
	for _, grn := range tx.repo.grns {
		if grn.DispatchID == dispatchID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) CreateGoodsReceipt(ctx context.Context, grn GoodsReceiptNote) (int64, error) {
	grn.ID = tx.allocID()
	tx.repo.grns[grn.ID] = grn
	return grn.ID, nil
}

func (tx *memoryTx) InsertReceiptItem(ctx context.Context, item GoodsReceiptItem) error {
	grn, ok := tx.repo.grns[item.GRNID]
	if !ok {
		return ErrNotFound
	}
	item.ID = tx.allocID()
	grn.Items = append(grn.Items, item)
	tx.repo.grns[grn.ID] = grn
	return nil
}

func (tx *memoryTx) CreateTicket(ctx context.Context, t Ticket) (int64, error) {
	t.ID = tx.allocID()
	tx.repo.tickets[t.ID] = t
	return t.ID, nil
}

// staleReadRepo serves plain reads from a snapshot captured before a
// concurrent transition committed, while transactional reads still see the
// live state. It reproduces what losing a race against another request
// looks like to the service.
type staleReadRepo struct {
	*memoryRepo
	order    *Order
	invoice  *VendorInvoice
	dispatch *Dispatch
}

func (r *staleReadRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	if r.order != nil && r.order.ID == id {
		return *r.order, nil
	}
	return r.memoryRepo.GetOrder(ctx, id)
}

func (r *staleReadRepo) GetInvoice(ctx context.Context, id int64) (VendorInvoice, error) {
	if r.invoice != nil && r.invoice.ID == id {
		return *r.invoice, nil
	}
	return r.memoryRepo.GetInvoice(ctx, id)
}

func (r *staleReadRepo) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	if r.dispatch != nil && r.dispatch.ID == id {
		return *r.dispatch, nil
	}
	return r.memoryRepo.GetDispatch(ctx, id)
}

// capturePublisher records published events in order.
type capturePublisher struct {
	events []Event
}

func (p *capturePublisher) Publish(ctx context.Context, evt Event) error {
	p.events = append(p.events, evt)
	return nil
}

// memoryAudit records audit entries in order.
type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
