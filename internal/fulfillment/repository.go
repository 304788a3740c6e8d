package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora-erp/vendora-erp/internal/platform/db"
	"github.com/vendora-erp/vendora-erp/internal/sequence"
)

// RepositoryPort describes repository operations used by Service and the
// read-side components.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrdersByOrder(ctx context.Context, orderID int64) ([]PurchaseOrder, error)
	GetInvoice(ctx context.Context, id int64) (VendorInvoice, error)
	GetInvoiceByPO(ctx context.Context, poID int64) (*VendorInvoice, error)
	GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error)
	GetDispatch(ctx context.Context, id int64) (Dispatch, error)
	GetGRNByDispatch(ctx context.Context, dispatchID int64) (*GoodsReceiptNote, error)
	ListReceiptsByPO(ctx context.Context, poID int64) ([]GoodsReceiptNote, error)
	ListReceiptStatusByAssignment(ctx context.Context, orderID int64) (map[int64][]AssignmentReceipt, error)
}

// AssignmentReceipt pairs a goods receipt with its status for one assignment,
// so completion checks can point at the offending receipt.
type AssignmentReceipt struct {
	GRNID  int64
	Status GRNStatus
}

// TxRepository exposes transactional write operations. Every orchestration
// step runs its reads-then-writes through one TxRepository so partial state
// never commits.
type TxRepository interface {
	sequence.Counter
	GetOrderStatus(ctx context.Context, id int64) (OrderStatus, error)
	GetInvoiceStatus(ctx context.Context, id int64) (InvoiceStatus, error)
	GetDispatchStatus(ctx context.Context, id int64) (DispatchStatus, error)
	CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) error
	UpdateAssignmentStatus(ctx context.Context, id int64, status AssignmentStatus) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
	GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error)
	UpsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error
	ExistsGRNForDispatch(ctx context.Context, dispatchID int64) (bool, error)
	CreateGoodsReceipt(ctx context.Context, grn GoodsReceiptNote) (int64, error)
	InsertReceiptItem(ctx context.Context, item GoodsReceiptItem) error
	CreateTicket(ctx context.Context, t Ticket) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a serializable transaction with bounded conflict
// retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetOrder returns the order with its items and vendor assignments.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	const headerSQL = `
		SELECT id, number, client_order_id, status, total_value, created_at
		FROM orders WHERE id = $1`

	var (
		order Order
		total pgtype.Numeric
	)
	if err := r.pool.QueryRow(ctx, headerSQL, id).Scan(
		&order.ID, &order.Number, &order.ClientOrderID, &order.Status, &total, &order.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	order.TotalValue = numericToFloat(total)

	const itemSQL = `
		SELECT id, order_id, product_name, quantity, unit_price, created_at
		FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, itemSQL, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var (
			item     OrderItem
			qty, prc pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductName, &qty, &prc, &item.CreatedAt); err != nil {
			return Order{}, err
		}
		item.Quantity = numericToFloat(qty)
		item.UnitPrice = numericToFloat(prc)
		index[item.ID] = len(order.Items)
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	const assignSQL = `
		SELECT a.id, a.order_item_id, a.vendor_id, a.quantity, a.status, a.created_at
		FROM assigned_order_items a
		JOIN order_items oi ON oi.id = a.order_item_id
		WHERE oi.order_id = $1 ORDER BY a.id`

	arows, err := r.pool.Query(ctx, assignSQL, id)
	if err != nil {
		return Order{}, err
	}
	defer arows.Close()

	for arows.Next() {
		var (
			a   Assignment
			qty pgtype.Numeric
		)
		if err := arows.Scan(&a.ID, &a.OrderItemID, &a.VendorID, &qty, &a.Status, &a.CreatedAt); err != nil {
			return Order{}, err
		}
		a.Quantity = numericToFloat(qty)
		if pos, ok := index[a.OrderItemID]; ok {
			order.Items[pos].Assignments = append(order.Items[pos].Assignments, a)
		}
	}
	return order, arows.Err()
}

// GetPurchaseOrder returns a purchase order with its lines.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	const headerSQL = `
		SELECT id, number, order_id, vendor_id, total_amount, status, created_at
		FROM purchase_orders WHERE id = $1`

	var (
		po    PurchaseOrder
		total pgtype.Numeric
	)
	if err := r.pool.QueryRow(ctx, headerSQL, id).Scan(
		&po.ID, &po.Number, &po.OrderID, &po.VendorID, &total, &po.Status, &po.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.TotalAmount = numericToFloat(total)

	items, err := r.purchaseOrderItems(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	return po, nil
}

func (r *Repository) purchaseOrderItems(ctx context.Context, poID int64) ([]PurchaseOrderItem, error) {
	const lineSQL = `
		SELECT id, purchase_order_id, assignment_id, quantity, unit_price, line_total
		FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, lineSQL, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PurchaseOrderItem
	for rows.Next() {
		var (
			item            PurchaseOrderItem
			qty, prc, total pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.AssignmentID, &qty, &prc, &total); err != nil {
			return nil, err
		}
		item.Quantity = numericToFloat(qty)
		item.UnitPrice = numericToFloat(prc)
		item.LineTotal = numericToFloat(total)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListPurchaseOrdersByOrder returns all purchase orders generated from one
// order, lines included.
func (r *Repository) ListPurchaseOrdersByOrder(ctx context.Context, orderID int64) ([]PurchaseOrder, error) {
	const listSQL = `
		SELECT id, number, order_id, vendor_id, total_amount, status, created_at
		FROM purchase_orders WHERE order_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, listSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pos []PurchaseOrder
	for rows.Next() {
		var (
			po    PurchaseOrder
			total pgtype.Numeric
		)
		if err := rows.Scan(&po.ID, &po.Number, &po.OrderID, &po.VendorID, &total, &po.Status, &po.CreatedAt); err != nil {
			return nil, err
		}
		po.TotalAmount = numericToFloat(total)
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range pos {
		items, err := r.purchaseOrderItems(ctx, pos[i].ID)
		if err != nil {
			return nil, err
		}
		pos[i].Items = items
	}
	return pos, nil
}

// GetInvoice fetches a vendor invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (VendorInvoice, error) {
	inv, err := r.invoiceWhere(ctx, `id = $1`, id)
	if err != nil {
		return VendorInvoice{}, err
	}
	if inv == nil {
		return VendorInvoice{}, ErrNotFound
	}
	return *inv, nil
}

// GetInvoiceByPO returns the invoice submitted against a purchase order, nil
// when none exists.
func (r *Repository) GetInvoiceByPO(ctx context.Context, poID int64) (*VendorInvoice, error) {
	return r.invoiceWhere(ctx, `purchase_order_id = $1`, poID)
}

func (r *Repository) invoiceWhere(ctx context.Context, where string, arg any) (*VendorInvoice, error) {
	query := `
		SELECT id, purchase_order_id, number, invoice_date, amount, status,
		       COALESCE(submitted_file_ref, ''), COALESCE(verified_file_ref, ''), created_at
		FROM vendor_invoices WHERE ` + where

	var (
		inv    VendorInvoice
		date   pgtype.Date
		amount pgtype.Numeric
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&inv.ID, &inv.PurchaseOrderID, &inv.Number, &date, &amount, &inv.Status,
		&inv.SubmittedFileRef, &inv.VerifiedFileRef, &inv.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if date.Valid {
		inv.InvoiceDate = date.Time
	}
	inv.Amount = numericToFloat(amount)
	return &inv, nil
}

// GetPaymentByPO returns the payment for a purchase order, nil when none
// exists.
func (r *Repository) GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, paymentByPOSQL, poID))
}

const paymentByPOSQL = `
	SELECT id, purchase_order_id, number, amount, status,
	       COALESCE(transaction_ref, ''), processed_at, processed_by, created_at
	FROM payments WHERE purchase_order_id = $1`

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p           Payment
		amount      pgtype.Numeric
		processedAt pgtype.Timestamptz
		processedBy pgtype.Int8
	)
	if err := row.Scan(
		&p.ID, &p.PurchaseOrderID, &p.Number, &amount, &p.Status,
		&p.TransactionRef, &processedAt, &processedBy, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Amount = numericToFloat(amount)
	if processedAt.Valid {
		p.ProcessedAt = processedAt.Time
	}
	if processedBy.Valid {
		p.ProcessedBy = processedBy.Int64
	}
	return &p, nil
}

// GetDispatch returns a dispatch with its lines.
func (r *Repository) GetDispatch(ctx context.Context, id int64) (Dispatch, error) {
	const headerSQL = `
		SELECT id, vendor_id, status, created_at FROM dispatches WHERE id = $1`

	var d Dispatch
	if err := r.pool.QueryRow(ctx, headerSQL, id).Scan(&d.ID, &d.VendorID, &d.Status, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispatch{}, ErrNotFound
		}
		return Dispatch{}, err
	}

	const lineSQL = `
		SELECT id, dispatch_id, assignment_id, quantity
		FROM dispatch_items WHERE dispatch_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, lineSQL, id)
	if err != nil {
		return Dispatch{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item DispatchItem
			qty  pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.DispatchID, &item.AssignmentID, &qty); err != nil {
			return Dispatch{}, err
		}
		item.Quantity = numericToFloat(qty)
		d.Items = append(d.Items, item)
	}
	return d, rows.Err()
}

// GetGRNByDispatch returns the goods receipt for a dispatch, nil when none
// exists.
func (r *Repository) GetGRNByDispatch(ctx context.Context, dispatchID int64) (*GoodsReceiptNote, error) {
	const headerSQL = `
		SELECT id, dispatch_id, number, status, received_at, verified_at, created_at
		FROM goods_receipt_notes WHERE dispatch_id = $1`

	grn, err := scanGRN(r.pool.QueryRow(ctx, headerSQL, dispatchID))
	if err != nil || grn == nil {
		return nil, err
	}
	items, err := r.receiptItems(ctx, grn.ID)
	if err != nil {
		return nil, err
	}
	grn.Items = items
	return grn, nil
}

func scanGRN(row pgx.Row) (*GoodsReceiptNote, error) {
	var (
		grn        GoodsReceiptNote
		receivedAt pgtype.Timestamptz
		verifiedAt pgtype.Timestamptz
	)
	if err := row.Scan(&grn.ID, &grn.DispatchID, &grn.Number, &grn.Status, &receivedAt, &verifiedAt, &grn.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if receivedAt.Valid {
		grn.ReceivedAt = receivedAt.Time
	}
	if verifiedAt.Valid {
		grn.VerifiedAt = verifiedAt.Time
	}
	return &grn, nil
}

func (r *Repository) receiptItems(ctx context.Context, grnID int64) ([]GoodsReceiptItem, error) {
	const lineSQL = `
		SELECT id, grn_id, dispatch_item_id, assignment_id, assigned_qty, confirmed_qty, received_qty, status
		FROM goods_receipt_items WHERE grn_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, lineSQL, grnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GoodsReceiptItem
	for rows.Next() {
		var (
			item          GoodsReceiptItem
			asg, cnf, rcv pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.GRNID, &item.DispatchItemID, &item.AssignmentID, &asg, &cnf, &rcv, &item.Status); err != nil {
			return nil, err
		}
		item.AssignedQty = numericToFloat(asg)
		item.ConfirmedQty = numericToFloat(cnf)
		item.ReceivedQty = numericToFloat(rcv)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListReceiptsByPO walks assignment -> dispatch line -> receipt and returns
// every goods receipt reachable from the purchase order's lines.
func (r *Repository) ListReceiptsByPO(ctx context.Context, poID int64) ([]GoodsReceiptNote, error) {
	const listSQL = `
		SELECT DISTINCT g.id, g.dispatch_id, g.number, g.status, g.received_at, g.verified_at, g.created_at
		FROM goods_receipt_notes g
		JOIN goods_receipt_items gi ON gi.grn_id = g.id
		JOIN purchase_order_items poi ON poi.assignment_id = gi.assignment_id
		WHERE poi.purchase_order_id = $1
		ORDER BY g.id`

	rows, err := r.pool.Query(ctx, listSQL, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []GoodsReceiptNote
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *grn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range notes {
		items, err := r.receiptItems(ctx, notes[i].ID)
		if err != nil {
			return nil, err
		}
		notes[i].Items = items
	}
	return notes, nil
}

// ListReceiptStatusByAssignment maps every assignment of the order to the
// parent receipts of its receipt lines. Assignments with no receipts map to
// an empty slice.
func (r *Repository) ListReceiptStatusByAssignment(ctx context.Context, orderID int64) (map[int64][]AssignmentReceipt, error) {
	const chainSQL = `
		SELECT a.id, g.id, g.status
		FROM assigned_order_items a
		JOIN order_items oi ON oi.id = a.order_item_id
		LEFT JOIN goods_receipt_items gi ON gi.assignment_id = a.id
		LEFT JOIN goods_receipt_notes g ON g.id = gi.grn_id
		WHERE oi.order_id = $1`

	rows, err := r.pool.Query(ctx, chainSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]AssignmentReceipt)
	for rows.Next() {
		var (
			assignmentID int64
			grnID        pgtype.Int8
			status       pgtype.Text
		)
		if err := rows.Scan(&assignmentID, &grnID, &status); err != nil {
			return nil, err
		}
		if _, ok := result[assignmentID]; !ok {
			result[assignmentID] = nil
		}
		if status.Valid {
			result[assignmentID] = append(result[assignmentID], AssignmentReceipt{GRNID: grnID.Int64, Status: GRNStatus(status.String)})
		}
	}
	return result, rows.Err()
}

// Transactional reads and writes.

// GetOrderStatus re-reads the order status inside the transaction. Status
// gates checked before the transaction opened must be confirmed through this
// read so a concurrent transition surfaces as a serialization conflict
// instead of a double apply.
func (tx *txRepo) GetOrderStatus(ctx context.Context, id int64) (OrderStatus, error) {
	var status OrderStatus
	if err := tx.tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (tx *txRepo) GetInvoiceStatus(ctx context.Context, id int64) (InvoiceStatus, error) {
	var status InvoiceStatus
	if err := tx.tx.QueryRow(ctx, `SELECT status FROM vendor_invoices WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (tx *txRepo) GetDispatchStatus(ctx context.Context, id int64) (DispatchStatus, error) {
	var status DispatchStatus
	if err := tx.tx.QueryRow(ctx, `SELECT status FROM dispatches WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

func (tx *txRepo) NextSequence(ctx context.Context, kind sequence.Kind, year int) (int64, error) {
	const counterSQL = `
		INSERT INTO sequence_counters (kind, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (kind, year) DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value`

	var value int64
	if err := tx.tx.QueryRow(ctx, counterSQL, string(kind), year).Scan(&value); err != nil {
		return 0, fmt.Errorf("next sequence %s/%d: %w", kind, year, err)
	}
	return value, nil
}

func (tx *txRepo) CreatePurchaseOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	const insertSQL = `
		INSERT INTO purchase_orders (number, order_id, vendor_id, total_amount, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var id int64
	err := tx.tx.QueryRow(ctx, insertSQL, po.Number, po.OrderID, po.VendorID, floatToNumeric(po.TotalAmount), string(po.Status)).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertPurchaseOrderItem(ctx context.Context, item PurchaseOrderItem) error {
	const insertSQL = `
		INSERT INTO purchase_order_items (purchase_order_id, assignment_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.tx.Exec(ctx, insertSQL, item.PurchaseOrderID, item.AssignmentID,
		floatToNumeric(item.Quantity), floatToNumeric(item.UnitPrice), floatToNumeric(item.LineTotal))
	return err
}

func (tx *txRepo) UpdateAssignmentStatus(ctx context.Context, id int64, status AssignmentStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE assigned_order_items SET status = $1 WHERE id = $2`, string(status), id)
	return err
}

func (tx *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), id)
	return err
}

func (tx *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE vendor_invoices SET status = $1 WHERE id = $2`, string(status), id)
	return err
}

func (tx *txRepo) GetPaymentByPO(ctx context.Context, poID int64) (*Payment, error) {
	return scanPayment(tx.tx.QueryRow(ctx, paymentByPOSQL, poID))
}

func (tx *txRepo) UpsertPayment(ctx context.Context, p Payment) (int64, error) {
	const upsertSQL = `
		INSERT INTO payments (purchase_order_id, number, amount, status, transaction_ref, processed_at, processed_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (purchase_order_id) DO UPDATE
		SET amount = EXCLUDED.amount,
		    status = EXCLUDED.status,
		    processed_at = EXCLUDED.processed_at,
		    processed_by = EXCLUDED.processed_by
		RETURNING id`

	var processedAt pgtype.Timestamptz
	if !p.ProcessedAt.IsZero() {
		processedAt = pgtype.Timestamptz{Time: p.ProcessedAt, Valid: true}
	}
	var id int64
	err := tx.tx.QueryRow(ctx, upsertSQL, p.PurchaseOrderID, p.Number, floatToNumeric(p.Amount),
		string(p.Status), p.TransactionRef, processedAt, p.ProcessedBy).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdatePurchaseOrderStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1 WHERE id = $2`, string(status), id)
	return err
}

func (tx *txRepo) ExistsGRNForDispatch(ctx context.Context, dispatchID int64) (bool, error) {
	var exists bool
	err := tx.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM goods_receipt_notes WHERE dispatch_id = $1)`, dispatchID).Scan(&exists)
	return exists, err
}

func (tx *txRepo) CreateGoodsReceipt(ctx context.Context, grn GoodsReceiptNote) (int64, error) {
	const insertSQL = `
		INSERT INTO goods_receipt_notes (dispatch_id, number, status, received_at)
		VALUES ($1, $2, $3, $4) RETURNING id`

	var receivedAt pgtype.Timestamptz
	if !grn.ReceivedAt.IsZero() {
		receivedAt = pgtype.Timestamptz{Time: grn.ReceivedAt, Valid: true}
	}
	var id int64
	err := tx.tx.QueryRow(ctx, insertSQL, grn.DispatchID, grn.Number, string(grn.Status), receivedAt).Scan(&id)
	return id, err
}

func (tx *txRepo) InsertReceiptItem(ctx context.Context, item GoodsReceiptItem) error {
	const insertSQL = `
		INSERT INTO goods_receipt_items (grn_id, dispatch_item_id, assignment_id, assigned_qty, confirmed_qty, received_qty, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.tx.Exec(ctx, insertSQL, item.GRNID, item.DispatchItemID, item.AssignmentID,
		floatToNumeric(item.AssignedQty), floatToNumeric(item.ConfirmedQty), floatToNumeric(item.ReceivedQty), string(item.Status))
	return err
}

func (tx *txRepo) CreateTicket(ctx context.Context, t Ticket) (int64, error) {
	const insertSQL = `
		INSERT INTO tickets (number, order_id, grn_id, reason, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	var id int64
	err := tx.tx.QueryRow(ctx, insertSQL, t.Number, t.OrderID, t.GRNID, t.Reason, string(t.Status)).Scan(&id)
	return id, err
}

func numericToFloat(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, err := n.Float64Value()
	if err != nil {
		return 0
	}
	return f.Float64
}

func floatToNumeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(fmt.Sprintf("%f", f))
	return n
}
