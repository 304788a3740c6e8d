// Package sequence mints human-readable document numbers from per-kind
// atomic counters. Purchase orders, payments and goods receipts are scoped
// by year (PO-2025-0004); tickets carry a single global counter
// (TKT-000004).
package sequence

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a numbered document type.
type Kind string

const (
	KindPurchaseOrder Kind = "PO"
	KindPayment       Kind = "PAY"
	KindGoodsReceipt  Kind = "GRN"
	KindTicket        Kind = "TKT"
)

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindPurchaseOrder, KindPayment, KindGoodsReceipt, KindTicket:
		return true
	}
	return false
}

// YearScoped reports whether counters for the kind reset each year.
func (k Kind) YearScoped() bool {
	return k != KindTicket
}

// Counter returns the next value of the (kind, year) counter. Implementations
// must be atomic: two concurrent calls never observe the same value. The
// Postgres implementation lives on the fulfillment transaction repository so
// counter increments commit or roll back together with the record they
// number. Year is zero for kinds that are not year scoped.
type Counter interface {
	NextSequence(ctx context.Context, kind Kind, year int) (int64, error)
}

// Format renders a counter value as a document number.
func Format(kind Kind, year int, n int64) string {
	if kind == KindTicket {
		return fmt.Sprintf("TKT-%06d", n)
	}
	return fmt.Sprintf("%s-%d-%04d", kind, year, n)
}

// Generator mints document numbers against a Counter.
type Generator struct {
	counter Counter
	now     func() time.Time
}

// NewGenerator constructs a Generator. now may be nil, in which case
// time.Now is used.
func NewGenerator(counter Counter, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{counter: counter, now: now}
}

// Next mints the next number for the kind, scoping by the current year where
// the kind requires it.
func (g *Generator) Next(ctx context.Context, kind Kind) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("sequence: unknown kind %q", kind)
	}
	year := 0
	if kind.YearScoped() {
		year = g.now().Year()
	}
	n, err := g.counter.NextSequence(ctx, kind, year)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", kind, err)
	}
	return Format(kind, year, n), nil
}
