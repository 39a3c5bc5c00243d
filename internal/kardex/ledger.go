// Package kardex is the append-only stock movement journal. Every stock
// mutation writes exactly one entry per product in the same transaction,
// carrying the balance after the mutation.
package kardex

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

type Writer interface {
	AppendKardex(ctx context.Context, entry domain.KardexEntry) (*domain.KardexEntry, error)
}

// Append validates the entry against its movement type and inserts it.
func Append(ctx context.Context, w Writer, entry domain.KardexEntry) (*domain.KardexEntry, error) {
	if strings.TrimSpace(entry.ProductID) == "" {
		return nil, domain.Invalid("kardex entry needs a product")
	}
	if !entry.Type.Valid() {
		return nil, domain.Invalid("unknown movement type %q", entry.Type)
	}
	if entry.Quantity.IsZero() {
		return nil, domain.Invalid("kardex quantity must not be zero")
	}
	switch entry.Type.Direction() {
	case 1:
		if entry.Quantity.IsNegative() {
			return nil, domain.Invalid("%s movement must be positive", entry.Type)
		}
	case -1:
		if entry.Quantity.IsPositive() {
			return nil, domain.Invalid("%s movement must be negative", entry.Type)
		}
	}
	if entry.Balance.IsNegative() {
		return nil, domain.Invalid("kardex balance must not be negative")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return w.AppendKardex(ctx, entry)
}

// Replay returns initial plus the signed sum of the entries.
func Replay(initial decimal.Decimal, entries []domain.KardexEntry) decimal.Decimal {
	total := initial
	for _, entry := range entries {
		total = total.Add(entry.Quantity)
	}
	return total
}

// BalanceAt returns the recorded balance of the last entry at or before t.
// Entries must belong to one product.
func BalanceAt(entries []domain.KardexEntry, t time.Time) decimal.Decimal {
	ordered := make([]domain.KardexEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ID < ordered[j].ID
	})

	balance := decimal.Zero
	for _, entry := range ordered {
		if entry.CreatedAt.After(t) {
			break
		}
		balance = entry.Balance
	}
	return balance
}

type Summary struct {
	Purchased   decimal.Decimal `json:"purchased"`
	Sold        decimal.Decimal `json:"sold"`
	Returned    decimal.Decimal `json:"returned"`
	AdjustedIn  decimal.Decimal `json:"adjusted_in"`
	AdjustedOut decimal.Decimal `json:"adjusted_out"`
	Net         decimal.Decimal `json:"net"`
}

// Summarize totals entries per movement type. Sold and AdjustedOut are
// reported as positive quantities.
func Summarize(entries []domain.KardexEntry) Summary {
	var s Summary
	for _, entry := range entries {
		qty := entry.Quantity
		switch entry.Type {
		case domain.MovementPurchase:
			s.Purchased = s.Purchased.Add(qty)
		case domain.MovementSale:
			s.Sold = s.Sold.Add(qty.Neg())
		case domain.MovementReturn:
			s.Returned = s.Returned.Add(qty)
		case domain.MovementAdjustmentIn:
			s.AdjustedIn = s.AdjustedIn.Add(qty)
		case domain.MovementAdjustmentOut:
			s.AdjustedOut = s.AdjustedOut.Add(qty.Neg())
		case domain.MovementAdjustment:
			if qty.IsNegative() {
				s.AdjustedOut = s.AdjustedOut.Add(qty.Neg())
			} else {
				s.AdjustedIn = s.AdjustedIn.Add(qty)
			}
		}
		s.Net = s.Net.Add(qty)
	}
	return s
}
