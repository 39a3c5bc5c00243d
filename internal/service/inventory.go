package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/kardex"
	"kasirledger/backend/internal/store"
)

type KardexReport struct {
	Product domain.Product       `json:"product"`
	Entries []domain.KardexEntry `json:"entries"`
	Summary kardex.Summary       `json:"summary"`
}

// AdjustStock applies a signed manual correction as ADJUSTMENT_IN or
// ADJUSTMENT_OUT.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovementResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockMovementResponse{}, err
	}
	delta := req.Delta.Round(domain.QuantityPlaces)
	if delta.IsZero() {
		return domain.StockMovementResponse{}, domain.Invalid("delta must not be zero")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	movement := domain.MovementAdjustmentIn
	if delta.IsNegative() {
		movement = domain.MovementAdjustmentOut
	}

	resp, err := s.applyStockChange(ctx, req.ProductID, movement, func(p *domain.Product) (domain.KardexEntry, error) {
		next := p.Stock.Add(delta)
		if next.IsNegative() {
			return domain.KardexEntry{}, &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Required:    delta.Neg(),
			}
		}
		return domain.KardexEntry{Quantity: delta, Balance: next, Description: reason}, nil
	})
	if err != nil {
		return domain.StockMovementResponse{}, err
	}
	s.logAudit(ctx, "stock_adjust", "product", req.ProductID, fmt.Sprintf("delta=%s,reason=%s", delta, reason))
	return resp, nil
}

// CountStock sets the stock to a physically counted quantity and books the
// difference as a signed ADJUSTMENT. A count equal to the live stock writes
// nothing.
func (s *Service) CountStock(ctx context.Context, req domain.StockCountRequest) (domain.StockMovementResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockMovementResponse{}, err
	}
	counted := req.Counted.Round(domain.QuantityPlaces)
	if err := nonNegative("counted", counted); err != nil {
		return domain.StockMovementResponse{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "physical count"
	}

	resp, err := s.applyStockChange(ctx, req.ProductID, domain.MovementAdjustment, func(p *domain.Product) (domain.KardexEntry, error) {
		return domain.KardexEntry{Quantity: counted.Sub(p.Stock), Balance: counted, Description: reason}, nil
	})
	if err != nil {
		return domain.StockMovementResponse{}, err
	}
	s.logAudit(ctx, "stock_count", "product", req.ProductID, fmt.Sprintf("counted=%s,reason=%s", counted, reason))
	return resp, nil
}

// applyStockChange locks the product, lets build compute the entry and
// writes stock and kardex together. A zero quantity skips both writes.
func (s *Service) applyStockChange(ctx context.Context, productID string, movement domain.MovementType, build func(p *domain.Product) (domain.KardexEntry, error)) (domain.StockMovementResponse, error) {
	var resp domain.StockMovementResponse
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.IsCombo {
			return domain.Invalid("combo %s has no stock of its own", product.SKU)
		}

		entry, err := build(product)
		if err != nil {
			return err
		}
		resp.Product = *product
		if entry.Quantity.IsZero() {
			return nil
		}

		if err := tx.UpdateProductStock(ctx, product.ID, entry.Balance); err != nil {
			return err
		}
		entry.ProductID = product.ID
		entry.Type = movement
		entry.CreatedAt = s.now()
		saved, err := kardex.Append(ctx, tx, entry)
		if err != nil {
			return err
		}
		resp.Product.Stock = entry.Balance
		resp.Entry = saved
		return nil
	})
	if err != nil {
		return domain.StockMovementResponse{}, err
	}
	if resp.Entry != nil {
		s.afterStockChange([]domain.KardexEntry{*resp.Entry})
	}
	return resp, nil
}

func (s *Service) ListKardex(ctx context.Context, productID string, limit int) (KardexReport, error) {
	if limit < 1 {
		limit = 200
	}

	var report KardexReport
	err := s.repo.View(ctx, func(tx store.Tx) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		entries, err := tx.ListKardex(ctx, productID, limit)
		if err != nil {
			return err
		}
		report = KardexReport{Product: *product, Entries: entries, Summary: kardex.Summarize(entries)}
		return nil
	})
	return report, err
}

// StockAt reconstructs the balance of a product at a point in time from its
// kardex alone.
func (s *Service) StockAt(ctx context.Context, productID string, at time.Time) (domain.StockAtResponse, error) {
	if at.IsZero() {
		at = s.now()
	}

	var resp domain.StockAtResponse
	err := s.repo.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetProduct(ctx, productID); err != nil {
			return err
		}
		entries, err := tx.ListKardex(ctx, productID, 0)
		if err != nil {
			return err
		}
		resp = domain.StockAtResponse{ProductID: productID, At: at.UTC(), Balance: kardex.BalanceAt(entries, at)}
		return nil
	})
	return resp, err
}
