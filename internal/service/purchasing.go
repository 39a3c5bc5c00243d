package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/costing"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/events"
	"kasirledger/backend/internal/kardex"
	"kasirledger/backend/internal/metrics"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

type PurchaseOrderReceived struct {
	OrderID  string          `json:"order_id"`
	Supplier string          `json:"supplier"`
	Lines    int             `json:"lines"`
	Value    decimal.Decimal `json:"value"`
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}

	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return domain.PurchaseOrder{}, domain.Invalid("supplier is required")
	}
	if len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, domain.Invalid("purchase order needs at least one line")
	}

	po := domain.PurchaseOrder{
		ID:        xid.New("po"),
		Supplier:  supplier,
		Status:    domain.PurchaseOrderPending,
		CreatedAt: s.now(),
		Details:   make([]domain.PurchaseOrderDetail, 0, len(req.Lines)),
	}
	for i, line := range req.Lines {
		if !line.Quantity.IsPositive() {
			return domain.PurchaseOrder{}, fmt.Errorf("line %d: %w", i+1, domain.Invalid("quantity must be positive"))
		}
		if err := nonNegative("unit_cost", line.UnitCost); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		po.Details = append(po.Details, domain.PurchaseOrderDetail{
			ID:        xid.New("pod"),
			OrderID:   po.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity.Round(domain.QuantityPlaces),
			UnitCost:  line.UnitCost.Round(domain.CostPlaces),
		})
	}

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		for _, d := range po.Details {
			product, err := tx.GetProduct(ctx, d.ProductID)
			if err != nil {
				return err
			}
			if product.IsCombo {
				return domain.Invalid("combo %s cannot be purchased", product.SKU)
			}
		}
		return tx.CreatePurchaseOrder(ctx, po)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_create", "purchase_order", po.ID, fmt.Sprintf("supplier=%s,lines=%d", po.Supplier, len(po.Details)))
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.repo.View(ctx, func(tx store.Tx) error {
		found, err := tx.GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		po = *found
		return nil
	})
	return po, err
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	filter := domain.PurchaseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch filter {
	case "", domain.PurchaseOrderPending, domain.PurchaseOrderReceived, domain.PurchaseOrderCancelled:
	default:
		return nil, domain.Invalid("unknown purchase order status %q", status)
	}
	if limit < 1 {
		limit = 100
	}

	var orders []domain.PurchaseOrder
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		orders, err = tx.ListPurchaseOrders(ctx, filter, limit)
		return err
	})
	return orders, err
}

// ReceivePurchaseOrder adds every line to stock, reprices it at the weighted
// average cost and marks the order RECEIVED, all in one unit of work.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}

	var po domain.PurchaseOrder
	var entries []domain.KardexEntry
	value := decimal.Zero
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]
		value = decimal.Zero

		locked, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != domain.PurchaseOrderPending {
			return fmt.Errorf("%w: order %s is %s", domain.ErrOrderAlreadyProcessed, locked.ID, locked.Status)
		}

		now := s.now()
		for _, d := range locked.Details {
			product, err := tx.LockProduct(ctx, d.ProductID)
			if err != nil {
				return err
			}
			if product.IsCombo {
				return domain.Invalid("combo %s cannot be received", product.SKU)
			}

			cost := costing.WeightedAverage(product.CostPrice, product.Stock, d.UnitCost, d.Quantity)
			balance := product.Stock.Add(d.Quantity)
			if err := tx.UpdateProductCost(ctx, product.ID, cost); err != nil {
				return err
			}
			if err := tx.UpdateProductStock(ctx, product.ID, balance); err != nil {
				return err
			}
			entry, err := kardex.Append(ctx, tx, domain.KardexEntry{
				ProductID:   product.ID,
				Type:        domain.MovementPurchase,
				Quantity:    d.Quantity,
				Balance:     balance,
				Description: "purchase from " + locked.Supplier,
				Reference:   locked.ID,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
			value = value.Add(d.UnitCost.Mul(d.Quantity))
		}

		if err := tx.UpdatePurchaseOrderStatus(ctx, locked.ID, domain.PurchaseOrderReceived, now); err != nil {
			return err
		}
		po = *locked
		po.Status = domain.PurchaseOrderReceived
		po.ReceivedAt = &now
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	value = value.Round(domain.MoneyPlaces)
	metrics.PurchaseReceipts.Inc()
	s.afterStockChange(entries)
	s.publisher.Publish(events.New(events.TypePurchaseOrderReceived, po.ID, PurchaseOrderReceived{
		OrderID:  po.ID,
		Supplier: po.Supplier,
		Lines:    len(po.Details),
		Value:    value,
	}))
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", po.ID, fmt.Sprintf("lines=%d,value=%s", len(po.Details), value))
	return po, nil
}

func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PurchaseOrder{}, err
	}

	var po domain.PurchaseOrder
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		switch locked.Status {
		case domain.PurchaseOrderPending:
		case domain.PurchaseOrderReceived:
			return domain.ErrCannotCancelReceivedOrder
		case domain.PurchaseOrderCancelled:
			return fmt.Errorf("%w: order %s is already cancelled", domain.ErrOrderAlreadyProcessed, locked.ID)
		}

		if err := tx.UpdatePurchaseOrderStatus(ctx, locked.ID, domain.PurchaseOrderCancelled, s.now()); err != nil {
			return err
		}
		po = *locked
		po.Status = domain.PurchaseOrderCancelled
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logAudit(ctx, "purchase_order_cancel", "purchase_order", po.ID, "supplier="+po.Supplier)
	return po, nil
}
