package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"kasirledger/backend/internal/catalog"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/kardex"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		products, err = tx.ListProducts(ctx)
		return err
	})
	return products, err
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductDetail, error) {
	var detail domain.ProductDetail
	err := s.repo.View(ctx, func(tx store.Tx) error {
		product, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		units, err := tx.ListProductUnits(ctx, id)
		if err != nil {
			return err
		}
		detail = domain.ProductDetail{Product: *product, Units: units}
		if product.IsCombo {
			if detail.ComboItems, err = tx.ListComboItems(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return detail, err
}

// CreateProduct stores a product. A positive initial stock is booked as an
// ADJUSTMENT_IN entry so the kardex replays to the live balance.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.BaseUnit = strings.TrimSpace(req.BaseUnit)
	if req.BaseUnit == "" {
		req.BaseUnit = "unit"
	}
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, domain.Invalid("sku and name are required")
	}
	if err := nonNegative("sale_price", req.SalePrice); err != nil {
		return domain.Product{}, err
	}
	if err := nonNegative("cost_price", req.CostPrice); err != nil {
		return domain.Product{}, err
	}
	if err := nonNegative("initial_stock", req.InitialStock); err != nil {
		return domain.Product{}, err
	}
	if req.IsCombo && !req.InitialStock.IsZero() {
		return domain.Product{}, domain.Invalid("combo products carry no stock of their own")
	}

	now := s.now()
	product := domain.Product{
		ID:        xid.New("prd"),
		SKU:       req.SKU,
		Name:      req.Name,
		BaseUnit:  req.BaseUnit,
		Stock:     req.InitialStock.Round(domain.QuantityPlaces),
		CostPrice: req.CostPrice.Round(domain.CostPlaces),
		SalePrice: req.SalePrice.Round(domain.MoneyPlaces),
		IsCombo:   req.IsCombo,
		Active:    true,
		CreatedAt: now,
	}

	var entries []domain.KardexEntry
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateProduct(ctx, product); err != nil {
			return err
		}
		if !product.Stock.IsPositive() {
			return nil
		}
		entry, err := kardex.Append(ctx, tx, domain.KardexEntry{
			ProductID:   product.ID,
			Type:        domain.MovementAdjustmentIn,
			Quantity:    product.Stock,
			Balance:     product.Stock,
			Description: "initial stock",
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.afterStockChange(entries)
	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("sku=%s,stock=%s", product.SKU, product.Stock))
	return product, nil
}

func (s *Service) AddProductUnit(ctx context.Context, productID string, req domain.ProductUnitCreateRequest) (domain.ProductUnit, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductUnit{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Name == "" {
		return domain.ProductUnit{}, domain.Invalid("unit name is required")
	}
	if !req.ConversionFactor.IsPositive() {
		return domain.ProductUnit{}, domain.Invalid("conversion factor must be positive")
	}
	if req.Price != nil {
		if err := nonNegative("price", *req.Price); err != nil {
			return domain.ProductUnit{}, err
		}
		rounded := req.Price.Round(domain.MoneyPlaces)
		req.Price = &rounded
	}

	unit := domain.ProductUnit{
		ID:               xid.New("unit"),
		ProductID:        productID,
		Name:             req.Name,
		ConversionFactor: req.ConversionFactor.Round(domain.QuantityPlaces),
		Price:            req.Price,
		Barcode:          req.Barcode,
		DefaultSale:      req.DefaultSale,
		Active:           true,
	}

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, productID); err != nil {
			return err
		}
		return tx.CreateProductUnit(ctx, unit)
	})
	if err != nil {
		return domain.ProductUnit{}, err
	}

	// A cached SKU match for the same code would now shadow the unit.
	if unit.Barcode != "" {
		if err := s.catalogCache.Delete(ctx, unit.Barcode, strings.ToUpper(unit.Barcode)); err != nil {
			log.Printf("[catalog] WARN: cache invalidation barcode=%s: %v", unit.Barcode, err)
		}
	}
	s.logAudit(ctx, "product_unit_create", "product_unit", unit.ID, fmt.Sprintf("product=%s,factor=%s", productID, unit.ConversionFactor))
	return unit, nil
}

func (s *Service) SetComboItems(ctx context.Context, comboID string, req domain.ComboItemsRequest) ([]domain.ComboItem, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	items := make([]domain.ComboItem, 0, len(req.Items))
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		combo, err := tx.LockProduct(ctx, comboID)
		if err != nil {
			return err
		}
		if err := catalog.ValidateComboItems(ctx, tx, *combo, req.Items); err != nil {
			return err
		}
		for _, in := range req.Items {
			items = append(items, domain.ComboItem{
				ComboID:     comboID,
				ChildID:     in.ChildID,
				Quantity:    in.Quantity.Round(domain.QuantityPlaces),
				ChildUnitID: in.ChildUnitID,
			})
		}
		return tx.ReplaceComboItems(ctx, comboID, items)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "combo_items_set", "product", comboID, fmt.Sprintf("children=%d", len(items)))
	return items, nil
}

// ResolveBarcode looks the code up in the catalog cache first. The cache
// only decides which product and unit the code points at; both are
// re-read from the store so stock and prices are current. Cache failures
// degrade to a store lookup.
func (s *Service) ResolveBarcode(ctx context.Context, code string) (domain.BarcodeMatch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.BarcodeMatch{}, domain.Invalid("barcode is required")
	}

	cached, ok, err := s.catalogCache.Get(ctx, code)
	if err != nil {
		log.Printf("[catalog] WARN: cache get barcode=%s: %v", code, err)
	}

	var match domain.BarcodeMatch
	if ok && cached != nil {
		hit := false
		err = s.repo.View(ctx, func(tx store.Tx) error {
			var err error
			match, hit, err = refreshBarcodeMatch(ctx, tx, code, *cached)
			return err
		})
		if err != nil {
			return domain.BarcodeMatch{}, err
		}
		if hit {
			return match, nil
		}
	}

	err = s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		match, err = catalog.ResolveBarcode(ctx, tx, code)
		return err
	})
	if err != nil {
		return domain.BarcodeMatch{}, err
	}

	if err := s.catalogCache.Set(ctx, code, &match, s.cacheTTL); err != nil {
		log.Printf("[catalog] WARN: cache set barcode=%s: %v", code, err)
	}
	return match, nil
}

// refreshBarcodeMatch reloads a cached match. It reports false when the
// cached target no longer answers to the code.
func refreshBarcodeMatch(ctx context.Context, tx store.Tx, code string, cached domain.BarcodeMatch) (domain.BarcodeMatch, bool, error) {
	product, err := tx.GetProduct(ctx, cached.Product.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BarcodeMatch{}, false, nil
	}
	if err != nil {
		return domain.BarcodeMatch{}, false, err
	}
	if cached.Unit == nil {
		return domain.BarcodeMatch{Product: *product}, strings.EqualFold(product.SKU, code), nil
	}

	unit, err := tx.GetProductUnit(ctx, cached.Unit.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BarcodeMatch{}, false, nil
	}
	if err != nil {
		return domain.BarcodeMatch{}, false, err
	}
	if !unit.Active || unit.Barcode != code || unit.ProductID != product.ID {
		return domain.BarcodeMatch{}, false, nil
	}
	return domain.BarcodeMatch{Product: *product, Unit: unit}, true, nil
}
