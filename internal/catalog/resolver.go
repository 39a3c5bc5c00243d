package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

// Reader is the read side of the catalog. Implementations return
// domain.ErrProductNotFound and domain.ErrUnitNotFound for missing rows.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductUnit(ctx context.Context, id string) (*domain.ProductUnit, error)
	ListComboItems(ctx context.Context, comboID string) ([]domain.ComboItem, error)
}

type BarcodeReader interface {
	FindUnitByBarcode(ctx context.Context, barcode string) (*domain.ProductUnit, error)
	FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Line is one requested quantity of a product, optionally in a presentation unit.
// ConversionFactor is used only when UnitID is empty; zero means the base unit.
type Line struct {
	UnitID           string
	Quantity         decimal.Decimal
	ConversionFactor decimal.Decimal
}

// Requirement is the stock a resolved line consumes from one physical product.
type Requirement struct {
	ProductID string
	Quantity  decimal.Decimal
	UnitLabel string
}

type Resolution struct {
	ProductID    string
	BaseQuantity decimal.Decimal
	UnitLabel    string
	Requirements []Requirement
}

// Resolve converts a line into base units and, for combos, into the stock
// requirements of every child. Nothing is mutated.
func Resolve(ctx context.Context, r Reader, product domain.Product, line Line) (Resolution, error) {
	if !line.Quantity.IsPositive() {
		return Resolution{}, domain.Invalid("quantity must be positive")
	}

	factor, label, err := lineFactor(ctx, r, product, line)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		ProductID:    product.ID,
		BaseQuantity: line.Quantity.Mul(factor),
		UnitLabel:    label,
	}

	if !product.IsCombo {
		res.Requirements = []Requirement{{ProductID: product.ID, Quantity: res.BaseQuantity, UnitLabel: product.BaseUnit}}
		return res, nil
	}

	items, err := r.ListComboItems(ctx, product.ID)
	if err != nil {
		return Resolution{}, err
	}
	if len(items) == 0 {
		return Resolution{}, fmt.Errorf("%w: %s", domain.ErrComboComponentsMissing, product.Name)
	}

	res.Requirements = make([]Requirement, 0, len(items))
	for _, item := range items {
		child, err := r.GetProduct(ctx, item.ChildID)
		if err != nil {
			return Resolution{}, err
		}
		if child.IsCombo && child.Active {
			return Resolution{}, fmt.Errorf("%w: %s contains %s", domain.ErrNestedCombo, product.Name, child.Name)
		}

		childFactor := decimal.NewFromInt(1)
		childLabel := child.BaseUnit
		if item.ChildUnitID != "" {
			unit, err := ownedUnit(ctx, r, child.ID, item.ChildUnitID)
			if err != nil {
				return Resolution{}, err
			}
			childFactor = unit.ConversionFactor
			childLabel = unit.Name
		}

		res.Requirements = append(res.Requirements, Requirement{
			ProductID: child.ID,
			Quantity:  res.BaseQuantity.Mul(item.Quantity).Mul(childFactor),
			UnitLabel: childLabel,
		})
	}
	return res, nil
}

func lineFactor(ctx context.Context, r Reader, product domain.Product, line Line) (decimal.Decimal, string, error) {
	if line.UnitID != "" {
		unit, err := ownedUnit(ctx, r, product.ID, line.UnitID)
		if err != nil {
			return decimal.Zero, "", err
		}
		return unit.ConversionFactor, unit.Name, nil
	}

	if line.ConversionFactor.IsZero() {
		return decimal.NewFromInt(1), product.BaseUnit, nil
	}
	if line.ConversionFactor.IsNegative() {
		return decimal.Zero, "", domain.Invalid("conversion factor must be positive")
	}
	label := product.BaseUnit
	if !line.ConversionFactor.Equal(decimal.NewFromInt(1)) {
		label = fmt.Sprintf("%s x%s", product.BaseUnit, line.ConversionFactor)
	}
	return line.ConversionFactor, label, nil
}

func ownedUnit(ctx context.Context, r Reader, productID string, unitID string) (*domain.ProductUnit, error) {
	unit, err := r.GetProductUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.ProductID != productID {
		return nil, fmt.Errorf("%w: unit %s, product %s", domain.ErrUnitNotOwnedByProduct, unitID, productID)
	}
	if !unit.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnitInactive, unit.Name)
	}
	if !unit.ConversionFactor.IsPositive() {
		return nil, domain.Invalid("unit %s has a non-positive conversion factor", unit.Name)
	}
	return unit, nil
}

// ResolveBarcode matches presentation barcodes before product SKUs.
func ResolveBarcode(ctx context.Context, r BarcodeReader, code string) (domain.BarcodeMatch, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.BarcodeMatch{}, domain.Invalid("barcode is required")
	}

	unit, err := r.FindUnitByBarcode(ctx, code)
	switch {
	case err == nil && unit.Active:
		product, err := r.GetProduct(ctx, unit.ProductID)
		if err != nil {
			return domain.BarcodeMatch{}, err
		}
		return domain.BarcodeMatch{Product: *product, Unit: unit}, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.BarcodeMatch{}, err
	}

	product, err := r.FindProductBySKU(ctx, strings.ToUpper(code))
	if err != nil {
		return domain.BarcodeMatch{}, err
	}
	return domain.BarcodeMatch{Product: *product}, nil
}

// ValidateComboItems checks a combo definition before it is stored.
func ValidateComboItems(ctx context.Context, r Reader, combo domain.Product, items []domain.ComboItemInput) error {
	if !combo.IsCombo {
		return domain.Invalid("product %s is not a combo", combo.SKU)
	}
	if len(items) == 0 {
		return domain.ErrComboComponentsMissing
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ChildID == combo.ID {
			return domain.Invalid("combo %s cannot contain itself", combo.SKU)
		}
		if _, dup := seen[item.ChildID]; dup {
			return domain.Invalid("child %s listed twice", item.ChildID)
		}
		seen[item.ChildID] = struct{}{}
		if !item.Quantity.IsPositive() {
			return domain.Invalid("combo quantity must be positive")
		}

		child, err := r.GetProduct(ctx, item.ChildID)
		if err != nil {
			return err
		}
		if child.IsCombo {
			return fmt.Errorf("%w: %s", domain.ErrNestedCombo, child.Name)
		}
		if item.ChildUnitID != "" {
			if _, err := ownedUnit(ctx, r, child.ID, item.ChildUnitID); err != nil {
				return err
			}
		}
	}
	return nil
}
