// Package costing holds the weighted-average cost rule applied on goods receipt.
package costing

import (
	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
)

// WeightedAverage recomputes the unit cost after receiving receivedQty units at
// unitCost into oldStock units valued at oldCost. oldStock must be read before
// the stock increment.
func WeightedAverage(oldCost, oldStock, unitCost, receivedQty decimal.Decimal) decimal.Decimal {
	if !receivedQty.IsPositive() {
		return oldCost
	}
	if !oldStock.IsPositive() {
		return unitCost.Round(domain.CostPlaces)
	}
	value := oldCost.Mul(oldStock).Add(unitCost.Mul(receivedQty))
	cost := value.DivRound(oldStock.Add(receivedQty), domain.CostPlaces)
	if cost.IsNegative() {
		return decimal.Zero
	}
	return cost
}
