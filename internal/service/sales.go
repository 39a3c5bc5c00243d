package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/catalog"
	"kasirledger/backend/internal/credit"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/events"
	"kasirledger/backend/internal/kardex"
	"kasirledger/backend/internal/metrics"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type SaleCompleted struct {
	SaleID     string            `json:"sale_id"`
	Total      decimal.Decimal   `json:"total"`
	Currency   string            `json:"currency"`
	IsCredit   bool              `json:"is_credit"`
	Status     domain.SaleStatus `json:"status"`
	CustomerID string            `json:"customer_id,omitempty"`
}

type SaleReturned struct {
	SaleID        string          `json:"sale_id"`
	RefundTotal   decimal.Decimal `json:"refund_total"`
	CreditReduced decimal.Decimal `json:"credit_reduced"`
}

// CreateSale runs the whole sale in one unit of work: credit gate, then per
// line lock, resolve, check and deduct in request order, then payments. Any
// failure rolls back every line.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	started := time.Now()
	resp, err := s.createSale(ctx, req)
	if err != nil {
		metrics.SalesRejected.WithLabelValues(domain.Code(err)).Inc()
		return domain.SaleResponse{}, err
	}
	metrics.ObserveSale(resp.Sale.Currency, resp.Sale.IsCredit, started)
	return resp, nil
}

func (s *Service) createSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Lines) == 0 {
		return domain.SaleResponse{}, domain.Invalid("sale needs at least one line")
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.IsCredit && req.CustomerID == "" {
		return domain.SaleResponse{}, domain.Invalid("credit sale requires a customer")
	}

	currency := normalizeCurrency(req.Currency, s.refCurrency)
	rate, err := s.saleRate(currency, req.ExchangeRate)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	for i, line := range req.Lines {
		if err := validateLine(line); err != nil {
			return domain.SaleResponse{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	now := s.now()
	sale := domain.Sale{
		ID:           xid.New("sale"),
		CreatedAt:    now,
		Currency:     currency,
		ExchangeRate: rate,
		CustomerID:   req.CustomerID,
		IsCredit:     req.IsCredit,
		CreatedBy:    actorName(ctx),
	}
	payments, err := s.normalizePayments(req.Payments, sale, now)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	var entries []domain.KardexEntry
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]

		var customer *domain.Customer
		if sale.CustomerID != "" {
			var err error
			if customer, err = tx.LockCustomer(ctx, sale.CustomerID); err != nil {
				return err
			}
		}

		if sale.IsCredit {
			quoted, err := s.quoteTotal(ctx, tx, req.Lines)
			if err != nil {
				return err
			}
			snapshot, err := s.creditSnapshot(ctx, tx, *customer)
			if err != nil {
				return err
			}
			if err := credit.Evaluate(snapshot, quoted); err != nil {
				return err
			}
		}

		total := decimal.Zero
		sale.Details = make([]domain.SaleDetail, 0, len(req.Lines))
		for i, line := range req.Lines {
			detail, lineEntries, err := s.sellLine(ctx, tx, sale, i+1, line)
			if err != nil {
				return err
			}
			total = total.Add(detail.Subtotal)
			sale.Details = append(sale.Details, detail)
			entries = append(entries, lineEntries...)
		}
		sale.Total = total.Round(domain.MoneyPlaces)

		sale.Payments = slices.Clone(payments)
		if !sale.IsCredit && len(sale.Payments) == 0 {
			sale.Payments = []domain.SalePayment{{
				ID:           xid.New("pay"),
				SaleID:       sale.ID,
				Amount:       sale.Total.Mul(sale.ExchangeRate).Round(domain.MoneyPlaces),
				Currency:     sale.Currency,
				Method:       domain.PaymentCash,
				ExchangeRate: sale.ExchangeRate,
				CreatedAt:    now,
			}}
		} else if err := settlePayments(&sale); err != nil {
			return err
		}

		if sale.IsCredit {
			sale.PendingBalance = sale.Total.Sub(paidInReference(sale.Payments))
			if !inSaleCents(sale.PendingBalance, sale).IsPositive() {
				sale.PendingBalance = decimal.Zero
			}
			due := credit.DueDate(now, customer.PaymentTermDays)
			sale.DueDate = &due
		}
		sale.Status = domain.SaleStatusPaid
		if sale.PendingBalance.IsPositive() {
			sale.Status = domain.SaleStatusPending
		}
		sale.Paid = sale.Status == domain.SaleStatusPaid

		return tx.CreateSale(ctx, sale)
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.afterStockChange(entries)
	s.publisher.Publish(events.New(events.TypeSaleCompleted, sale.ID, SaleCompleted{
		SaleID:     sale.ID,
		Total:      sale.Total,
		Currency:   sale.Currency,
		IsCredit:   sale.IsCredit,
		Status:     sale.Status,
		CustomerID: sale.CustomerID,
	}))
	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("total=%s,credit=%t,lines=%d,payments=%d", sale.Total, sale.IsCredit, len(sale.Details), len(sale.Payments)))

	return domain.SaleResponse{SaleID: sale.ID, Status: sale.Status, Sale: sale}, nil
}

// sellLine locks the line product and every stocked product it consumes,
// deducts the base quantity and writes one SALE entry per stocked product.
func (s *Service) sellLine(ctx context.Context, tx store.Tx, sale domain.Sale, lineNo int, line domain.SaleLineRequest) (domain.SaleDetail, []domain.KardexEntry, error) {
	product, err := tx.LockProduct(ctx, line.ProductID)
	if err != nil {
		return domain.SaleDetail{}, nil, err
	}
	if !product.Active {
		return domain.SaleDetail{}, nil, domain.Invalid("product %s is inactive", product.SKU)
	}

	res, err := catalog.Resolve(ctx, tx, *product, catalog.Line{
		UnitID:           line.UnitID,
		Quantity:         line.Quantity,
		ConversionFactor: line.ConversionFactor,
	})
	if err != nil {
		return domain.SaleDetail{}, nil, err
	}

	entries := make([]domain.KardexEntry, 0, len(res.Requirements))
	components := make([]domain.SaleDetailComponent, 0, len(res.Requirements))
	for _, req := range res.Requirements {
		target := product
		if req.ProductID != product.ID {
			if target, err = tx.LockProduct(ctx, req.ProductID); err != nil {
				return domain.SaleDetail{}, nil, err
			}
		}

		qty := req.Quantity.Round(domain.QuantityPlaces)
		components = append(components, domain.SaleDetailComponent{ProductID: target.ID, Quantity: qty})
		if target.Stock.LessThan(qty) {
			return domain.SaleDetail{}, nil, &domain.InsufficientStockError{
				ProductID:   target.ID,
				ProductName: target.Name,
				Available:   target.Stock,
				Required:    qty,
			}
		}

		balance := target.Stock.Sub(qty)
		if err := tx.UpdateProductStock(ctx, target.ID, balance); err != nil {
			return domain.SaleDetail{}, nil, err
		}
		description := "sale"
		if product.IsCombo {
			description = "sale of combo " + product.SKU
		}
		entry, err := kardex.Append(ctx, tx, domain.KardexEntry{
			ProductID:   target.ID,
			Type:        domain.MovementSale,
			Quantity:    qty.Neg(),
			Balance:     balance,
			Description: description,
			Reference:   sale.ID,
			CreatedAt:   sale.CreatedAt,
		})
		if err != nil {
			return domain.SaleDetail{}, nil, err
		}
		entries = append(entries, *entry)
	}

	unitPrice, err := s.linePrice(ctx, tx, *product, line, res)
	if err != nil {
		return domain.SaleDetail{}, nil, err
	}
	subtotal, err := lineSubtotal(unitPrice, line)
	if err != nil {
		return domain.SaleDetail{}, nil, err
	}

	return domain.SaleDetail{
		ID:           xid.New("sd"),
		SaleID:       sale.ID,
		LineNo:       lineNo,
		ProductID:    product.ID,
		Quantity:     res.BaseQuantity.Round(domain.QuantityPlaces),
		UnitLabel:    res.UnitLabel,
		UnitPrice:    unitPrice,
		Discount:     line.Discount,
		DiscountType: line.DiscountType,
		Subtotal:     subtotal,
		Components:   components,
	}, entries, nil
}

// quoteTotal prices every line without touching stock so the credit gate
// can run before any deduction.
func (s *Service) quoteTotal(ctx context.Context, tx store.Tx, lines []domain.SaleLineRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range lines {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return decimal.Zero, err
		}
		res, err := catalog.Resolve(ctx, tx, *product, catalog.Line{
			UnitID:           line.UnitID,
			Quantity:         line.Quantity,
			ConversionFactor: line.ConversionFactor,
		})
		if err != nil {
			return decimal.Zero, err
		}
		unitPrice, err := s.linePrice(ctx, tx, *product, line, res)
		if err != nil {
			return decimal.Zero, err
		}
		subtotal, err := lineSubtotal(unitPrice, line)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(subtotal)
	}
	return total.Round(domain.MoneyPlaces), nil
}

// linePrice keeps an explicit unit price. A zero price falls back to the
// presentation price, then to the base sale price times the line factor.
func (s *Service) linePrice(ctx context.Context, tx store.Tx, product domain.Product, line domain.SaleLineRequest, res catalog.Resolution) (decimal.Decimal, error) {
	if line.UnitPrice.IsPositive() {
		return line.UnitPrice.Round(domain.MoneyPlaces), nil
	}
	if line.UnitID != "" {
		unit, err := tx.GetProductUnit(ctx, line.UnitID)
		if err != nil {
			return decimal.Zero, err
		}
		if unit.Price != nil {
			return unit.Price.Round(domain.MoneyPlaces), nil
		}
	}
	factor := res.BaseQuantity.Div(line.Quantity)
	return product.SalePrice.Mul(factor).Round(domain.MoneyPlaces), nil
}

func validateLine(line domain.SaleLineRequest) error {
	if strings.TrimSpace(line.ProductID) == "" {
		return domain.Invalid("product_id is required")
	}
	if !line.Quantity.IsPositive() {
		return domain.Invalid("quantity must be positive")
	}
	if line.UnitPrice.IsNegative() {
		return domain.Invalid("unit_price must not be negative")
	}
	if line.ConversionFactor.IsNegative() {
		return domain.Invalid("conversion_factor must not be negative")
	}
	if line.Discount.IsNegative() {
		return domain.Invalid("discount must not be negative")
	}
	switch line.DiscountType {
	case domain.DiscountNone:
		if !line.Discount.IsZero() {
			return domain.Invalid("discount_type is required with a discount")
		}
	case domain.DiscountPercent:
		if line.Discount.GreaterThan(hundred) {
			return domain.Invalid("percent discount must be between 0 and 100")
		}
	case domain.DiscountFixed:
	default:
		return domain.Invalid("unknown discount_type %q", line.DiscountType)
	}
	return nil
}

// lineSubtotal applies the discount to unitPrice * quantity, never to the
// unit price itself.
func lineSubtotal(unitPrice decimal.Decimal, line domain.SaleLineRequest) (decimal.Decimal, error) {
	gross := unitPrice.Mul(line.Quantity)
	switch line.DiscountType {
	case domain.DiscountPercent:
		gross = gross.Mul(hundred.Sub(line.Discount)).Div(hundred)
	case domain.DiscountFixed:
		if line.Discount.GreaterThan(gross) {
			return decimal.Zero, domain.Invalid("fixed discount %s exceeds line amount %s", line.Discount, gross.Round(domain.MoneyPlaces))
		}
		gross = gross.Sub(line.Discount)
	case domain.DiscountNone:
	}
	return gross.Round(domain.MoneyPlaces), nil
}

// saleRate returns 1 for the reference currency and requires a positive
// rate for any other.
func (s *Service) saleRate(currency string, rate decimal.Decimal) (decimal.Decimal, error) {
	if currency == s.refCurrency {
		return one, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, domain.Invalid("exchange_rate is required for %s", currency)
	}
	return rate, nil
}

// paymentRate prefers the tender's own rate, then the sale rate when the
// tender is in the sale currency.
func (s *Service) paymentRate(currency string, rate decimal.Decimal, sale domain.Sale) (decimal.Decimal, error) {
	if currency == s.refCurrency {
		return one, nil
	}
	if rate.IsPositive() {
		return rate, nil
	}
	if currency == sale.Currency && sale.ExchangeRate.IsPositive() {
		return sale.ExchangeRate, nil
	}
	return decimal.Zero, domain.Invalid("exchange_rate is required for %s", currency)
}

func (s *Service) normalizePayment(in domain.PaymentRequest, sale domain.Sale, at time.Time) (domain.SalePayment, error) {
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(in.Method))))
	if method == "" {
		method = domain.PaymentCash
	}
	if !method.Valid() {
		return domain.SalePayment{}, domain.Invalid("unknown payment method %q", in.Method)
	}
	if !in.Amount.IsPositive() {
		return domain.SalePayment{}, domain.Invalid("payment amount must be positive")
	}
	currency := normalizeCurrency(in.Currency, sale.Currency)
	rate, err := s.paymentRate(currency, in.ExchangeRate, sale)
	if err != nil {
		return domain.SalePayment{}, err
	}
	return domain.SalePayment{
		ID:           xid.New("pay"),
		SaleID:       sale.ID,
		Amount:       in.Amount.Round(domain.MoneyPlaces),
		Currency:     currency,
		Method:       method,
		ExchangeRate: rate,
		CreatedAt:    at,
	}, nil
}

func (s *Service) normalizePayments(in []domain.PaymentRequest, sale domain.Sale, at time.Time) ([]domain.SalePayment, error) {
	out := make([]domain.SalePayment, 0, len(in))
	for i, p := range in {
		payment, err := s.normalizePayment(p, sale, at)
		if err != nil {
			return nil, fmt.Errorf("payment %d: %w", i+1, err)
		}
		out = append(out, payment)
	}
	return out, nil
}

// settlePayments checks the tenders against the sale total in sale currency
// cents. Non-cash tenders may not exceed the total. Any overpayment left is
// change, taken out of the cash tenders starting with the last one, so the
// stored amounts are what stays in the drawer.
func settlePayments(sale *domain.Sale) error {
	paid, nonCash := decimal.Zero, decimal.Zero
	for _, p := range sale.Payments {
		paid = paid.Add(p.ReferenceAmount())
		if p.Method != domain.PaymentCash {
			nonCash = nonCash.Add(p.ReferenceAmount())
		}
	}
	over := paid.Sub(sale.Total)

	if !sale.IsCredit && inSaleCents(over, *sale).IsNegative() {
		return fmt.Errorf("%w: total %s, paid %s", domain.ErrPaymentShortfall, sale.Total, paid.Round(domain.MoneyPlaces))
	}
	if inSaleCents(nonCash.Sub(sale.Total), *sale).IsPositive() {
		return domain.Invalid("non-cash payments %s exceed sale total %s", nonCash.Round(domain.MoneyPlaces), sale.Total)
	}

	for i := len(sale.Payments) - 1; i >= 0 && over.IsPositive(); i-- {
		p := &sale.Payments[i]
		if p.Method != domain.PaymentCash {
			continue
		}
		rate := p.ExchangeRate
		if !rate.IsPositive() {
			rate = one
		}
		change := decimal.Min(over.Mul(rate).Round(domain.MoneyPlaces), p.Amount)
		if !change.IsPositive() {
			continue
		}
		p.Amount = p.Amount.Sub(change)
		p.Change = change
		over = over.Sub(change.Div(rate))
	}
	return nil
}

// inSaleCents expresses a reference amount in the sale currency, rounded
// to the cent.
func inSaleCents(amount decimal.Decimal, sale domain.Sale) decimal.Decimal {
	return amount.Mul(sale.ExchangeRate).Round(domain.MoneyPlaces)
}

func paidInReference(payments []domain.SalePayment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.ReferenceAmount())
	}
	return paid.Round(domain.MoneyPlaces)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	var sale domain.Sale
	err := s.repo.View(ctx, func(tx store.Tx) error {
		found, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		sale = *found
		return nil
	})
	return sale, err
}

// PayCreditSale records a payment against the pending balance of a credit
// sale. The sale turns PAID when nothing is left pending.
func (s *Service) PayCreditSale(ctx context.Context, saleID string, req domain.CreditPaymentRequest) (domain.Sale, error) {
	var sale domain.Sale
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale = *locked
		if !sale.IsCredit {
			return domain.Invalid("sale %s is not a credit sale", sale.ID)
		}
		if sale.Status != domain.SaleStatusPending || !sale.PendingBalance.IsPositive() {
			return domain.Invalid("sale %s has no pending balance", sale.ID)
		}

		payment, err := s.normalizePayment(req.Payment, sale, s.now())
		if err != nil {
			return err
		}
		amount := payment.ReferenceAmount().Round(domain.MoneyPlaces)
		if amount.GreaterThan(sale.PendingBalance) {
			return domain.Invalid("payment %s exceeds pending balance %s", amount, sale.PendingBalance)
		}

		if err := tx.AddSalePayment(ctx, payment); err != nil {
			return err
		}
		sale.PendingBalance = sale.PendingBalance.Sub(amount)
		if !sale.PendingBalance.IsPositive() {
			sale.PendingBalance = decimal.Zero
			sale.Status = domain.SaleStatusPaid
		}
		sale.Paid = sale.Status == domain.SaleStatusPaid
		sale.Payments = append(sale.Payments, payment)
		return tx.UpdateSaleBalance(ctx, sale.ID, sale.PendingBalance, sale.Status)
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "credit_payment", "sale", sale.ID, fmt.Sprintf("pending=%s,status=%s", sale.PendingBalance, sale.Status))
	return sale, nil
}

// ReturnSale restores stock for returned quantities and refunds their share
// of the line subtotal. On a credit sale the refund first reduces the pending
// balance; whatever is left leaves the open drawer as an EXPENSE.
func (s *Service) ReturnSale(ctx context.Context, saleID string, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	if len(req.Lines) == 0 {
		return domain.ReturnResponse{}, domain.Invalid("return needs at least one line")
	}
	for i, line := range req.Lines {
		if !line.Quantity.IsPositive() {
			return domain.ReturnResponse{}, fmt.Errorf("line %d: %w", i+1, domain.Invalid("quantity must be positive"))
		}
	}
	reason := strings.TrimSpace(req.Reason)

	resp := domain.ReturnResponse{SaleID: saleID}
	var entries []domain.KardexEntry
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		entries = entries[:0]
		resp.Returns = resp.Returns[:0]

		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		refundCurrency := normalizeCurrency(req.RefundCurrency, sale.Currency)
		refundRate, err := s.paymentRate(refundCurrency, req.RefundRate, *sale)
		if err != nil {
			return err
		}

		returned, err := tx.ReturnedQuantities(ctx, sale.ID)
		if err != nil {
			return err
		}
		details := make(map[string]domain.SaleDetail, len(sale.Details))
		for _, d := range sale.Details {
			details[d.ID] = d
		}

		now := s.now()
		refund := decimal.Zero
		for _, line := range req.Lines {
			detail, ok := details[line.SaleDetailID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrSaleDetailNotFound, line.SaleDetailID)
			}
			qty := line.Quantity.Round(domain.QuantityPlaces)
			already := returned[detail.ID]
			if already.Add(qty).GreaterThan(detail.Quantity) {
				return fmt.Errorf("%w: detail %s sold %s, returned %s, requested %s",
					domain.ErrReturnExceedsSold, detail.ID, detail.Quantity, already, qty)
			}
			returned[detail.ID] = already.Add(qty)

			lineEntries, err := s.restock(ctx, tx, detail, already, qty, sale.ID, now)
			if err != nil {
				return err
			}
			entries = append(entries, lineEntries...)

			amount := detail.Subtotal.Mul(qty).DivRound(detail.Quantity, domain.MoneyPlaces)
			ret := domain.SaleReturn{
				ID:           xid.New("ret"),
				SaleID:       sale.ID,
				SaleDetailID: detail.ID,
				ProductID:    detail.ProductID,
				Quantity:     qty,
				Amount:       amount,
				Reason:       reason,
				CreatedAt:    now,
			}
			if err := tx.CreateSaleReturn(ctx, ret); err != nil {
				return err
			}
			resp.Returns = append(resp.Returns, ret)
			refund = refund.Add(amount)
		}
		resp.RefundTotal = refund

		cashRefund := refund
		if sale.IsCredit && sale.PendingBalance.IsPositive() {
			reduced := decimal.Min(sale.PendingBalance, refund)
			pending := sale.PendingBalance.Sub(reduced)
			status := domain.SaleStatusPending
			if !pending.IsPositive() {
				status = domain.SaleStatusPaid
			}
			if err := tx.UpdateSaleBalance(ctx, sale.ID, pending, status); err != nil {
				return err
			}
			resp.CreditReduced = reduced
			cashRefund = refund.Sub(reduced)
		}
		if !cashRefund.IsPositive() {
			return nil
		}

		session, err := tx.GetOpenCashSession(ctx)
		if errors.Is(err, domain.ErrNoActiveSession) {
			return nil
		}
		if err != nil {
			return err
		}
		movement := domain.CashMovement{
			ID:          xid.New("cm"),
			SessionID:   session.ID,
			Amount:      cashRefund.Mul(refundRate).Round(domain.MoneyPlaces),
			Currency:    refundCurrency,
			Type:        domain.CashExpense,
			Description: "refund for sale " + sale.ID,
			CreatedAt:   now,
		}
		if err := tx.CreateCashMovement(ctx, movement); err != nil {
			return err
		}
		resp.CashMovementID = movement.ID
		return nil
	})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.afterStockChange(entries)
	s.publisher.Publish(events.New(events.TypeSaleReturned, saleID, SaleReturned{
		SaleID:        saleID,
		RefundTotal:   resp.RefundTotal,
		CreditReduced: resp.CreditReduced,
	}))
	s.logAudit(ctx, "sale_return", "sale", saleID, fmt.Sprintf("refund=%s,credit_reduced=%s,lines=%d", resp.RefundTotal, resp.CreditReduced, len(resp.Returns)))
	return resp, nil
}

// restock puts qty base units of a sold line back onto the products the
// sale consumed. Each component gets its share of what was returned so far
// minus what earlier returns already restored, so a full return restores
// exactly what the sale took.
func (s *Service) restock(ctx context.Context, tx store.Tx, detail domain.SaleDetail, already, qty decimal.Decimal, saleID string, at time.Time) ([]domain.KardexEntry, error) {
	components := detail.Components
	if len(components) == 0 {
		product, err := tx.GetProduct(ctx, detail.ProductID)
		if err != nil {
			return nil, err
		}
		if product.IsCombo {
			return nil, domain.Invalid("sale line %s has no recorded components", detail.ID)
		}
		components = []domain.SaleDetailComponent{{ProductID: detail.ProductID, Quantity: detail.Quantity}}
	}

	entries := make([]domain.KardexEntry, 0, len(components))
	for _, component := range components {
		before := component.Quantity.Mul(already).DivRound(detail.Quantity, domain.QuantityPlaces)
		after := component.Quantity.Mul(already.Add(qty)).DivRound(detail.Quantity, domain.QuantityPlaces)
		q := after.Sub(before)
		if !q.IsPositive() {
			continue
		}

		target, err := tx.LockProduct(ctx, component.ProductID)
		if err != nil {
			return nil, err
		}
		balance := target.Stock.Add(q)
		if err := tx.UpdateProductStock(ctx, target.ID, balance); err != nil {
			return nil, err
		}
		entry, err := kardex.Append(ctx, tx, domain.KardexEntry{
			ProductID:   target.ID,
			Type:        domain.MovementReturn,
			Quantity:    q,
			Balance:     balance,
			Description: "return",
			Reference:   saleID,
			CreatedAt:   at,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}
