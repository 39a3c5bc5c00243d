package service

import (
	"context"
	"fmt"
	"strings"

	"kasirledger/backend/internal/credit"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.Invalid("customer name is required")
	}
	if err := nonNegative("credit_limit", req.CreditLimit); err != nil {
		return domain.Customer{}, err
	}
	if req.PaymentTermDays < 0 {
		return domain.Customer{}, domain.Invalid("payment_term_days must not be negative")
	}

	customer := domain.Customer{
		ID:              xid.New("cus"),
		Name:            name,
		CreditLimit:     req.CreditLimit.Round(domain.MoneyPlaces),
		PaymentTermDays: req.PaymentTermDays,
		CreatedAt:       s.now(),
	}
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateCustomer(ctx, customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", customer.ID, fmt.Sprintf("limit=%s,term=%d", customer.CreditLimit, customer.PaymentTermDays))
	return customer, nil
}

func (s *Service) SetCustomerBlocked(ctx context.Context, id string, blocked bool) (domain.Customer, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}

	var customer domain.Customer
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.LockCustomer(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SetCustomerBlocked(ctx, id, blocked); err != nil {
			return err
		}
		customer = *current
		customer.Blocked = blocked
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_block", "customer", id, fmt.Sprintf("blocked=%t", blocked))
	return customer, nil
}

func (s *Service) GetCustomerCredit(ctx context.Context, id string) (domain.CreditSummary, error) {
	var summary domain.CreditSummary
	err := s.repo.View(ctx, func(tx store.Tx) error {
		customer, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := s.creditSnapshot(ctx, tx, *customer)
		if err != nil {
			return err
		}
		summary = credit.Summary(*customer, snapshot)
		return nil
	})
	return summary, err
}

func (s *Service) creditSnapshot(ctx context.Context, tx store.Tx, customer domain.Customer) (credit.Snapshot, error) {
	unpaid, overdue, err := tx.CustomerCredit(ctx, customer.ID, s.now())
	if err != nil {
		return credit.Snapshot{}, err
	}
	return credit.Snapshot{
		Blocked:       customer.Blocked,
		CreditLimit:   customer.CreditLimit,
		UnpaidBalance: unpaid,
		OverdueCount:  overdue,
	}, nil
}
