package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/cashdrawer"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/events"
	"kasirledger/backend/internal/metrics"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

type CashSessionClosed struct {
	SessionID  string                       `json:"session_id"`
	Currencies []domain.CashSessionCurrency `json:"currencies"`
}

// OpenCashSession starts the single drawer session. The store rejects a
// second OPEN session with domain.ErrSessionAlreadyOpen.
func (s *Service) OpenCashSession(ctx context.Context, req domain.CashSessionOpenRequest) (domain.CashSession, error) {
	initial, err := normalizeAmounts("initial_amounts", req.InitialAmounts)
	if err != nil {
		return domain.CashSession{}, err
	}

	session := domain.CashSession{
		ID:       xid.New("cs"),
		Status:   domain.CashSessionOpen,
		OpenedAt: s.now(),
		OpenedBy: actorName(ctx),
	}
	for _, currency := range sortedKeys(initial) {
		session.Currencies = append(session.Currencies, domain.CashSessionCurrency{
			SessionID: session.ID,
			Currency:  currency,
			Initial:   initial[currency],
		})
	}

	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateCashSession(ctx, session)
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	metrics.CashSessionsOpen.Set(1)
	s.logAudit(ctx, "cash_session_open", "cash_session", session.ID, fmt.Sprintf("currencies=%d", len(session.Currencies)))
	return session, nil
}

// CloseCashSession reconciles the drawer per currency over the cash payments
// taken between opening and now plus the session's own movements.
func (s *Service) CloseCashSession(ctx context.Context, sessionID string, req domain.CashSessionCloseRequest) (domain.CashSessionCloseResponse, error) {
	reported, err := normalizeAmounts("reported_amounts", req.ReportedAmounts)
	if err != nil {
		return domain.CashSessionCloseResponse{}, err
	}

	var session domain.CashSession
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockCashSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if locked.Status != domain.CashSessionOpen {
			return fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotOpen, locked.ID, locked.Status)
		}

		now := s.now()
		cashSales, err := tx.SumCashPayments(ctx, locked.OpenedAt, now)
		if err != nil {
			return err
		}
		movements, err := tx.ListCashMovements(ctx, locked.ID)
		if err != nil {
			return err
		}
		initial := make(map[string]decimal.Decimal, len(locked.Currencies))
		for _, c := range locked.Currencies {
			initial[c.Currency] = c.Initial
		}

		results := cashdrawer.Reconcile(initial, cashSales, movements, reported)
		session = *locked
		session.Status = domain.CashSessionClosed
		session.ClosedAt = &now
		session.Currencies = cashdrawer.SessionCurrencies(session.ID, results)
		cashdrawer.ApplyLegacyTotals(&session, results, s.refCurrency, s.localCurrency)
		return tx.CloseCashSession(ctx, session)
	})
	if err != nil {
		return domain.CashSessionCloseResponse{}, err
	}

	metrics.CashSessionsOpen.Set(0)
	for _, c := range session.Currencies {
		metrics.ObserveCloseDifference(c.Currency, c.Difference)
	}
	s.publisher.Publish(events.New(events.TypeCashSessionClosed, session.ID, CashSessionClosed{
		SessionID:  session.ID,
		Currencies: session.Currencies,
	}))
	s.logAudit(ctx, "cash_session_close", "cash_session", session.ID, fmt.Sprintf("difference_ref=%s,difference_local=%s", session.DifferenceUSD, session.DifferenceLocal))
	return domain.CashSessionCloseResponse{Session: session, Currencies: session.Currencies}, nil
}

// AddCashMovement books a drawer movement. Without a session id it goes to
// the open session, or fails with domain.ErrNoActiveSession.
func (s *Service) AddCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	movementType := domain.CashMovementType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !movementType.Valid() {
		return domain.CashMovement{}, domain.Invalid("unknown cash movement type %q", req.Type)
	}
	if !req.Amount.IsPositive() {
		return domain.CashMovement{}, domain.Invalid("amount must be positive")
	}

	movement := domain.CashMovement{
		ID:          xid.New("cm"),
		Amount:      req.Amount.Round(domain.MoneyPlaces),
		Currency:    normalizeCurrency(req.Currency, s.refCurrency),
		Type:        movementType,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.now(),
	}

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var session *domain.CashSession
		var err error
		if id := strings.TrimSpace(req.SessionID); id != "" {
			session, err = tx.LockCashSession(ctx, id)
		} else {
			session, err = tx.GetOpenCashSession(ctx)
		}
		if err != nil {
			return err
		}
		if session.Status != domain.CashSessionOpen {
			return fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotOpen, session.ID, session.Status)
		}
		movement.SessionID = session.ID
		return tx.CreateCashMovement(ctx, movement)
	})
	if err != nil {
		return domain.CashMovement{}, err
	}

	s.logAudit(ctx, "cash_movement", "cash_session", movement.SessionID, fmt.Sprintf("type=%s,amount=%s,currency=%s", movement.Type, movement.Amount, movement.Currency))
	return movement, nil
}

func (s *Service) GetActiveCashSession(ctx context.Context) (domain.CashSession, error) {
	var session domain.CashSession
	err := s.repo.View(ctx, func(tx store.Tx) error {
		open, err := tx.GetOpenCashSession(ctx)
		if err != nil {
			return err
		}
		session = *open
		return nil
	})
	return session, err
}

func (s *Service) ListCashSessionHistory(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit < 1 {
		limit = 30
	}

	var sessions []domain.CashSession
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		sessions, err = tx.ListClosedCashSessions(ctx, limit)
		return err
	})
	return sessions, err
}

func (s *Service) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	var movements []domain.CashMovement
	err := s.repo.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCashSession(ctx, sessionID); err != nil {
			return err
		}
		var err error
		movements, err = tx.ListCashMovements(ctx, sessionID)
		return err
	})
	return movements, err
}

// normalizeAmounts uppercases currency codes, merges duplicates and rejects
// negative amounts.
func normalizeAmounts(field string, in map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(in))
	for currency, amount := range in {
		code := strings.ToUpper(strings.TrimSpace(currency))
		if code == "" {
			return nil, domain.Invalid("%s has an empty currency", field)
		}
		if amount.IsNegative() {
			return nil, domain.Invalid("%s for %s must not be negative", field, code)
		}
		out[code] = out[code].Add(amount.Round(domain.MoneyPlaces))
	}
	return out, nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
