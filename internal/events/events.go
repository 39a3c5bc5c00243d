// Package events carries post-commit notifications out of the service layer.
// Publishing never blocks a caller and delivery failures never reach it.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/xid"
)

type Type string

const (
	TypeSaleCompleted         Type = "sale.completed"
	TypeSaleReturned          Type = "sale.returned"
	TypeStockChanged          Type = "stock.changed"
	TypePurchaseOrderReceived Type = "purchase_order.received"
	TypeCashSessionClosed     Type = "cash_session.closed"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

func New(t Type, entityID string, payload any) Event {
	return Event{
		ID:         xid.New("evt"),
		Type:       t,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher is what the service layer sees. Publish reports whether the
// event was queued.
type Publisher interface {
	Publish(event Event) bool
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ Event) bool { return true }

type StockChanged struct {
	ProductID string              `json:"product_id"`
	Movement  domain.MovementType `json:"movement"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Balance   decimal.Decimal     `json:"balance"`
}

func StockChangedFrom(entry domain.KardexEntry) Event {
	return New(TypeStockChanged, entry.ProductID, StockChanged{
		ProductID: entry.ProductID,
		Movement:  entry.Type,
		Quantity:  entry.Quantity,
		Balance:   entry.Balance,
	})
}
