package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirledger/backend/internal/cache"
	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/events"
	"kasirledger/backend/internal/metrics"
	"kasirledger/backend/internal/store"
	"kasirledger/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	ReferenceCurrency string
	LocalCurrency     string
	CatalogCacheTTL   time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Service struct {
	repo          store.Repository
	catalogCache  cache.CatalogCache
	publisher     events.Publisher
	refCurrency   string
	localCurrency string
	cacheTTL      time.Duration
	now           func() time.Time
}

func New(repo store.Repository, catalogCache cache.CatalogCache, publisher events.Publisher, opts Options) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if opts.ReferenceCurrency == "" {
		opts.ReferenceCurrency = "USD"
	}
	if opts.LocalCurrency == "" {
		opts.LocalCurrency = "VES"
	}
	if opts.CatalogCacheTTL <= 0 {
		opts.CatalogCacheTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:          repo,
		catalogCache:  catalogCache,
		publisher:     publisher,
		refCurrency:   strings.ToUpper(opts.ReferenceCurrency),
		localCurrency: strings.ToUpper(opts.LocalCurrency),
		cacheTTL:      opts.CatalogCacheTTL,
		now:           func() time.Time { return opts.Now().UTC() },
	}
}

func (s *Service) ReferenceCurrency() string {
	return s.refCurrency
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}

// normalizeCurrency uppercases code and falls back when it is blank.
func normalizeCurrency(code string, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}

// afterStockChange records metrics and queues one stock.changed event per
// kardex entry. Runs only after commit.
func (s *Service) afterStockChange(entries []domain.KardexEntry) {
	for _, entry := range entries {
		metrics.StockMovements.WithLabelValues(string(entry.Type)).Inc()
		s.publisher.Publish(events.StockChangedFrom(entry))
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateAuditLog(ctx, domain.AuditLog{
			ID:            xid.New("audit"),
			ActorUsername: actor.Username,
			ActorRole:     actor.Role,
			Action:        action,
			EntityType:    entityType,
			EntityID:      entityID,
			Detail:        detail,
			CreatedAt:     s.now(),
		})
	})
	if err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, domain.Invalid("date must be YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	var logs []domain.AuditLog
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		logs, err = tx.ListAuditLogs(ctx, from, to, limit)
		return err
	})
	return logs, err
}

func nonNegative(name string, v decimal.Decimal) error {
	if v.IsNegative() {
		return domain.Invalid("%s must not be negative", name)
	}
	return nil
}
