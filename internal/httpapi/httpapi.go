package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kasirledger/backend/internal/domain"
	"kasirledger/backend/internal/service"
)

type Options struct {
	AllowedOrigins []string
	MetricsEnabled bool
}

type API struct {
	service      *service.Service
	auth         *AuthManager
	opts         Options
	loginLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	return &API{
		service:      svc,
		auth:         auth,
		opts:         opts,
		loginLimiter: newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)

	r.Get("/healthz", a.handleHealth)
	if a.opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleCashier, RoleAdmin))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Get("/{id}", a.handleGetProduct)
				r.Post("/{id}/units", a.handleAddProductUnit)
				r.Put("/{id}/combo-items", a.handleSetComboItems)
				r.Get("/{id}/kardex", a.handleListKardex)
				r.Get("/{id}/stock-at", a.handleStockAt)
			})
			r.Get("/barcodes/{code}", a.handleResolveBarcode)

			r.Post("/inventory/adjustments", a.handleAdjustStock)
			r.Post("/inventory/counts", a.handleCountStock)

			r.Route("/customers", func(r chi.Router) {
				r.Post("/", a.handleCreateCustomer)
				r.Post("/{id}/block", a.handleSetCustomerBlocked)
				r.Get("/{id}/credit", a.handleCustomerCredit)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", a.handleCreateSale)
				r.Get("/{id}", a.handleGetSale)
				r.Post("/{id}/payments", a.handlePayCreditSale)
				r.Post("/{id}/returns", a.handleReturnSale)
			})

			r.Route("/purchase-orders", func(r chi.Router) {
				r.Get("/", a.handleListPurchaseOrders)
				r.Post("/", a.handleCreatePurchaseOrder)
				r.Get("/{id}", a.handleGetPurchaseOrder)
				r.Post("/{id}/receive", a.handleReceivePurchaseOrder)
				r.Post("/{id}/cancel", a.handleCancelPurchaseOrder)
			})

			r.Route("/cash-sessions", func(r chi.Router) {
				r.Post("/", a.handleOpenCashSession)
				r.Get("/active", a.handleActiveCashSession)
				r.Get("/history", a.handleCashSessionHistory)
				r.Post("/{id}/close", a.handleCloseCashSession)
				r.Get("/{id}/movements", a.handleListCashMovements)
			})
			r.Post("/cash-movements", a.handleAddCashMovement)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth(RoleAdmin))
				r.Get("/audit-logs", a.handleAuditLogs)
				r.Get("/users", a.handleListUsers)
				r.Post("/users", a.handleCreateUser)
			})
		})
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the bearer token and puts the actor on the request
// context. An empty role list admits any authenticated actor.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, domain.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return domain.Invalid("malformed request body: %v", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRejected:
		return http.StatusUnprocessableEntity
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	case domain.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, err)
}

// errorDetails exposes the figures carried by typed rejections so clients can
// render a precise message.
func errorDetails(err error) map[string]any {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return map[string]any{
			"product_id":   stockErr.ProductID,
			"product_name": stockErr.ProductName,
			"available":    stockErr.Available,
			"required":     stockErr.Required,
		}
	}
	var limitErr *domain.CreditLimitExceededError
	if errors.As(err, &limitErr) {
		return map[string]any{
			"current_debt": limitErr.CurrentDebt,
			"limit":        limitErr.Limit,
			"available":    limitErr.Available,
			"requested":    limitErr.Requested,
		}
	}
	var overdueErr *domain.OverdueInvoicesError
	if errors.As(err, &overdueErr) {
		return map[string]any{"count": overdueErr.Count}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry driver or SQL text.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] ERROR: status=%d: %v", status, err)
		msg = http.StatusText(status)
	}
	code := domain.Code(err)
	switch status {
	case http.StatusUnauthorized:
		code = "unauthorized"
	case http.StatusTooManyRequests:
		code = "too_many_requests"
	}
	body := map[string]any{
		"error": msg,
		"code":  code,
	}
	if details := errorDetails(err); details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
