package memory

import (
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirledger/backend/internal/domain"
)

// seedUsers builds the dev accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_CASHIER_PASSWORD, falling back to fixed dev values.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with dev users and a small demo catalog: two
// simple products, a 12-pack presentation and a breakfast combo.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	now := time.Now().UTC()
	st := s.data
	for _, p := range []domain.Product{
		{ID: "prd-coffee", SKU: "COF-250", Name: "Coffee 250g", BaseUnit: "bag", Stock: decimal.NewFromInt(40), CostPrice: decimal.RequireFromString("3.2000"), SalePrice: decimal.RequireFromString("5.50")},
		{ID: "prd-milk", SKU: "MLK-1L", Name: "Milk 1L", BaseUnit: "carton", Stock: decimal.NewFromInt(120), CostPrice: decimal.RequireFromString("0.8000"), SalePrice: decimal.RequireFromString("1.25")},
		{ID: "prd-breakfast", SKU: "CMB-BRK", Name: "Breakfast pack", BaseUnit: "pack", SalePrice: decimal.RequireFromString("6.25"), IsCombo: true},
	} {
		p.Active = true
		p.CreatedAt = now
		st.products[p.ID] = p
		if p.Stock.IsPositive() {
			st.kardexSeq++
			st.kardex = append(st.kardex, domain.KardexEntry{
				ID:          st.kardexSeq,
				ProductID:   p.ID,
				Type:        domain.MovementAdjustmentIn,
				Quantity:    p.Stock,
				Balance:     p.Stock,
				Description: "opening stock",
				CreatedAt:   now,
			})
		}
	}

	st.units["unit-milk-12"] = domain.ProductUnit{
		ID:               "unit-milk-12",
		ProductID:        "prd-milk",
		Name:             "case of 12",
		ConversionFactor: decimal.NewFromInt(12),
		Barcode:          "7591234000012",
		Active:           true,
	}
	st.combos["prd-breakfast"] = []domain.ComboItem{
		{ComboID: "prd-breakfast", ChildID: "prd-coffee", Quantity: decimal.NewFromInt(1)},
		{ComboID: "prd-breakfast", ChildID: "prd-milk", Quantity: decimal.NewFromInt(2)},
	}
	return s
}
