/*
seed.go - Demo dataset for development and walkthroughs

PURPOSE:
  Loads a small but realistic dataset: a few student accounts with
  wallets in different states and a short menu spanning the categories.
  Idempotent; seeding twice resets the same rows.
*/
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/canteen-engine/canteen"
)

// Seed loads the demo dataset into the store.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotImplemented, "Seeding not supported by this store")
		return
	}

	ctx := r.Context()
	for _, a := range demoAccounts() {
		if err := h.Seeder.SaveAccount(ctx, a); err != nil {
			h.internalError(w, "seed account", err)
			return
		}
	}
	for _, p := range demoProducts() {
		if err := h.Seeder.SaveProduct(ctx, p); err != nil {
			h.internalError(w, "seed product", err)
			return
		}
	}

	h.Log.Info("demo data seeded",
		zap.Int("accounts", len(demoAccounts())),
		zap.Int("products", len(demoProducts())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func demoAccounts() []canteen.Account {
	return []canteen.Account{
		{ID: "admin1", Name: "Admin User", Role: canteen.RoleAdmin, Balance: canteen.MustParseDecimal("0")},
		{ID: "staff1", Name: "Canteen Staff", Role: canteen.RoleStaff, Balance: canteen.MustParseDecimal("0")},
		{ID: "stu1", Name: "Alice Johnson", Token: "2024001", Role: canteen.RoleStudent, Balance: canteen.MustParseDecimal("50.00")},
		{ID: "stu2", Name: "Bob Smith", Token: "2024002", Role: canteen.RoleStudent, Balance: canteen.MustParseDecimal("15.50")},
	}
}

func demoProducts() []canteen.Product {
	return []canteen.Product{
		{ID: "p1", Name: "Chicken Sandwich", Price: canteen.MustParseDecimal("55.00"), Category: "Food", Description: "Grilled chicken with lettuce", Available: true, Stock: 25},
		{ID: "p2", Name: "Veggie Wrap", Price: canteen.MustParseDecimal("45.00"), Category: "Food", Description: "Fresh vegetables in a tortilla", Available: true, Stock: 15},
		{ID: "p3", Name: "Apple Juice", Price: canteen.MustParseDecimal("20.00"), Category: "Drink", Description: "100% pure apple juice", Available: true, Stock: 50},
		{ID: "p4", Name: "Chocolate Chip Cookie", Price: canteen.MustParseDecimal("15.00"), Category: "Snack", Description: "Freshly baked daily", Available: true, Stock: 40},
		{ID: "p5", Name: "Water Bottle", Price: canteen.MustParseDecimal("10.00"), Category: "Drink", Description: "500ml spring water", Available: true, Stock: 100},
	}
}
