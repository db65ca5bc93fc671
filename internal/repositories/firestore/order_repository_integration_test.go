//go:build integration

package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/platform/firestore/emulatortest"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

func TestOrderPlacementAgainstEmulator(t *testing.T) {
	provider := emulatortest.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	products, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("NewProductRepository: %v", err)
	}
	users, _ := NewUserRepository(provider)
	carts, _ := NewCartRepository(provider)
	orders, _ := NewOrderRepository(provider)

	now := time.Now().UTC().Truncate(time.Second)
	for _, p := range []domain.Product{
		{ID: "A", Name: "Phone", Price: 1200, GiaNhap: 1000, GiaGoc: 1500, SoLuong: 5, Date: now},
		{ID: "B", Name: "Case", Price: 50, GiaNhap: 20, GiaGoc: 80, SoLuong: 1, Date: now},
	} {
		if err := products.Insert(ctx, p); err != nil {
			t.Fatalf("insert %s: %v", p.ID, err)
		}
	}
	if _, err := users.EnsureProfile(ctx, domain.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if _, err := carts.Mutate(ctx, "u1", func(cart domain.Cart) error {
		cart["A"], cart["B"], cart["C"] = 2, 1, 4
		return nil
	}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	build := func(id string) func(map[string]domain.Product) (domain.Order, error) {
		return func(ps map[string]domain.Product) (domain.Order, error) {
			return domain.Order{ID: id, UserID: "u1", Status: domain.OrderStatusReadyToShip, Date: now,
				Revenue: domain.LineRevenue(ps["A"], 2)}, nil
		}
	}

	_, err = orders.Place(ctx, repositories.OrderPlacement{
		UserID:     "u1",
		Quantities: map[string]int{"A": 2, "B": 2},
		Build:      build("rejected"),
	})
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient || stockErr.ProductID != "B" {
		t.Fatalf("expected insufficient stock for B, got %v", err)
	}
	if a, _ := products.FindByID(ctx, "A"); a.SoLuong != 5 {
		t.Fatalf("rejected placement must not touch stock, A=%d", a.SoLuong)
	}

	placed, err := orders.Place(ctx, repositories.OrderPlacement{
		UserID:     "u1",
		Quantities: map[string]int{"A": 2},
		Build:      build("o1"),
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if placed.Revenue != 400 {
		t.Fatalf("expected revenue 400, got %d", placed.Revenue)
	}
	if a, _ := products.FindByID(ctx, "A"); a.SoLuong != 3 {
		t.Fatalf("expected A stock 3, got %d", a.SoLuong)
	}
	cart, err := carts.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("cart get: %v", err)
	}
	if _, ok := cart["A"]; ok || cart["B"] != 1 || cart["C"] != 4 {
		t.Fatalf("expected only A pruned, got %v", cart)
	}

	stored, err := orders.FindByID(ctx, "o1")
	if err != nil || stored.Status != domain.OrderStatusReadyToShip {
		t.Fatalf("FindByID: %+v %v", stored, err)
	}
	if _, err := orders.FindByID(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
