package services

import (
	"context"
	"errors"
	"math"
	"sort"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

const defaultDashboardLimit = 5

// DashboardServiceDeps bundles the read-side repositories.
type DashboardServiceDeps struct {
	Products repositories.ProductRepository
	Orders   repositories.OrderRepository
	Users    repositories.UserRepository
}

type dashboardService struct {
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	users    repositories.UserRepository
}

// NewDashboardService wires dependencies into a concrete DashboardService implementation.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Products == nil || deps.Orders == nil || deps.Users == nil {
		return nil, errors.New("dashboard service: product, order and user repositories are required")
	}
	return &dashboardService{products: deps.Products, orders: deps.Orders, users: deps.Users}, nil
}

// Summary returns the overview counters. TotalSales sums the amount of paid orders only.
func (s *dashboardService) Summary(ctx context.Context) (DashboardSummary, error) {
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}
	byCategory, err := s.products.CountByCategory(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}
	products, err := s.products.List(ctx, repositories.ProductListFilter{})
	if err != nil {
		return DashboardSummary{}, err
	}
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return DashboardSummary{}, err
	}

	summary := DashboardSummary{
		TotalUsers:         totalUsers,
		ProductsByCategory: byCategory,
		TotalOrders:        len(orders),
		OrdersByStatus:     make(map[string]int),
		Products:           make([]ProductStock, 0, len(products)),
	}
	for _, order := range orders {
		summary.OrdersByStatus[string(order.Status)]++
		if order.Payment {
			summary.TotalSales += order.Amount
		}
	}
	for _, p := range products {
		summary.Products = append(summary.Products, ProductStock{ID: p.ID, Name: p.Name, SoLuong: p.SoLuong})
	}
	return summary, nil
}

// TopSellers ranks product names by units sold on orders that were not cancelled. Ties keep the
// order in which names were first seen.
func (s *dashboardService) TopSellers(ctx context.Context, limit int) ([]ProductSales, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var ranked []ProductSales
	for _, order := range orders {
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		for _, item := range order.Items {
			i, ok := index[item.Name]
			if !ok {
				i = len(ranked)
				index[item.Name] = i
				ranked = append(ranked, ProductSales{Name: item.Name, Category: item.Category, Image: item.Image})
			}
			ranked[i].UnitsSold += item.Quantity
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].UnitsSold > ranked[j].UnitsSold })
	return truncate(ranked, limit), nil
}

// TopRated averages, per product name, the rating of every review on an order containing that
// product. Averages are rounded to one decimal before ranking.
func (s *dashboardService) TopRated(ctx context.Context, limit int) ([]ProductRating, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, err
	}
	type tally struct {
		rating ProductRating
		stars  int
	}
	index := make(map[string]int)
	var tallies []tally
	for _, order := range orders {
		for _, review := range order.Reviews {
			for _, item := range order.Items {
				i, ok := index[item.Name]
				if !ok {
					i = len(tallies)
					index[item.Name] = i
					tallies = append(tallies, tally{rating: ProductRating{Name: item.Name, Category: item.Category, Image: item.Image}})
				}
				tallies[i].stars += review.Rating
				tallies[i].rating.ReviewCount++
			}
		}
	}
	ranked := make([]ProductRating, 0, len(tallies))
	for _, t := range tallies {
		t.rating.AverageRating = roundOneDecimal(float64(t.stars) / float64(t.rating.ReviewCount))
		ranked = append(ranked, t.rating)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].AverageRating > ranked[j].AverageRating })
	return truncate(ranked, limit), nil
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = defaultDashboardLimit
	}
	if items == nil {
		return []T{}
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
