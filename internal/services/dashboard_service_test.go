package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/khotaikhoan/storefront/internal/domain"
)

func newDashboardFixture(t *testing.T) DashboardService {
	t.Helper()
	store := newMemoryStore()
	seedCatalog(store)
	store.putUser(domain.User{ID: "u1"})
	store.putUser(domain.User{ID: "u2"})

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store.putOrder(domain.Order{
		ID:      orderID1,
		Items:   []domain.OrderItem{{Name: "Phone", Quantity: 2}, {Name: "Cable", Quantity: 1}},
		Amount:  12000,
		Payment: true,
		Status:  domain.OrderStatusDelivered,
		Date:    day,
		Reviews: []domain.Review{{ID: reviewID1, Rating: 5}, {ID: reviewID2, Rating: 4}},
	})
	store.putOrder(domain.Order{
		ID:      orderID2,
		Items:   []domain.OrderItem{{Name: "Cable", Quantity: 4}},
		Amount:  7000,
		Status:  domain.OrderStatusReadyToShip,
		Date:    day.Add(time.Hour),
		Reviews: []domain.Review{{ID: reviewID1, Rating: 3}},
	})
	store.putOrder(domain.Order{
		ID:      orderID3,
		Items:   []domain.OrderItem{{Name: "Phone", Quantity: 9}},
		Amount:  9000,
		Payment: true,
		Status:  domain.OrderStatusCancelled,
		Date:    day.Add(2 * time.Hour),
	})

	svc, err := NewDashboardService(DashboardServiceDeps{
		Products: store.Products(),
		Orders:   store.Orders(),
		Users:    store.Users(),
	})
	require.NoError(t, err)
	return svc
}

func TestDashboardServiceSummary(t *testing.T) {
	svc := newDashboardFixture(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.TotalUsers)
	assert.Equal(t, 3, summary.TotalOrders)
	assert.EqualValues(t, 21000, summary.TotalSales, "only paid orders count")
	assert.Equal(t, map[string]int{"phone": 1, "accessory": 1}, summary.ProductsByCategory)
	assert.Equal(t, 1, summary.OrdersByStatus[string(domain.OrderStatusCancelled)])
	assert.Len(t, summary.Products, 2)
}

func TestDashboardServiceTopSellersSkipsCancelledOrders(t *testing.T) {
	svc := newDashboardFixture(t)

	sellers, err := svc.TopSellers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	assert.Equal(t, "Cable", sellers[0].Name)
	assert.Equal(t, 5, sellers[0].UnitsSold)
	assert.Equal(t, "Phone", sellers[1].Name)
	assert.Equal(t, 2, sellers[1].UnitsSold)

	limited, err := svc.TopSellers(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDashboardServiceTopRated(t *testing.T) {
	svc := newDashboardFixture(t)

	rated, err := svc.TopRated(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rated, 2)
	assert.Equal(t, "Phone", rated[0].Name)
	assert.Equal(t, 4.5, rated[0].AverageRating)
	assert.Equal(t, 2, rated[0].ReviewCount)
	assert.Equal(t, "Cable", rated[1].Name)
	assert.Equal(t, 4.0, rated[1].AverageRating)
	assert.Equal(t, 3, rated[1].ReviewCount)
}

func TestDashboardServiceTopRatedKeepsFirstSeenOrderOnTies(t *testing.T) {
	store := newMemoryStore()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store.putOrder(domain.Order{ID: orderID1, Date: day.Add(time.Hour), Items: []domain.OrderItem{{Name: "Zeta"}}, Reviews: []domain.Review{{Rating: 4}}})
	store.putOrder(domain.Order{ID: orderID2, Date: day, Items: []domain.OrderItem{{Name: "Alpha"}}, Reviews: []domain.Review{{Rating: 4}}})
	svc, err := NewDashboardService(DashboardServiceDeps{Products: store.Products(), Orders: store.Orders(), Users: store.Users()})
	require.NoError(t, err)

	rated, err := svc.TopRated(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, rated, 2)
	assert.Equal(t, "Zeta", rated[0].Name, "newest order is seen first")
	assert.Equal(t, "Alpha", rated[1].Name)
}

func TestDashboardServiceEmptyStore(t *testing.T) {
	store := newMemoryStore()
	svc, err := NewDashboardService(DashboardServiceDeps{Products: store.Products(), Orders: store.Orders(), Users: store.Users()})
	require.NoError(t, err)

	sellers, err := svc.TopSellers(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, sellers)
	assert.Empty(t, sellers)
}
