package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

// Registry bundles every Firestore repository over one provider.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	orders   *OrderRepository
	carts    *CartRepository
	users    *UserRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. Extra readiness checks are appended to the Firestore ping.
func NewRegistry(provider *pfirestore.Provider, checks ...repositories.DependencyCheck) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	all := append([]repositories.DependencyCheck{{Name: "firestore", Check: provider.Ping}}, checks...)
	health, err := repositories.NewDependencyHealthRepository(all)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		carts:    carts,
		users:    users,
		health:   health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Users() repositories.UserRepository { return r.users }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
