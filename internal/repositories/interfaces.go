package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
)

// ErrNotFound is returned by repositories that do not expose a RepositoryError for a missing
// document (e.g. in-memory fakes).
var ErrNotFound = errors.New("repositories: not found")

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Carts() CartRepository
	Users() UserRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err is a RepositoryError flagged not-found or ErrNotFound.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a retryable write conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether the backend was temporarily unreachable.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// ProductRepository persists catalog entries.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	// Update applies only the supplied fields so concurrent stock decrements are never
	// overwritten.
	Update(ctx context.Context, productID string, update ProductUpdate) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	CountByCategory(ctx context.Context) (map[string]int, error)
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	BestsellerOnly bool
}

// ProductUpdate carries optional fields; nil means unchanged.
type ProductUpdate struct {
	Name        *string
	Description *string
	ThongTin    *string
	ThuongHieu  *string
	Category    *string
	Price       *int64
	GiaNhap     *int64
	GiaGoc      *int64
	SoLuong     *int
	Bestseller  *bool
	Images      []string
	Date        time.Time
}

// CartRepository stores the cartData map of a user document.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	// Mutate runs fn against the current cart inside a transaction and persists the result.
	Mutate(ctx context.Context, userID string, fn func(cart domain.Cart) error) (domain.Cart, error)
	// RemoveItems deletes the given keys. Missing keys are ignored.
	RemoveItems(ctx context.Context, userID string, productIDs []string) error
}

// UserRepository stores storefront profiles, wishlists and saved addresses.
type UserRepository interface {
	EnsureProfile(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, userID string) (domain.User, error)
	// List returns every profile, newest first.
	List(ctx context.Context) ([]domain.User, error)
	// Mutate runs fn inside a transaction and persists profile, wishlist and addresses. The cart
	// is owned by CartRepository and left untouched.
	Mutate(ctx context.Context, userID string, fn func(user *domain.User) error) (domain.User, error)
	Count(ctx context.Context) (int64, error)
}

// OrderRepository persists orders and performs the atomic placement.
type OrderRepository interface {
	Place(ctx context.Context, placement OrderPlacement) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// Mutate runs fn inside a transaction on the order document and persists the result.
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
}

// OrderPlacement describes one checkout. Quantities is aggregated per product. Build receives the
// live product state read inside the transaction and returns the order to persist; it may run
// more than once when the transaction retries.
type OrderPlacement struct {
	UserID     string
	Quantities map[string]int
	Build      func(products map[string]domain.Product) (domain.Order, error)
}

// OrderListFilter restricts listings to a user; empty means every order. Results are newest first.
type OrderListFilter struct {
	UserID string
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
