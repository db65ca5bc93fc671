package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/khotaikhoan/storefront/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates missing identifiers or an empty removal list.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartUserNotFound indicates the owning user document does not exist.
	ErrCartUserNotFound = errors.New("cart: user not found")
	// ErrCartAlreadyInCart is returned when adding a product that already has an entry.
	ErrCartAlreadyInCart = errors.New("cart: product already in cart")
	// ErrCartNotInCart is returned when removing a product that has no entry.
	ErrCartNotInCart = errors.New("cart: product not in cart")
)

// CartServiceDeps wires the repository and logger for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo   repositories.CartRepository
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{repo: deps.Repository, logger: logger}, nil
}

// AddItem inserts productID with quantity 1.
func (s *cartService) AddItem(ctx context.Context, userID, productID string) error {
	userID, productID, err := cartKeys(userID, productID)
	if err != nil {
		return err
	}
	_, err = s.repo.Mutate(ctx, userID, func(cart Cart) error {
		if _, ok := cart[productID]; ok {
			return ErrCartAlreadyInCart
		}
		cart[productID] = 1
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "cart.item.added", map[string]any{"userId": userID, "productId": productID})
	return nil
}

// UpdateQuantity overwrites the entry. The quantity is stored as given; reads drop non-positive
// values.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error {
	userID, productID, err := cartKeys(userID, productID)
	if err != nil {
		return err
	}
	_, err = s.repo.Mutate(ctx, userID, func(cart Cart) error {
		cart[productID] = quantity
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "cart.item.updated", map[string]any{"userId": userID, "productId": productID, "quantity": quantity})
	return nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return cart, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) error {
	userID, productID, err := cartKeys(userID, productID)
	if err != nil {
		return err
	}
	_, err = s.repo.Mutate(ctx, userID, func(cart Cart) error {
		if _, ok := cart[productID]; !ok {
			return ErrCartNotInCart
		}
		delete(cart, productID)
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "cart.item.removed", map[string]any{"userId": userID, "productId": productID})
	return nil
}

// RemoveItems deletes every listed key; keys that are not in the cart are ignored.
func (s *cartService) RemoveItems(ctx context.Context, userID string, productIDs []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	ids := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no items to remove", ErrCartInvalidInput)
	}
	if err := s.repo.RemoveItems(ctx, userID, ids); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "cart.items.removed", map[string]any{"userId": userID, "count": len(ids)})
	return nil
}

func (s *cartService) mapError(err error) error {
	switch {
	case errors.Is(err, ErrCartAlreadyInCart):
		return ErrCartAlreadyInCart
	case errors.Is(err, ErrCartNotInCart):
		return ErrCartNotInCart
	case isRepoNotFound(err):
		return ErrCartUserNotFound
	default:
		return err
	}
}

func cartKeys(userID, productID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return "", "", fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	return userID, productID, nil
}
