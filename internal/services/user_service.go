package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates missing identifiers or an incomplete address.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the profile document does not exist yet.
	ErrUserNotFound = errors.New("user: not found")
	// ErrWishlistAlreadyExists is returned when the product is already saved.
	ErrWishlistAlreadyExists = errors.New("wishlist: product already saved")
	// ErrWishlistNotFound is returned when removing a product that is not saved.
	ErrWishlistNotFound = errors.New("wishlist: product not saved")
	// ErrAddressNotFound is returned when removing an unknown address id.
	ErrAddressNotFound = errors.New("address: not found")
)

// UserServiceDeps wires the profile repository.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	svc := &userService{
		users:  deps.Users,
		clock:  deps.Clock,
		newID:  deps.IDGenerator,
		logger: deps.Logger,
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.newID == nil {
		svc.newID = newULID
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	return svc, nil
}

// EnsureProfile creates the users document for a verified identity, or refreshes its email and
// name when it already exists.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	now := s.clock().UTC()
	user, err := s.users.EnsureProfile(ctx, domain.User{
		ID:        userID,
		Email:     strings.TrimSpace(cmd.Email),
		Name:      cleanText(cmd.Name),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return User{}, s.mapError(err)
	}
	s.logger(ctx, "users.profile.ensured", map[string]any{"userId": userID})
	return user, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	return s.find(ctx, userID)
}

func (s *userService) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	if users == nil {
		return []User{}, nil
	}
	return users, nil
}

func (s *userService) AddToWishlist(ctx context.Context, userID, productID string) error {
	userID, productID, err := userKeys(userID, productID)
	if err != nil {
		return err
	}
	_, err = s.users.Mutate(ctx, userID, func(user *domain.User) error {
		if slices.Contains(user.Wishlist, productID) {
			return ErrWishlistAlreadyExists
		}
		user.Wishlist = append(user.Wishlist, productID)
		user.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "wishlist.item.added", map[string]any{"userId": userID, "productId": productID})
	return nil
}

func (s *userService) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	userID, productID, err := userKeys(userID, productID)
	if err != nil {
		return err
	}
	_, err = s.users.Mutate(ctx, userID, func(user *domain.User) error {
		idx := slices.Index(user.Wishlist, productID)
		if idx < 0 {
			return ErrWishlistNotFound
		}
		user.Wishlist = slices.Delete(user.Wishlist, idx, idx+1)
		user.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "wishlist.item.removed", map[string]any{"userId": userID, "productId": productID})
	return nil
}

func (s *userService) GetWishlist(ctx context.Context, userID string) ([]string, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Wishlist == nil {
		return []string{}, nil
	}
	return []string(user.Wishlist), nil
}

// AddAddress assigns a new id to address and returns the full list.
func (s *userService) AddAddress(ctx context.Context, userID string, address Address) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	address = normalizeAddress(address)
	if address.Street == "" || address.Phone == "" {
		return nil, fmt.Errorf("%w: street and phone are required", ErrUserInvalidInput)
	}
	address.ID = s.newID()

	user, err := s.users.Mutate(ctx, userID, func(user *domain.User) error {
		user.Addresses = append(user.Addresses, address)
		user.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.logger(ctx, "addresses.added", map[string]any{"userId": userID, "addressId": address.ID})
	return addressList(user.Addresses), nil
}

func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return addressList(user.Addresses), nil
}

// RemoveAddress deletes the address with addressID and returns the remaining list.
func (s *userService) RemoveAddress(ctx context.Context, userID, addressID string) ([]Address, error) {
	userID, addressID, err := userKeys(userID, addressID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Mutate(ctx, userID, func(user *domain.User) error {
		idx := slices.IndexFunc(user.Addresses, func(a domain.Address) bool { return a.ID == addressID })
		if idx < 0 {
			return ErrAddressNotFound
		}
		user.Addresses = slices.Delete(user.Addresses, idx, idx+1)
		user.UpdatedAt = s.clock().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.logger(ctx, "addresses.removed", map[string]any{"userId": userID, "addressId": addressID})
	return addressList(user.Addresses), nil
}

func (s *userService) find(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.mapError(err)
	}
	return user, nil
}

func (s *userService) mapError(err error) error {
	switch {
	case errors.Is(err, ErrWishlistAlreadyExists), errors.Is(err, ErrWishlistNotFound), errors.Is(err, ErrAddressNotFound):
		return err
	case isRepoNotFound(err):
		return ErrUserNotFound
	default:
		return err
	}
}

func userKeys(userID, itemID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return "", "", fmt.Errorf("%w: user id and item id are required", ErrUserInvalidInput)
	}
	return userID, itemID, nil
}

func addressList(addresses []Address) []Address {
	if addresses == nil {
		return []Address{}
	}
	return addresses
}
