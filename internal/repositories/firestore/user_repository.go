package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

const (
	userCollection = "users"
	cartField      = "cartData"
)

// UserRepository persists users/{uid} documents: profile, wishlist and saved addresses.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.Collection[userDocument]
	now      func() time.Time
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
		now:      time.Now,
	}, nil
}

// EnsureProfile creates the user document on first sight and refreshes email and name afterwards.
// An existing cart, wishlist and address book are preserved.
func (r *UserRepository) EnsureProfile(ctx context.Context, user domain.User) (domain.User, error) {
	ref, err := r.users.Doc(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	var saved domain.User
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now().UTC()
		snap, err := tx.Get(ref)
		if pfirestore.IsNotFound(err) {
			doc := userDocument{
				Email:     strings.TrimSpace(user.Email),
				Name:      strings.TrimSpace(user.Name),
				CartData:  map[string]any{},
				WishData:  map[string]any{},
				Addresses: []addressDocument{},
				CreatedAt: now,
				UpdatedAt: now,
			}
			saved = doc.toDomain(user.ID)
			return tx.Create(ref, doc)
		}
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[userDocument](snap)
		if err != nil {
			return err
		}
		var updates []firestore.Update
		if email := strings.TrimSpace(user.Email); email != "" && email != doc.Data.Email {
			doc.Data.Email = email
			updates = append(updates, firestore.Update{Path: "email", Value: email})
		}
		if name := strings.TrimSpace(user.Name); name != "" && name != doc.Data.Name {
			doc.Data.Name = name
			updates = append(updates, firestore.Update{Path: "name", Value: name})
		}
		saved = doc.Data.toDomain(user.ID)
		if len(updates) == 0 {
			return nil
		}
		doc.Data.UpdatedAt = now
		saved.UpdatedAt = now
		return tx.Update(ref, append(updates, firestore.Update{Path: "updatedAt", Value: now}))
	}, pfirestore.WithTxName("users.ensure_profile"))
	if err != nil {
		return domain.User{}, err
	}
	return saved, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) Mutate(ctx context.Context, userID string, fn func(user *domain.User) error) (domain.User, error) {
	ref, err := r.users.Doc(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	var saved domain.User
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[userDocument](snap)
		if err != nil {
			return err
		}
		user := doc.Data.toDomain(userID)
		if err := fn(&user); err != nil {
			return err
		}
		user.UpdatedAt = r.now().UTC()
		saved = user
		next := newUserDocument(user)
		return tx.Update(ref, []firestore.Update{
			{Path: "email", Value: next.Email},
			{Path: "name", Value: next.Name},
			{Path: "wishData", Value: next.WishData},
			{Path: "addresses", Value: next.Addresses},
			{Path: "updatedAt", Value: next.UpdatedAt},
		})
	}, pfirestore.WithTxName("users.mutate"))
	if err != nil {
		return domain.User{}, err
	}
	return saved, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	docs, err := r.users.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.Data.toDomain(doc.ID))
	}
	return users, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return r.users.Count(ctx, nil)
}

// CartRepository reads and writes the cartData map embedded in users/{uid}.
type CartRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.Collection[userDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
	}, nil
}

func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.SanitizeCart(doc.Data.CartData), nil
}

func (r *CartRepository) Mutate(ctx context.Context, userID string, fn func(cart domain.Cart) error) (domain.Cart, error) {
	ref, err := r.users.Doc(ctx, userID)
	if err != nil {
		return nil, err
	}
	var saved domain.Cart
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[userDocument](snap)
		if err != nil {
			return err
		}
		cart := domain.SanitizeCart(doc.Data.CartData)
		if err := fn(cart); err != nil {
			return err
		}
		saved = cart
		return tx.Update(ref, []firestore.Update{{Path: cartField, Value: map[string]int(cart)}})
	}, pfirestore.WithTxName("carts.mutate"))
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// RemoveItems deletes the keys with field transforms so unrelated entries written concurrently
// survive.
func (r *CartRepository) RemoveItems(ctx context.Context, userID string, productIDs []string) error {
	updates := cartDeletes(productIDs)
	if len(updates) == 0 {
		return nil
	}
	return r.users.Update(ctx, userID, updates)
}

func cartDeletes(productIDs []string) []firestore.Update {
	seen := make(map[string]struct{}, len(productIDs))
	updates := make([]firestore.Update, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok || strings.TrimSpace(id) == "" {
			continue
		}
		seen[id] = struct{}{}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{cartField, id}, Value: firestore.Delete})
	}
	return updates
}

type userDocument struct {
	Email     string            `firestore:"email"`
	Name      string            `firestore:"name"`
	CartData  map[string]any    `firestore:"cartData"`
	WishData  map[string]any    `firestore:"wishData"`
	Addresses []addressDocument `firestore:"addresses"`
	CreatedAt time.Time         `firestore:"createdAt"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

type addressDocument struct {
	ID        string `firestore:"id"`
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	State     string `firestore:"state"`
	Phone     string `firestore:"phone"`
}

func newUserDocument(u domain.User) userDocument {
	wish := make(map[string]any, len(u.Wishlist))
	for _, id := range u.Wishlist {
		wish[id] = 1
	}
	addresses := make([]addressDocument, 0, len(u.Addresses))
	for _, a := range u.Addresses {
		addresses = append(addresses, newAddressDocument(a))
	}
	cart := make(map[string]any, len(u.Cart))
	for id, qty := range u.Cart {
		cart[id] = qty
	}
	return userDocument{
		Email:     u.Email,
		Name:      u.Name,
		CartData:  cart,
		WishData:  wish,
		Addresses: addresses,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	wish := make(domain.Wishlist, 0, len(d.WishData))
	for productID := range d.WishData {
		wish = append(wish, productID)
	}
	sort.Strings(wish)
	addresses := make([]domain.Address, 0, len(d.Addresses))
	for _, a := range d.Addresses {
		addresses = append(addresses, a.toDomain())
	}
	return domain.User{
		ID:        id,
		Email:     d.Email,
		Name:      d.Name,
		Cart:      domain.SanitizeCart(d.CartData),
		Wishlist:  wish,
		Addresses: addresses,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Phone:     a.Phone,
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		ID:        d.ID,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Street:    d.Street,
		City:      d.City,
		State:     d.State,
		Phone:     d.Phone,
	}
}
