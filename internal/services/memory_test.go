package services

import (
	"context"
	"maps"
	"sort"
	"sync"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

// memoryStore is a single-process stand-in for the Firestore repositories. Every mutation holds
// the lock for its whole duration, which gives Place the same all-or-nothing behaviour as the
// transactional implementation.
type memoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.User
	placeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products: map[string]domain.Product{},
		orders:   map[string]domain.Order{},
		users:    map[string]domain.User{},
	}
}

func (m *memoryStore) Products() repositories.ProductRepository { return memoryProducts{m} }
func (m *memoryStore) Orders() repositories.OrderRepository     { return memoryOrders{m} }
func (m *memoryStore) Carts() repositories.CartRepository       { return memoryCarts{m} }
func (m *memoryStore) Users() repositories.UserRepository       { return memoryUsers{m} }

func (m *memoryStore) putProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *memoryStore) putUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Cart == nil {
		u.Cart = domain.Cart{}
	}
	m.users[u.ID] = u
}

func (m *memoryStore) putOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

func (m *memoryStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].SoLuong
}

func (m *memoryStore) cart(uid string) domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneCart(m.users[uid].Cart)
}

func (m *memoryStore) order(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

func (m *memoryStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memoryProducts struct{ m *memoryStore }

func (r memoryProducts) Insert(_ context.Context, p domain.Product) error {
	r.m.putProduct(p)
	return nil
}

func (r memoryProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.products[id]
	if !ok {
		return domain.Product{}, repositories.ErrNotFound
	}
	return p, nil
}

func (r memoryProducts) List(_ context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Product
	for _, p := range r.m.products {
		if filter.BestsellerOnly && !p.Bestseller {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (r memoryProducts) Update(_ context.Context, id string, u repositories.ProductUpdate) (domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.products[id]
	if !ok {
		return domain.Product{}, repositories.ErrNotFound
	}
	p = applyProductUpdate(p, u)
	p.Date = u.Date
	r.m.products[id] = p
	return p, nil
}

func (r memoryProducts) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.products[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.m.products, id)
	return nil
}

func (r memoryProducts) CountByCategory(context.Context) (map[string]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]int{}
	for _, p := range r.m.products {
		out[p.Category]++
	}
	return out, nil
}

type memoryOrders struct{ m *memoryStore }

func (r memoryOrders) Place(_ context.Context, placement repositories.OrderPlacement) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.placeErr != nil {
		return domain.Order{}, r.m.placeErr
	}

	ids := make([]string, 0, len(placement.Quantities))
	for id := range placement.Quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	live := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		p, ok := r.m.products[id]
		if !ok {
			return domain.Order{}, &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: id}
		}
		if want := placement.Quantities[id]; p.SoLuong < want {
			return domain.Order{}, &repositories.StockError{
				Code:      repositories.StockErrorInsufficient,
				ProductID: id,
				Name:      p.Name,
				Requested: want,
				Available: p.SoLuong,
			}
		}
		live[id] = p
	}

	order, err := placement.Build(live)
	if err != nil {
		return domain.Order{}, err
	}
	for _, id := range ids {
		p := live[id]
		p.SoLuong -= placement.Quantities[id]
		r.m.products[id] = p
	}
	r.m.orders[order.ID] = cloneOrder(order)
	if user, ok := r.m.users[placement.UserID]; ok {
		for _, id := range ids {
			delete(user.Cart, id)
		}
		r.m.users[placement.UserID] = user
	}
	return order, nil
}

func (r memoryOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.orders[id]
	if !ok {
		return domain.Order{}, repositories.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r memoryOrders) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, o := range r.m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (r memoryOrders) Mutate(_ context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.orders[id]
	if !ok {
		return domain.Order{}, repositories.ErrNotFound
	}
	working := cloneOrder(o)
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	r.m.orders[id] = cloneOrder(working)
	return working, nil
}

type memoryCarts struct{ m *memoryStore }

func (r memoryCarts) Get(_ context.Context, uid string) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[uid]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := domain.Cart{}
	for id, qty := range u.Cart {
		if qty > 0 {
			out[id] = qty
		}
	}
	return out, nil
}

func (r memoryCarts) Mutate(_ context.Context, uid string, fn func(domain.Cart) error) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[uid]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	working := cloneCart(u.Cart)
	if err := fn(working); err != nil {
		return nil, err
	}
	u.Cart = working
	r.m.users[uid] = u
	return cloneCart(working), nil
}

func (r memoryCarts) RemoveItems(_ context.Context, uid string, ids []string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[uid]
	if !ok {
		return repositories.ErrNotFound
	}
	for _, id := range ids {
		delete(u.Cart, id)
	}
	r.m.users[uid] = u
	return nil
}

type memoryUsers struct{ m *memoryStore }

func (r memoryUsers) EnsureProfile(_ context.Context, user domain.User) (domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	existing, ok := r.m.users[user.ID]
	if !ok {
		user.Cart = domain.Cart{}
		r.m.users[user.ID] = user
		return user, nil
	}
	existing.Email = user.Email
	existing.Name = user.Name
	existing.UpdatedAt = user.UpdatedAt
	r.m.users[user.ID] = existing
	return existing, nil
}

func (r memoryUsers) FindByID(_ context.Context, uid string) (domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[uid]
	if !ok {
		return domain.User{}, repositories.ErrNotFound
	}
	return u, nil
}

func (r memoryUsers) Mutate(_ context.Context, uid string, fn func(*domain.User) error) (domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[uid]
	if !ok {
		return domain.User{}, repositories.ErrNotFound
	}
	working := u
	working.Wishlist = append(domain.Wishlist(nil), u.Wishlist...)
	working.Addresses = append([]domain.Address(nil), u.Addresses...)
	if err := fn(&working); err != nil {
		return domain.User{}, err
	}
	working.Cart = u.Cart
	r.m.users[uid] = working
	return working, nil
}

func (r memoryUsers) List(context.Context) ([]domain.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	users := make([]domain.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		users = append(users, u)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r memoryUsers) Count(context.Context) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return int64(len(r.m.users)), nil
}

func cloneCart(c domain.Cart) domain.Cart {
	if c == nil {
		return domain.Cart{}
	}
	return maps.Clone(c)
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	reviews := make([]domain.Review, len(o.Reviews))
	for i, review := range o.Reviews {
		review.Replies = append([]domain.Reply(nil), review.Replies...)
		reviews[i] = review
	}
	o.Reviews = reviews
	return o
}

// sequenceIDs hands out fixed ULIDs in order so tests can address created records.
func sequenceIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return newULID()
		}
		id := ids[next]
		next++
		return id
	}
}

type recordedEvent struct {
	name   string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, name string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, fields: fields})
}

func (r *eventRecorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.name == name {
			return true
		}
	}
	return false
}

// fields returns the fields of the last event logged under name.
func (r *eventRecorder) fields(name string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i].fields
		}
	}
	return nil
}
