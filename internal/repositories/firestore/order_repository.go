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
	orderCollection = "orders"

	placementAttempts = 10
)

// OrderRepository persists orders and runs checkout as a single transaction spanning products,
// the order document and the buyer's cart.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	products *pfirestore.Collection[productDocument]
	users    *pfirestore.Collection[userDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
		users:    pfirestore.NewCollection[userDocument](provider, userCollection),
	}, nil
}

// Place reads every ordered product and the user document, refuses the whole placement on the first
// missing product or short stock, then decrements stock, creates the order and prunes the ordered
// keys from the cart. Nothing is written when any step fails.
func (r *OrderRepository) Place(ctx context.Context, placement repositories.OrderPlacement) (domain.Order, error) {
	if len(placement.Quantities) == 0 {
		return domain.Order{}, errors.New("order repository: no items to place")
	}
	if placement.Build == nil {
		return domain.Order{}, errors.New("order repository: build function is required")
	}
	productColl, err := r.products.Ref(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	orderColl, err := r.orders.Ref(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	userRef, err := r.users.Doc(ctx, placement.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	ids := make([]string, 0, len(placement.Quantities))
	for id := range placement.Quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = productColl.Doc(id)
	}

	var placed domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		products := make(map[string]domain.Product, len(snaps))
		for i, snap := range snaps {
			if snap == nil || !snap.Exists() {
				return &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: ids[i]}
			}
			doc, err := pfirestore.Decode[productDocument](snap)
			if err != nil {
				return err
			}
			product := doc.Data.toDomain(doc.ID)
			if requested := placement.Quantities[product.ID]; product.SoLuong < requested {
				return &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					ProductID: product.ID,
					Name:      product.Name,
					Requested: requested,
					Available: product.SoLuong,
				}
			}
			products[product.ID] = product
		}

		userSnap, err := tx.Get(userRef)
		hasUser := err == nil
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}

		order, err := placement.Build(products)
		if err != nil {
			return err
		}
		if strings.TrimSpace(order.ID) == "" {
			return errors.New("order repository: built order has no id")
		}

		for i, id := range ids {
			remaining := products[id].SoLuong - placement.Quantities[id]
			if err := tx.Update(refs[i], []firestore.Update{{Path: "soLuong", Value: remaining}}); err != nil {
				return err
			}
		}
		if err := tx.Create(orderColl.Doc(order.ID), newOrderDocument(order)); err != nil {
			return err
		}
		if hasUser && userSnap.Exists() {
			if deletes := cartDeletes(ids); len(deletes) > 0 {
				if err := tx.Update(userRef, deletes); err != nil {
					return err
				}
			}
		}
		placed = order
		return nil
	}, pfirestore.WithTxName("orders.place"), pfirestore.WithTxAttempts(placementAttempts))
	if err != nil {
		return domain.Order{}, err
	}
	return placed, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first. Filtering by user relies on the (userId, date desc) composite
// index.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	userID := strings.TrimSpace(filter.UserID)
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		return q.OrderBy("date", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}
		order := doc.Data.toDomain(doc.ID)
		if err := fn(&order); err != nil {
			return err
		}
		saved = order
		next := newOrderDocument(order)
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: next.Status},
			{Path: "payment", Value: next.Payment},
			{Path: "reviews", Value: next.Reviews},
		})
	}, pfirestore.WithTxName("orders.mutate"))
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Items         []orderItemDocument `firestore:"items"`
	Amount        int64               `firestore:"amount"`
	SoLuong       int                 `firestore:"soLuong"`
	Address       addressDocument     `firestore:"address"`
	Status        string              `firestore:"status"`
	PaymentMethod string              `firestore:"paymentMethod"`
	Payment       bool                `firestore:"payment"`
	Date          time.Time           `firestore:"date"`
	Revenue       int64               `firestore:"revenue"`
	Reviews       []reviewDocument    `firestore:"reviews"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Image     string `firestore:"image"`
	Category  string `firestore:"category"`
	Quantity  int    `firestore:"quantity"`
}

type reviewDocument struct {
	ID        string          `firestore:"id"`
	Rating    int             `firestore:"rating"`
	Comment   string          `firestore:"comment"`
	IsHidden  bool            `firestore:"isHidden"`
	CreatedAt time.Time       `firestore:"createdAt"`
	Replies   []replyDocument `firestore:"replies"`
}

type replyDocument struct {
	ID        string    `firestore:"id"`
	ReplyText string    `firestore:"replyText"`
	IsHidden  bool      `firestore:"isHidden"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Category:  item.Category,
			Quantity:  item.Quantity,
		})
	}
	reviews := make([]reviewDocument, 0, len(o.Reviews))
	for _, review := range o.Reviews {
		replies := make([]replyDocument, 0, len(review.Replies))
		for _, reply := range review.Replies {
			replies = append(replies, replyDocument{
				ID:        reply.ID,
				ReplyText: reply.ReplyText,
				IsHidden:  reply.IsHidden,
				CreatedAt: reply.CreatedAt.UTC(),
			})
		}
		reviews = append(reviews, reviewDocument{
			ID:        review.ID,
			Rating:    review.Rating,
			Comment:   review.Comment,
			IsHidden:  review.IsHidden,
			CreatedAt: review.CreatedAt.UTC(),
			Replies:   replies,
		})
	}
	return orderDocument{
		UserID:        o.UserID,
		Items:         items,
		Amount:        o.Amount,
		SoLuong:       o.SoLuong,
		Address:       newAddressDocument(o.Address),
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Payment:       o.Payment,
		Date:          o.Date.UTC(),
		Revenue:       o.Revenue,
		Reviews:       reviews,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Category:  item.Category,
			Quantity:  item.Quantity,
		})
	}
	reviews := make([]domain.Review, 0, len(d.Reviews))
	for _, review := range d.Reviews {
		replies := make([]domain.Reply, 0, len(review.Replies))
		for _, reply := range review.Replies {
			replies = append(replies, domain.Reply{
				ID:        reply.ID,
				ReplyText: reply.ReplyText,
				IsHidden:  reply.IsHidden,
				CreatedAt: reply.CreatedAt,
			})
		}
		reviews = append(reviews, domain.Review{
			ID:        review.ID,
			Rating:    review.Rating,
			Comment:   review.Comment,
			IsHidden:  review.IsHidden,
			CreatedAt: review.CreatedAt,
			Replies:   replies,
		})
	}
	return domain.Order{
		ID:            id,
		UserID:        d.UserID,
		Items:         items,
		Amount:        d.Amount,
		SoLuong:       d.SoLuong,
		Address:       d.Address.toDomain(),
		Status:        domain.OrderStatus(d.Status),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Payment:       d.Payment,
		Date:          d.Date,
		Revenue:       d.Revenue,
		Reviews:       reviews,
	}
}
