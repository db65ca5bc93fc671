package domain

import (
	"time"
)

// Currency is the ISO code used for every monetary amount in the store. VND has no minor unit, so
// amounts are stored as whole dong.
const Currency = "vnd"

// DefaultDeliveryCharge is the flat shipping fee added by clients to the order amount.
const DefaultDeliveryCharge int64 = 5000

// Product is a catalog entry. Prices are whole VND.
type Product struct {
	ID          string
	Name        string
	Description string
	ThongTin    string
	ThuongHieu  string
	Category    string
	Price       int64
	GiaNhap     int64
	GiaGoc      int64
	SoLuong     int
	Bestseller  bool
	Images      []string
	Date        time.Time
}

// ProductStock is the reduced view used by the dashboard stock table.
type ProductStock struct {
	ID      string
	Name    string
	SoLuong int
}

// Cart maps productId to quantity.
type Cart map[string]int

// Wishlist is the set of product ids a user saved.
type Wishlist []string

// Address is both a saved user address and the shipping snapshot copied into an order.
type Address struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	Phone     string
}

// User is the storefront profile keyed by the Firebase UID.
type User struct {
	ID        string
	Email     string
	Name      string
	Cart      Cart
	Wishlist  Wishlist
	Addresses []Address
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusReadyToShip OrderStatus = "Ready to ship"
	OrderStatusShipping    OrderStatus = "Shipping"
	OrderStatusDelivered   OrderStatus = "Delivered"
	OrderStatusCancelled   OrderStatus = "Cancelled"
)

// PaymentMethod identifies how an order is settled.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodStripe PaymentMethod = "Stripe"
)

// OrderItem is the immutable product snapshot captured at placement time.
type OrderItem struct {
	ProductID string
	Name      string
	Price     int64
	Image     string
	Category  string
	Quantity  int
}

// Order aggregates its reviews; each review owns its replies.
type Order struct {
	ID            string
	UserID        string
	Items         []OrderItem
	Amount        int64
	SoLuong       int
	Address       Address
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Payment       bool
	Date          time.Time
	Revenue       int64
	Reviews       []Review
}

// Review is a customer rating embedded in an order.
type Review struct {
	ID        string
	Rating    int
	Comment   string
	IsHidden  bool
	CreatedAt time.Time
	Replies   []Reply
}

// Reply is a staff answer embedded in a review.
type Reply struct {
	ID        string
	ReplyText string
	IsHidden  bool
	CreatedAt time.Time
}

// ReviewEntry is a review flattened out of its order for moderation listings. The reviewer's
// display name is the order's shipping address name.
type ReviewEntry struct {
	OrderID   string
	ReviewID  string
	Items     []OrderItem
	FirstName string
	LastName  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	IsHidden  bool
	Replies   []Reply
}
