package services

import (
	"context"
	"io"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product       = domain.Product
	ProductStock  = domain.ProductStock
	Cart          = domain.Cart
	User          = domain.User
	Address       = domain.Address
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	PaymentMethod = domain.PaymentMethod
	Review        = domain.Review
	Reply         = domain.Reply
	ReviewEntry   = domain.ReviewEntry
)

// CartService manages the per-user cart map.
type CartService interface {
	AddItem(ctx context.Context, userID, productID string) error
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error
	GetCart(ctx context.Context, userID string) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) error
	RemoveItems(ctx context.Context, userID string, productIDs []string) error
}

// OrderService places orders and drives their lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	InitiateStripePayment(ctx context.Context, cmd StripePaymentCommand) (StripePayment, error)
	UpdateStatus(ctx context.Context, orderID string, status string) (Order, error)
	CancelOrder(ctx context.Context, orderID, userID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	RevenueByDate(ctx context.Context) (map[string]int64, error)
	Settings() OrderSettings
}

// ReviewService moderates reviews and replies embedded in orders.
type ReviewService interface {
	AddReview(ctx context.Context, cmd AddReviewCommand) (Review, error)
	ListAllReviews(ctx context.Context) ([]ReviewEntry, error)
	HideReview(ctx context.Context, orderID, reviewID string) error
	UnhideReview(ctx context.Context, orderID, reviewID string) error
	ReplyToReview(ctx context.Context, orderID, reviewID, text string) (Reply, error)
	HideReply(ctx context.Context, orderID, reviewID, replyID string) error
	UnhideReply(ctx context.Context, orderID, reviewID, replyID string) error
}

// CatalogService manages products.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ListBestsellers(ctx context.Context) ([]Product, error)
}

// DashboardService computes admin read models.
type DashboardService interface {
	Summary(ctx context.Context) (DashboardSummary, error)
	TopSellers(ctx context.Context, limit int) ([]ProductSales, error)
	TopRated(ctx context.Context, limit int) ([]ProductRating, error)
}

// UserService manages profile bootstrap, profile reads, wishlist and addresses.
type UserService interface {
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	// ListUsers backs the back-office customer list.
	ListUsers(ctx context.Context) ([]User, error)
	AddToWishlist(ctx context.Context, userID, productID string) error
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
	GetWishlist(ctx context.Context, userID string) ([]string, error)
	AddAddress(ctx context.Context, userID string, address Address) ([]Address, error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	RemoveAddress(ctx context.Context, userID, addressID string) ([]Address, error)
}

// OrderNotifier hands a committed order to the mailer pipeline.
type OrderNotifier interface {
	PublishOrderPlaced(ctx context.Context, message OrderNotification) (string, error)
}

// OrderMetrics records order outcomes. *observability.Metrics satisfies it.
type OrderMetrics interface {
	OrderPlaced(paymentMethod string, revenue int64)
	OrderRejected(reason string)
	OrderStatusChanged(to string, nominal bool)
}

// ImageStore persists product images and returns their public URLs.
type ImageStore interface {
	Upload(ctx context.Context, productID string, images []ImageUpload) ([]string, error)
	Delete(ctx context.Context, url string) error
}

// Command and DTO definitions ------------------------------------------------

// PlaceOrderItem is one line as sent by the client. Name, Price, Image and Category are the
// client's snapshot of the product and are stored as-is.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int
	Name      string
	Price     int64
	Image     string
	Category  string
}

type PlaceOrderCommand struct {
	UserID         string
	Items          []PlaceOrderItem
	Amount         int64
	Address        Address
	PaymentMethod  string
	Payment        bool
	IdempotencyKey string
}

type StripePaymentCommand struct {
	UserID         string
	Amount         int64
	IdempotencyKey string
}

// StripePayment is returned to the client to confirm the card payment.
type StripePayment struct {
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
}

type OrderFilter struct {
	UserID string
}

// OrderSettings are the storefront constants clients need to compute amount.
type OrderSettings struct {
	Currency       string
	DeliveryCharge int64
}

// OrderNotification is the payload consumed by the order confirmation mailer.
type OrderNotification struct {
	OrderID       string      `json:"orderId"`
	UserID        string      `json:"userId"`
	Email         string      `json:"email"`
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	Address       Address     `json:"address"`
	Items         []OrderItem `json:"items"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	PaymentMethod string      `json:"paymentMethod"`
	PlacedAt      time.Time   `json:"placedAt"`
}

type AddReviewCommand struct {
	OrderID string
	Rating  int
	Comment string
}

type ImageUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type CreateProductCommand struct {
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
	ImageURLs   []string
	Images      []ImageUpload
}

// UpdateProductCommand carries a partial update; nil fields are left unchanged.
type UpdateProductCommand struct {
	ProductID   string
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
	ImageURLs   []string
}

type DashboardSummary struct {
	TotalUsers         int64
	ProductsByCategory map[string]int
	TotalSales         int64
	TotalOrders        int
	OrdersByStatus     map[string]int
	Products           []ProductStock
}

type ProductSales struct {
	Name      string
	Category  string
	Image     string
	UnitsSold int
}

type ProductRating struct {
	Name          string
	Category      string
	Image         string
	AverageRating float64
	ReviewCount   int
}

type EnsureProfileCommand struct {
	UserID string
	Email  string
	Name   string
}
