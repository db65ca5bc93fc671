package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes checkout, order history and the admin order console.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	idemHeader  string
	limiter     *windowLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps place and stripe with the idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderIdempotencyHeader sets the header the key is read from. It must match the one the
// idempotency middleware keys responses on.
func WithOrderIdempotencyHeader(name string) OrderHandlersOption {
	return func(h *OrderHandlers) {
		if name = strings.TrimSpace(name); name != "" {
			h.idemHeader = name
		}
	}
}

// WithOrderRateLimit caps order placements per user within window.
func WithOrderRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, idemHeader: idempotencyHeader}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /order endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	idem := h.idempotency
	if idem == nil {
		idem = passthrough
	}

	r.Get("/config", h.config)

	r.Group(func(user chi.Router) {
		user.Use(requireRoles(h.authn))
		user.With(h.limiter.perUser, idem).Post("/place", h.placeOrder)
		user.With(idem).Post("/stripe", h.stripePayment)
		user.Get("/userorders", h.userOrders)
		user.Post("/userorders", h.userOrders)
		user.Post("/huyOrder", h.cancelOrder)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(requireRoles(h.authn, auth.RoleAdmin, auth.RoleStaff))
		admin.Get("/list", h.listOrders)
		admin.Post("/list", h.listOrders)
		admin.Post("/status", h.updateStatus)
		admin.Get("/getRevenue", h.revenue)
	})
}

func (h *OrderHandlers) idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(h.idemHeader))
}

type placeOrderRequest struct {
	Items         []orderItemRequest `json:"items"`
	Amount        int64              `json:"amount"`
	Address       addressPayload     `json:"address"`
	PaymentMethod string             `json:"paymentMethod"`
	Payment       bool               `json:"payment"`
}

// orderItemRequest accepts the product id as either "_id" (storefront clients) or "productId".
type orderItemRequest struct {
	LegacyID  string `json:"_id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     any    `json:"image"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
}

func (i orderItemRequest) toCommand() services.PlaceOrderItem {
	id := strings.TrimSpace(i.ProductID)
	if id == "" {
		id = strings.TrimSpace(i.LegacyID)
	}
	return services.PlaceOrderItem{
		ProductID: id,
		Quantity:  i.Quantity,
		Name:      i.Name,
		Price:     i.Price,
		Image:     firstImage(i.Image),
		Category:  i.Category,
	}
}

// firstImage accepts a single URL or the product's image array.
func firstImage(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

type stripeRequest struct {
	Amount int64 `json:"amount"`
}

type orderIDRequest struct {
	OrderID string `json:"orderId"`
}

type statusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image,omitempty"`
	Category  string `json:"category,omitempty"`
	Quantity  int    `json:"quantity"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	Items         []orderItemPayload `json:"items"`
	Amount        int64              `json:"amount"`
	SoLuong       int                `json:"soLuong"`
	Address       addressPayload     `json:"address"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"paymentMethod"`
	Payment       bool               `json:"payment"`
	Date          string             `json:"date"`
	Revenue       int64              `json:"revenue"`
	Reviews       []reviewPayload    `json:"reviews"`
}

func newOrderItemPayloads(items []services.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Category:  item.Category,
			Quantity:  item.Quantity,
		})
	}
	return out
}

func newOrderPayload(order services.Order) orderPayload {
	reviews := make([]reviewPayload, 0, len(order.Reviews))
	for _, review := range order.Reviews {
		reviews = append(reviews, newReviewPayload(review))
	}
	return orderPayload{
		ID:            order.ID,
		UserID:        order.UserID,
		Items:         newOrderItemPayloads(order.Items),
		Amount:        order.Amount,
		SoLuong:       order.SoLuong,
		Address:       newAddressPayload(order.Address),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Payment:       order.Payment,
		Date:          formatTime(order.Date),
		Revenue:       order.Revenue,
		Reviews:       reviews,
	}
}

func newOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, newOrderPayload(order))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *OrderHandlers) config(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		serviceUnavailable(r.Context(), w, "order")
		return
	}
	settings := h.orders.Settings()
	writeSuccess(w, http.StatusOK, map[string]any{
		"currency":       settings.Currency,
		"deliveryCharge": settings.DeliveryCharge,
	})
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]services.PlaceOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.toCommand())
	}
	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         identity.UID,
		Items:          items,
		Amount:         req.Amount,
		Address:        req.Address.toAddress(),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		Payment:        req.Payment,
		IdempotencyKey: h.idempotencyKey(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orderId": order.ID})
}

func (h *OrderHandlers) stripePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req stripeRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	payment, err := h.orders.InitiateStripePayment(ctx, services.StripePaymentCommand{
		UserID:         identity.UID,
		Amount:         req.Amount,
		IdempotencyKey: h.idempotencyKey(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"clientSecret": payment.ClientSecret,
		"amount":       payment.Amount,
		"currency":     payment.Currency,
	})
}

func (h *OrderHandlers) userOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListOrders(ctx, services.OrderFilter{UserID: identity.UID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orders": newOrderPayloads(orders)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req orderIDRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	if _, err := h.orders.CancelOrder(ctx, strings.TrimSpace(req.OrderID), identity.UID); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Order cancelled"})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	orders, err := h.orders.ListOrders(ctx, services.OrderFilter{})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orders": newOrderPayloads(orders)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req statusRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	if _, err := h.orders.UpdateStatus(ctx, strings.TrimSpace(req.OrderID), req.Status); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Order status updated"})
}

func (h *OrderHandlers) revenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	revenue, err := h.orders.RevenueByDate(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if len(revenue) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("no_orders", "no orders found", http.StatusNotFound))
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revenueData": revenue})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "order can no longer be cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "order could not be committed, retry the request", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage is temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "card payments are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment provider rejected the request", http.StatusBadGateway))
	default:
		writeStorageError(ctx, w, "order_failed", "failed to process order", err)
	}
}
