package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/payments"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates validation failures for order operations.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderProductNotFound indicates an ordered product does not exist.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderInsufficientStock indicates a product cannot cover the requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the order can no longer be cancelled.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the placement lost to concurrent writers and may be retried.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached; the request may be retried.
	ErrOrderUnavailable = errors.New("order: storage unavailable")
	// ErrOrderPaymentUnavailable indicates no payment provider is configured.
	ErrOrderPaymentUnavailable = errors.New("order: payment provider unavailable")
	// ErrOrderPaymentFailed indicates the payment provider refused the request.
	ErrOrderPaymentFailed = errors.New("order: payment failed")
)

const (
	rejectInvalid       = "invalid_input"
	rejectNotFound      = "product_not_found"
	rejectInsufficient  = "insufficient_stock"
	rejectConflict      = "conflict"
	rejectUnavailable   = "unavailable"
	rejectInternalError = "error"
)

// OrderServiceDeps bundles collaborators required to construct an OrderService.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Users          repositories.UserRepository
	Payments       payments.Provider
	Notifier       OrderNotifier
	Metrics        OrderMetrics
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(ctx context.Context, event string, fields map[string]any)
	Currency       string
	DeliveryCharge int64
	Location       *time.Location
}

type orderService struct {
	orders         repositories.OrderRepository
	users          repositories.UserRepository
	payments       payments.Provider
	notifier       OrderNotifier
	metrics        OrderMetrics
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
	currency       string
	deliveryCharge int64
	location       *time.Location
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newULID
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.Currency
	}
	delivery := deps.DeliveryCharge
	if delivery <= 0 {
		delivery = domain.DefaultDeliveryCharge
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	return &orderService{
		orders:         deps.Orders,
		users:          deps.Users,
		payments:       deps.Payments,
		notifier:       deps.Notifier,
		metrics:        deps.Metrics,
		now:            func() time.Time { return clock().UTC() },
		newID:          idGen,
		logger:         logger,
		currency:       currency,
		deliveryCharge: delivery,
		location:       location,
	}, nil
}

func (s *orderService) Settings() OrderSettings {
	return OrderSettings{Currency: s.currency, DeliveryCharge: s.deliveryCharge}
}

// PlaceOrder validates the request and hands it to the repository as one transaction. Revenue is
// computed from the live product state read inside that transaction and never changes afterwards.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	method, quantities, err := validatePlaceOrder(cmd)
	if err != nil {
		s.rejected(rejectInvalid)
		return Order{}, err
	}
	userID := strings.TrimSpace(cmd.UserID)

	items := make([]OrderItem, 0, len(cmd.Items))
	units := 0
	for _, item := range cmd.Items {
		items = append(items, OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Price:     item.Price,
			Image:     strings.TrimSpace(item.Image),
			Category:  strings.TrimSpace(item.Category),
			Quantity:  item.Quantity,
		})
		units += item.Quantity
	}

	order, err := s.orders.Place(ctx, repositories.OrderPlacement{
		UserID:     userID,
		Quantities: quantities,
		Build: func(products map[string]domain.Product) (domain.Order, error) {
			var revenue int64
			for id, qty := range quantities {
				revenue += domain.LineRevenue(products[id], qty)
			}
			return domain.Order{
				ID:            s.newID(),
				UserID:        userID,
				Items:         append([]OrderItem(nil), items...),
				Amount:        cmd.Amount,
				SoLuong:       units,
				Address:       normalizeAddress(cmd.Address),
				Status:        domain.OrderStatusReadyToShip,
				PaymentMethod: method,
				Payment:       cmd.Payment,
				Date:          s.now(),
				Revenue:       revenue,
				Reviews:       []Review{},
			}, nil
		},
	})
	if err != nil {
		return Order{}, s.mapPlaceError(ctx, userID, err)
	}

	if s.metrics != nil {
		s.metrics.OrderPlaced(string(order.PaymentMethod), order.Revenue)
	}
	fields := map[string]any{
		"orderId":       order.ID,
		"userId":        userID,
		"revenue":       order.Revenue,
		"units":         order.SoLuong,
		"paymentMethod": string(order.PaymentMethod),
	}
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		fields["idempotencyKey"] = key
	}
	s.logger(ctx, "orders.place.committed", fields)
	s.notify(ctx, order)
	return order, nil
}

func validatePlaceOrder(cmd PlaceOrderCommand) (PaymentMethod, map[string]int, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return "", nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return "", nil, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if cmd.Amount < 0 {
		return "", nil, fmt.Errorf("%w: amount must not be negative", ErrOrderInvalidInput)
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	quantities := make(map[string]int, len(cmd.Items))
	for i, item := range cmd.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return "", nil, fmt.Errorf("%w: item %d has no product id", ErrOrderInvalidInput, i)
		}
		if strings.Contains(id, "/") {
			return "", nil, fmt.Errorf("%w: item %d has a malformed product id", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return "", nil, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		quantities[id] += item.Quantity
	}
	return method, quantities, nil
}

func (s *orderService) mapPlaceError(ctx context.Context, userID string, err error) error {
	var stockErr *repositories.StockError
	switch {
	case errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorProductNotFound:
		s.rejected(rejectNotFound)
		return fmt.Errorf("%w: %s", ErrOrderProductNotFound, stockErr.ProductID)
	case errors.As(err, &stockErr):
		s.rejected(rejectInsufficient)
		return fmt.Errorf("%w: %s requested %d, available %d", ErrOrderInsufficientStock, stockErr.ProductID, stockErr.Requested, stockErr.Available)
	case isRepoConflict(err):
		s.rejected(rejectConflict)
		s.logger(ctx, "orders.place.conflict", map[string]any{"userId": userID, "error": err.Error()})
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case isRepoUnavailable(err):
		s.rejected(rejectUnavailable)
		s.logger(ctx, "orders.place.unavailable", map[string]any{"userId": userID, "error": err.Error()})
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		s.rejected(rejectInternalError)
		s.logger(ctx, "orders.place.failed", map[string]any{"userId": userID, "error": err.Error()})
		return err
	}
}

func (s *orderService) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.OrderRejected(reason)
	}
}

// notify publishes the confirmation message. Failures are logged; the order is already committed.
func (s *orderService) notify(ctx context.Context, order Order) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	email := order.Address.Email
	if email == "" && s.users != nil {
		if user, err := s.users.FindByID(ctx, order.UserID); err == nil {
			email = user.Email
		}
	}
	msg := OrderNotification{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Email:         email,
		FirstName:     order.Address.FirstName,
		LastName:      order.Address.LastName,
		Address:       order.Address,
		Items:         order.Items,
		Amount:        order.Amount,
		Currency:      s.currency,
		PaymentMethod: string(order.PaymentMethod),
		PlacedAt:      order.Date,
	}
	id, err := s.notifier.PublishOrderPlaced(ctx, msg)
	if err != nil {
		s.logger(ctx, "orders.notification.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return
	}
	s.logger(ctx, "orders.notification.published", map[string]any{"orderId": order.ID, "messageId": id})
}

// InitiateStripePayment creates a PaymentIntent for amount in the shop currency.
func (s *orderService) InitiateStripePayment(ctx context.Context, cmd StripePaymentCommand) (StripePayment, error) {
	if cmd.Amount <= 0 {
		return StripePayment{}, fmt.Errorf("%w: amount must be positive", ErrOrderInvalidInput)
	}
	if s.payments == nil {
		return StripePayment{}, ErrOrderPaymentUnavailable
	}
	metadata := map[string]string{}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" {
		metadata["userId"] = uid
	}
	intent, err := s.payments.CreatePaymentIntent(ctx, payments.IntentRequest{
		Amount:         cmd.Amount,
		Currency:       s.currency,
		Metadata:       metadata,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		s.logger(ctx, "orders.stripe.failed", map[string]any{"userId": cmd.UserID, "amount": cmd.Amount, "error": err.Error()})
		return StripePayment{}, fmt.Errorf("%w: %v", ErrOrderPaymentFailed, err)
	}
	s.logger(ctx, "orders.stripe.intent_created", map[string]any{"userId": cmd.UserID, "intentId": intent.ID})
	return StripePayment{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}, nil
}

// UpdateStatus sets any known status regardless of the current one. Moves outside the nominal
// lifecycle are logged and counted. Delivering a COD order marks it paid.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, status string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if !validID(orderID) {
		return Order{}, fmt.Errorf("%w: malformed order id", ErrOrderInvalidInput)
	}
	next, ok := domain.ParseOrderStatus(status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
	}

	var previous OrderStatus
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		previous = order.Status
		order.Status = next
		if next == domain.OrderStatusDelivered && order.PaymentMethod == domain.PaymentMethodCOD {
			order.Payment = true
		}
		return nil
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	nominal := domain.IsNominalTransition(previous, next)
	if s.metrics != nil {
		s.metrics.OrderStatusChanged(string(next), nominal)
	}
	fields := map[string]any{"orderId": orderID, "from": string(previous), "to": string(next)}
	if !nominal {
		s.logger(ctx, "orders.status.out_of_band", fields)
	} else {
		s.logger(ctx, "orders.status.updated", fields)
	}
	return order, nil
}

// CancelOrder lets the owner cancel an order that is neither delivered nor cancelled. Stock is not
// restored.
func (s *orderService) CancelOrder(ctx context.Context, orderID, userID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	userID = strings.TrimSpace(userID)
	if !validID(orderID) || userID == "" {
		return Order{}, fmt.Errorf("%w: a valid order id and user id are required", ErrOrderInvalidInput)
	}
	var previous OrderStatus
	order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		if order.UserID != userID {
			return ErrOrderForbidden
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidTransition, order.Status)
		}
		previous = order.Status
		order.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	if s.metrics != nil {
		s.metrics.OrderStatusChanged(string(domain.OrderStatusCancelled), true)
	}
	s.logger(ctx, "orders.cancelled", map[string]any{"orderId": orderID, "userId": userID, "from": string(previous)})
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{UserID: strings.TrimSpace(filter.UserID)})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].Date.After(orders[j].Date) })
	return orders, nil
}

// RevenueByDate sums order revenue per calendar day in the shop timezone. Cancelled orders are
// included because revenue is fixed at placement.
func (s *orderService) RevenueByDate(ctx context.Context) (map[string]int64, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64)
	for _, order := range orders {
		day := order.Date.In(s.location).Format("2006-01-02")
		totals[day] += order.Revenue
	}
	return totals, nil
}

func (s *orderService) mapOrderError(err error) error {
	switch {
	case errors.Is(err, ErrOrderForbidden):
		return ErrOrderForbidden
	case errors.Is(err, ErrOrderInvalidTransition):
		return err
	case isRepoNotFound(err):
		return ErrOrderNotFound
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		return err
	}
}

func normalizeAddress(a Address) Address {
	return Address{
		ID:        strings.TrimSpace(a.ID),
		FirstName: cleanText(a.FirstName),
		LastName:  cleanText(a.LastName),
		Email:     strings.TrimSpace(a.Email),
		Street:    cleanText(a.Street),
		City:      cleanText(a.City),
		State:     cleanText(a.State),
		Phone:     strings.TrimSpace(a.Phone),
	}
}
