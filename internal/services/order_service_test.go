package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/payments"
)

const (
	orderID1 = "01HV5R3K0000000000000000A1"
	orderID2 = "01HV5R3K0000000000000000B2"
	orderID3 = "01HV5R3K0000000000000000C3"
)

type stubNotifier struct {
	mu       sync.Mutex
	messages []OrderNotification
	err      error
}

func (n *stubNotifier) PublishOrderPlaced(_ context.Context, msg OrderNotification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.messages = append(n.messages, msg)
	return "msg-1", nil
}

type stubOrderMetrics struct {
	mu       sync.Mutex
	placed   int
	revenue  int64
	rejected map[string]int
	changes  []bool
}

func (m *stubOrderMetrics) OrderPlaced(_ string, revenue int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed++
	m.revenue += revenue
}

func (m *stubOrderMetrics) OrderRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = map[string]int{}
	}
	m.rejected[reason]++
}

func (m *stubOrderMetrics) OrderStatusChanged(_ string, nominal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, nominal)
}

type stubPaymentProvider struct {
	createFunc func(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
}

func (p *stubPaymentProvider) CreatePaymentIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	return p.createFunc(ctx, req)
}

func (p *stubPaymentProvider) LookupPayment(context.Context, string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

type stubRepoError struct {
	notFound, conflict, unavailable bool
}

func (e stubRepoError) Error() string       { return "repository failure" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func seedCatalog(store *memoryStore) {
	store.putProduct(domain.Product{ID: "A", Name: "Phone", Category: "phone", Price: 1000, GiaNhap: 800, GiaGoc: 1200, SoLuong: 5})
	store.putProduct(domain.Product{ID: "B", Name: "Cable", Category: "accessory", Price: 500, GiaNhap: 300, GiaGoc: 600, SoLuong: 2})
}

type orderFixture struct {
	store    *memoryStore
	service  OrderService
	notifier *stubNotifier
	metrics  *stubOrderMetrics
	events   *eventRecorder
}

func newOrderFixture(t *testing.T, mutate func(*OrderServiceDeps)) orderFixture {
	t.Helper()
	store := newMemoryStore()
	seedCatalog(store)
	store.putUser(domain.User{ID: "user-1", Email: "buyer@example.com", Cart: domain.Cart{"A": 2, "C": 1}})

	f := orderFixture{
		store:    store,
		notifier: &stubNotifier{},
		metrics:  &stubOrderMetrics{},
		events:   &eventRecorder{},
	}
	deps := OrderServiceDeps{
		Orders:      store.Orders(),
		Users:       store.Users(),
		Notifier:    f.notifier,
		Metrics:     f.metrics,
		Clock:       func() time.Time { return time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC) },
		IDGenerator: sequenceIDs(orderID1, orderID2, orderID3),
		Logger:      f.events.log,
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.service = svc
	return f
}

func placeCommand(items ...PlaceOrderItem) PlaceOrderCommand {
	return PlaceOrderCommand{
		UserID:        "user-1",
		Items:         items,
		Amount:        7000,
		Address:       Address{FirstName: "An", LastName: "Nguyen", Street: "1 Le Loi", City: "HCM", Phone: "0900"},
		PaymentMethod: "COD",
	}
}

func TestOrderServicePlaceOrderCommitsStockRevenueAndCart(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	order, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 2, Name: "Phone", Price: 1000}))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.ID != orderID1 {
		t.Fatalf("expected order id %s, got %s", orderID1, order.ID)
	}
	if order.Revenue != 400 {
		t.Fatalf("expected revenue 400, got %d", order.Revenue)
	}
	if order.Status != domain.OrderStatusReadyToShip {
		t.Fatalf("expected Ready to ship, got %s", order.Status)
	}
	if order.SoLuong != 2 {
		t.Fatalf("expected 2 units, got %d", order.SoLuong)
	}
	if got := f.store.stock("A"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	cart := f.store.cart("user-1")
	if _, ok := cart["A"]; ok {
		t.Fatalf("expected A pruned from cart, got %v", cart)
	}
	if cart["C"] != 1 || len(cart) != 1 {
		t.Fatalf("expected unrelated key C untouched, got %v", cart)
	}
	if f.metrics.placed != 1 || f.metrics.revenue != 400 {
		t.Fatalf("unexpected metrics %+v", f.metrics)
	}
	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.messages))
	}
	msg := f.notifier.messages[0]
	if msg.Email != "buyer@example.com" {
		t.Fatalf("expected email fallback to profile, got %q", msg.Email)
	}
	if msg.Currency != domain.Currency || msg.Amount != 7000 {
		t.Fatalf("unexpected notification %+v", msg)
	}
	if !f.events.has("orders.place.committed") {
		t.Fatalf("expected commit to be logged")
	}
}

func TestOrderServicePlaceOrderInsufficientStockLeavesStateUntouched(t *testing.T) {
	f := newOrderFixture(t, nil)

	_, err := f.service.PlaceOrder(context.Background(), placeCommand(
		PlaceOrderItem{ProductID: "A", Quantity: 1},
		PlaceOrderItem{ProductID: "B", Quantity: 3},
	))
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := f.store.stock("A"); got != 5 {
		t.Fatalf("expected stock A untouched at 5, got %d", got)
	}
	if got := f.store.stock("B"); got != 2 {
		t.Fatalf("expected stock B untouched at 2, got %d", got)
	}
	if f.store.orderCount() != 0 {
		t.Fatalf("expected no order persisted")
	}
	if cart := f.store.cart("user-1"); cart["A"] != 2 {
		t.Fatalf("expected cart untouched, got %v", cart)
	}
	if f.metrics.rejected[rejectInsufficient] != 1 {
		t.Fatalf("expected rejection metric, got %v", f.metrics.rejected)
	}
	if len(f.notifier.messages) != 0 {
		t.Fatalf("expected no notification for rejected order")
	}
}

func TestOrderServicePlaceOrderSumsDuplicateLines(t *testing.T) {
	f := newOrderFixture(t, nil)

	_, err := f.service.PlaceOrder(context.Background(), placeCommand(
		PlaceOrderItem{ProductID: "A", Quantity: 3},
		PlaceOrderItem{ProductID: "A", Quantity: 3},
	))
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected insufficient stock for 6 > 5, got %v", err)
	}
	if got := f.store.stock("A"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestOrderServicePlaceOrderUnknownProduct(t *testing.T) {
	f := newOrderFixture(t, nil)

	_, err := f.service.PlaceOrder(context.Background(), placeCommand(
		PlaceOrderItem{ProductID: "A", Quantity: 1},
		PlaceOrderItem{ProductID: "missing", Quantity: 1},
	))
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if got := f.store.stock("A"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestOrderServicePlaceOrderValidation(t *testing.T) {
	f := newOrderFixture(t, nil)

	cases := map[string]PlaceOrderCommand{
		"no items":       placeCommand(),
		"zero quantity":  placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 0}),
		"blank product":  placeCommand(PlaceOrderItem{ProductID: " ", Quantity: 1}),
		"unknown method": func() PlaceOrderCommand { c := placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}); c.PaymentMethod = "cash"; return c }(),
		"negative total": func() PlaceOrderCommand { c := placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}); c.Amount = -1; return c }(),
		"missing user":   func() PlaceOrderCommand { c := placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}); c.UserID = ""; return c }(),
		"slash in id":    placeCommand(PlaceOrderItem{ProductID: "A/B", Quantity: 1}),
		"path traversal": placeCommand(PlaceOrderItem{ProductID: "../A", Quantity: 1}),
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.service.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
	if got := f.store.stock("A"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestOrderServicePlaceOrderRevenueFixedAtPlacement(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	order, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "B", Quantity: 1}))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	f.store.putProduct(domain.Product{ID: "B", Name: "Cable", Category: "accessory", Price: 900, GiaNhap: 100, GiaGoc: 1000, SoLuong: 1})

	stored := f.store.order(order.ID)
	if stored.Revenue != 200 {
		t.Fatalf("expected stored revenue to stay 200, got %d", stored.Revenue)
	}
}

func TestOrderServicePlaceOrderConcurrentBuyersNeverOversell(t *testing.T) {
	f := newOrderFixture(t, func(d *OrderServiceDeps) { d.IDGenerator = nil })
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrOrderInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful orders, got %d", succeeded)
	}
	if got := f.store.stock("A"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestOrderServicePlaceOrderConflictIsRetryable(t *testing.T) {
	f := newOrderFixture(t, nil)
	f.store.placeErr = stubRepoError{conflict: true}

	_, err := f.service.PlaceOrder(context.Background(), placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}))
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.metrics.rejected[rejectConflict] != 1 {
		t.Fatalf("expected conflict metric, got %v", f.metrics.rejected)
	}
}

func TestOrderServicePlaceOrderUnavailableStorage(t *testing.T) {
	f := newOrderFixture(t, nil)
	f.store.placeErr = stubRepoError{unavailable: true}

	_, err := f.service.PlaceOrder(context.Background(), placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1}))
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if f.metrics.rejected[rejectUnavailable] != 1 {
		t.Fatalf("expected unavailable metric, got %v", f.metrics.rejected)
	}
	if !f.events.has("orders.place.unavailable") {
		t.Fatalf("expected unavailable event")
	}
}

func TestOrderServicePlaceOrderLogsIdempotencyKey(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	cmd := placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1})
	cmd.IdempotencyKey = " key-1 "
	if _, err := f.service.PlaceOrder(ctx, cmd); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if got := f.events.fields("orders.place.committed")["idempotencyKey"]; got != "key-1" {
		t.Fatalf("expected idempotency key on commit event, got %v", got)
	}

	if _, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1})); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if _, ok := f.events.fields("orders.place.committed")["idempotencyKey"]; ok {
		t.Fatalf("expected no idempotency key when header absent")
	}
}

func TestOrderServicePlaceOrderSurvivesNotifierFailure(t *testing.T) {
	f := newOrderFixture(t, nil)
	f.notifier.err = errors.New("pubsub down")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 1})); err != nil {
		t.Fatalf("expected order to commit despite notifier failure, got %v", err)
	}
	if !f.events.has("orders.notification.failed") {
		t.Fatalf("expected notifier failure to be logged")
	}
}

func TestOrderServiceUpdateStatus(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()
	f.store.putOrder(domain.Order{ID: orderID1, UserID: "user-1", Status: domain.OrderStatusShipping, PaymentMethod: domain.PaymentMethodCOD})
	f.store.putOrder(domain.Order{ID: orderID2, UserID: "user-1", Status: domain.OrderStatusShipping, PaymentMethod: domain.PaymentMethodStripe})

	order, err := f.service.UpdateStatus(ctx, orderID1, "delivered")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered || !order.Payment {
		t.Fatalf("expected COD delivery to mark paid, got %+v", order)
	}

	order, err = f.service.UpdateStatus(ctx, orderID2, string(domain.OrderStatusDelivered))
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if order.Payment {
		t.Fatalf("expected Stripe order payment flag untouched")
	}

	if _, err := f.service.UpdateStatus(ctx, orderID1, string(domain.OrderStatusReadyToShip)); err != nil {
		t.Fatalf("expected permissive backwards move, got %v", err)
	}
	if !f.events.has("orders.status.out_of_band") {
		t.Fatalf("expected out-of-band move to be logged")
	}
	if last := f.metrics.changes[len(f.metrics.changes)-1]; last {
		t.Fatalf("expected backwards move to be flagged non-nominal")
	}
}

func TestOrderServiceUpdateStatusErrors(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.UpdateStatus(ctx, orderID1, "Shipping"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, "not-an-id", "Shipping"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for malformed id, got %v", err)
	}
	if _, err := f.service.UpdateStatus(ctx, orderID1, "Lost"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
}

func TestOrderServiceCancelOrder(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	placed, err := f.service.PlaceOrder(ctx, placeCommand(PlaceOrderItem{ProductID: "A", Quantity: 2}))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if _, err := f.service.CancelOrder(ctx, placed.ID, "intruder"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	cancelled, err := f.service.CancelOrder(ctx, placed.ID, "user-1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected Cancelled, got %s", cancelled.Status)
	}
	if got := f.store.stock("A"); got != 3 {
		t.Fatalf("expected no restock on cancel, got %d", got)
	}

	if _, err := f.service.CancelOrder(ctx, placed.ID, "user-1"); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition for second cancel, got %v", err)
	}

	f.store.putOrder(domain.Order{ID: orderID3, UserID: "user-1", Status: domain.OrderStatusDelivered})
	if _, err := f.service.CancelOrder(ctx, orderID3, "user-1"); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected invalid transition for delivered order, got %v", err)
	}
	if _, err := f.service.CancelOrder(ctx, "01HV5R3K0000000000000000H8", "user-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceListOrdersNewestFirst(t *testing.T) {
	f := newOrderFixture(t, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f.store.putOrder(domain.Order{ID: orderID1, UserID: "user-1", Date: base})
	f.store.putOrder(domain.Order{ID: orderID2, UserID: "user-2", Date: base.Add(time.Hour)})
	f.store.putOrder(domain.Order{ID: orderID3, UserID: "user-1", Date: base.Add(2 * time.Hour)})

	mine, err := f.service.ListOrders(context.Background(), OrderFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != orderID3 || mine[1].ID != orderID1 {
		t.Fatalf("unexpected user orders %+v", mine)
	}

	all, err := f.service.ListOrders(context.Background(), OrderFilter{})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
}

func TestOrderServiceRevenueByDateUsesShopTimezone(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	f := newOrderFixture(t, func(d *OrderServiceDeps) { d.Location = loc })
	f.store.putOrder(domain.Order{ID: orderID1, Date: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC), Revenue: 400})
	f.store.putOrder(domain.Order{ID: orderID2, Date: time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC), Revenue: 100, Status: domain.OrderStatusCancelled})
	f.store.putOrder(domain.Order{ID: orderID3, Date: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Revenue: 50})

	totals, err := f.service.RevenueByDate(context.Background())
	if err != nil {
		t.Fatalf("RevenueByDate: %v", err)
	}
	if totals["2024-03-02"] != 500 {
		t.Fatalf("expected 500 on 2024-03-02, got %v", totals)
	}
	if totals["2024-03-01"] != 50 {
		t.Fatalf("expected 50 on 2024-03-01, got %v", totals)
	}
}

func TestOrderServiceInitiateStripePayment(t *testing.T) {
	var captured payments.IntentRequest
	provider := &stubPaymentProvider{
		createFunc: func(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
			captured = req
			return payments.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: req.Amount, Currency: req.Currency}, nil
		},
	}
	f := newOrderFixture(t, func(d *OrderServiceDeps) { d.Payments = provider })
	ctx := context.Background()

	payment, err := f.service.InitiateStripePayment(ctx, StripePaymentCommand{UserID: "user-1", Amount: 55000, IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("InitiateStripePayment: %v", err)
	}
	if payment.ClientSecret != "pi_1_secret" || payment.Currency != "vnd" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if captured.IdempotencyKey != "key-1" || captured.Metadata["userId"] != "user-1" {
		t.Fatalf("unexpected intent request %+v", captured)
	}

	if _, err := f.service.InitiateStripePayment(ctx, StripePaymentCommand{Amount: 0}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero amount, got %v", err)
	}

	provider.createFunc = func(context.Context, payments.IntentRequest) (payments.Intent, error) {
		return payments.Intent{}, errors.New("card_declined")
	}
	if _, err := f.service.InitiateStripePayment(ctx, StripePaymentCommand{Amount: 1000}); !errors.Is(err, ErrOrderPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
}

func TestOrderServiceInitiateStripePaymentWithoutProvider(t *testing.T) {
	f := newOrderFixture(t, nil)
	if _, err := f.service.InitiateStripePayment(context.Background(), StripePaymentCommand{Amount: 1000}); !errors.Is(err, ErrOrderPaymentUnavailable) {
		t.Fatalf("expected payment unavailable, got %v", err)
	}
}

func TestOrderServiceSettingsDefaults(t *testing.T) {
	f := newOrderFixture(t, nil)
	settings := f.service.Settings()
	if settings.Currency != "vnd" || settings.DeliveryCharge != 5000 {
		t.Fatalf("unexpected settings %+v", settings)
	}
}
