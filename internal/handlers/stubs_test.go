package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/services"
)

const (
	testOrderID  = "01HV5R3K0000000000000000A1"
	testReviewID = "01HV5R3K0000000000000000B2"
	testReplyID  = "01HV5R3K0000000000000000C3"
	testItemID   = "01HV5R3K0000000000000000D4"
)

type stubCartService struct {
	cart       services.Cart
	err        error
	lastUser   string
	lastItem   string
	lastQty    int
	lastItems  []string
	calledWith string
}

func (s *stubCartService) AddItem(_ context.Context, userID, productID string) error {
	s.lastUser, s.lastItem, s.calledWith = userID, productID, "add"
	return s.err
}

func (s *stubCartService) UpdateQuantity(_ context.Context, userID, productID string, quantity int) error {
	s.lastUser, s.lastItem, s.lastQty, s.calledWith = userID, productID, quantity, "update"
	return s.err
}

func (s *stubCartService) GetCart(_ context.Context, userID string) (services.Cart, error) {
	s.lastUser, s.calledWith = userID, "get"
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(_ context.Context, userID, productID string) error {
	s.lastUser, s.lastItem, s.calledWith = userID, productID, "remove"
	return s.err
}

func (s *stubCartService) RemoveItems(_ context.Context, userID string, productIDs []string) error {
	s.lastUser, s.lastItems, s.calledWith = userID, productIDs, "removemulti"
	return s.err
}

type stubOrderService struct {
	placeFunc  func(context.Context, services.PlaceOrderCommand) (services.Order, error)
	stripeFunc func(context.Context, services.StripePaymentCommand) (services.StripePayment, error)
	orders     []services.Order
	revenue    map[string]int64
	err        error
	settings   services.OrderSettings

	lastFilter services.OrderFilter
	lastStatus [2]string
	lastCancel [2]string
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFunc != nil {
		return s.placeFunc(ctx, cmd)
	}
	return services.Order{}, s.err
}

func (s *stubOrderService) InitiateStripePayment(ctx context.Context, cmd services.StripePaymentCommand) (services.StripePayment, error) {
	if s.stripeFunc != nil {
		return s.stripeFunc(ctx, cmd)
	}
	return services.StripePayment{}, s.err
}

func (s *stubOrderService) UpdateStatus(_ context.Context, orderID string, status string) (services.Order, error) {
	s.lastStatus = [2]string{orderID, status}
	return services.Order{}, s.err
}

func (s *stubOrderService) CancelOrder(_ context.Context, orderID, userID string) (services.Order, error) {
	s.lastCancel = [2]string{orderID, userID}
	return services.Order{}, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, filter services.OrderFilter) ([]services.Order, error) {
	s.lastFilter = filter
	return s.orders, s.err
}

func (s *stubOrderService) RevenueByDate(context.Context) (map[string]int64, error) {
	return s.revenue, s.err
}

func (s *stubOrderService) Settings() services.OrderSettings {
	return s.settings
}

type stubReviewService struct {
	addFunc  func(context.Context, services.AddReviewCommand) (services.Review, error)
	entries  []services.ReviewEntry
	reply    services.Reply
	err      error
	calls    []string
	lastText string
}

func (s *stubReviewService) AddReview(ctx context.Context, cmd services.AddReviewCommand) (services.Review, error) {
	s.calls = append(s.calls, "add:"+cmd.OrderID)
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Review{}, s.err
}

func (s *stubReviewService) ListAllReviews(context.Context) ([]services.ReviewEntry, error) {
	return s.entries, s.err
}

func (s *stubReviewService) HideReview(_ context.Context, orderID, reviewID string) error {
	s.calls = append(s.calls, "hide:"+orderID+"/"+reviewID)
	return s.err
}

func (s *stubReviewService) UnhideReview(_ context.Context, orderID, reviewID string) error {
	s.calls = append(s.calls, "unhide:"+orderID+"/"+reviewID)
	return s.err
}

func (s *stubReviewService) ReplyToReview(_ context.Context, orderID, reviewID, text string) (services.Reply, error) {
	s.calls = append(s.calls, "reply:"+orderID+"/"+reviewID)
	s.lastText = text
	return s.reply, s.err
}

func (s *stubReviewService) HideReply(_ context.Context, orderID, reviewID, replyID string) error {
	s.calls = append(s.calls, "hideReply:"+orderID+"/"+reviewID+"/"+replyID)
	return s.err
}

func (s *stubReviewService) UnhideReply(_ context.Context, orderID, reviewID, replyID string) error {
	s.calls = append(s.calls, "unhideReply:"+orderID+"/"+reviewID+"/"+replyID)
	return s.err
}

type stubCatalogService struct {
	createFunc func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateFunc func(context.Context, services.UpdateProductCommand) (services.Product, error)
	products   []services.Product
	product    services.Product
	err        error
	deleted    string
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Product{}, s.err
}

func (s *stubCatalogService) ListProducts(context.Context) ([]services.Product, error) {
	return s.products, s.err
}

func (s *stubCatalogService) GetProduct(_ context.Context, productID string) (services.Product, error) {
	if s.err != nil {
		return services.Product{}, s.err
	}
	p := s.product
	p.ID = productID
	return p, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Product{}, s.err
}

func (s *stubCatalogService) DeleteProduct(_ context.Context, productID string) error {
	s.deleted = productID
	return s.err
}

func (s *stubCatalogService) ListBestsellers(context.Context) ([]services.Product, error) {
	return s.products, s.err
}

type stubDashboardService struct {
	summary   services.DashboardSummary
	sellers   []services.ProductSales
	rated     []services.ProductRating
	err       error
	lastLimit int
}

func (s *stubDashboardService) Summary(context.Context) (services.DashboardSummary, error) {
	return s.summary, s.err
}

func (s *stubDashboardService) TopSellers(_ context.Context, limit int) ([]services.ProductSales, error) {
	s.lastLimit = limit
	return s.sellers, s.err
}

func (s *stubDashboardService) TopRated(_ context.Context, limit int) ([]services.ProductRating, error) {
	s.lastLimit = limit
	return s.rated, s.err
}

type stubUserService struct {
	user      services.User
	users     []services.User
	wishlist  []string
	addresses []services.Address
	err       error
	lastCmd   services.EnsureProfileCommand
	lastAddr  services.Address
	lastID    string
}

func (s *stubUserService) EnsureProfile(_ context.Context, cmd services.EnsureProfileCommand) (services.User, error) {
	s.lastCmd = cmd
	return s.user, s.err
}

func (s *stubUserService) GetProfile(_ context.Context, userID string) (services.User, error) {
	s.lastID = userID
	return s.user, s.err
}

func (s *stubUserService) ListUsers(context.Context) ([]services.User, error) {
	return s.users, s.err
}

func (s *stubUserService) AddToWishlist(_ context.Context, _, productID string) error {
	s.lastID = productID
	return s.err
}

func (s *stubUserService) RemoveFromWishlist(_ context.Context, _, productID string) error {
	s.lastID = productID
	return s.err
}

func (s *stubUserService) GetWishlist(context.Context, string) ([]string, error) {
	return s.wishlist, s.err
}

func (s *stubUserService) AddAddress(_ context.Context, _ string, address services.Address) ([]services.Address, error) {
	s.lastAddr = address
	return s.addresses, s.err
}

func (s *stubUserService) ListAddresses(context.Context, string) ([]services.Address, error) {
	return s.addresses, s.err
}

func (s *stubUserService) RemoveAddress(_ context.Context, _, addressID string) ([]services.Address, error) {
	s.lastID = addressID
	return s.addresses, s.err
}

// tokenVerifier maps bearer tokens to fixed Firebase tokens.
type tokenVerifier map[string]*firebaseauth.Token

func (v tokenVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	token, ok := v[raw]
	if !ok {
		return nil, auth.ErrTokenInvalid
	}
	return token, nil
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenVerifier{
		"user-token":  {UID: "user-1", Claims: map[string]any{"email": "an@example.com"}},
		"admin-token": {UID: "admin-1", Claims: map[string]any{"role": "admin"}},
	})
}

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func withUser(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
}
