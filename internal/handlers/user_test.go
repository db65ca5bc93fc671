package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khotaikhoan/storefront/internal/services"
)

func userRouter(svc services.UserService) http.Handler {
	h := NewUserHandlers(testAuthenticator(), svc)
	return NewRouter(
		WithUserRoutes(h.ProfileRoutes),
		WithWishlistRoutes(h.WishlistRoutes),
		WithAddressRoutes(h.AddressRoutes),
	)
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUserHandlersEnsureProfileUsesTokenClaims(t *testing.T) {
	svc := &stubUserService{user: services.User{ID: "user-1", Email: "an@example.com", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}}
	rec := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/user/profile", `{"name":" An "}`), "user-token"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "user-1", svc.lastCmd.UserID)
	assert.Equal(t, "an@example.com", svc.lastCmd.Email)
	assert.Equal(t, "An", svc.lastCmd.Name)

	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, "2024-03-01T00:00:00Z", user["createdAt"])
}

func TestUserHandlersEnsureProfileWithoutBody(t *testing.T) {
	svc := &stubUserService{}
	rec := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(httptest.NewRequest(http.MethodPost, "/api/user/profile", nil), "user-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "user-1", svc.lastCmd.UserID)
}

func TestUserHandlersWishlist(t *testing.T) {
	svc := &stubUserService{wishlist: []string{testItemID}}

	rec := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/wishlist/get", ""), "user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{testItemID: float64(1)}, decodeBody(t, rec)["wishData"])

	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/wishlist/add", `{"itemId":"`+testItemID+`"}`), "user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testItemID, svc.lastID)

	svc.err = services.ErrWishlistAlreadyExists
	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/wishlist/add", `{"itemId":"`+testItemID+`"}`), "user-token"))
	assertErrorCode(t, rec, http.StatusConflict, "already_in_wishlist")

	svc.err = services.ErrWishlistNotFound
	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/wishlist/remove", `{"itemId":"`+testItemID+`"}`), "user-token"))
	assertErrorCode(t, rec, http.StatusNotFound, "not_in_wishlist")
}

func TestUserHandlersAddresses(t *testing.T) {
	saved := services.Address{ID: testOrderID, FirstName: "An", Street: "12 Le Loi", Phone: "0900000000"}
	svc := &stubUserService{addresses: []services.Address{saved}}

	rec := httptest.NewRecorder()
	body := `{"firstName":"An","street":"12 Le Loi","city":"Hue","phone":"0900000000"}`
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/address/add", body), "user-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hue", svc.lastAddr.City)
	list := decodeBody(t, rec)["address"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, testOrderID, list[0].(map[string]any)["id"])

	svc.err = services.ErrAddressNotFound
	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodPost, "/api/address/remove", `{"addressId":"missing"}`), "user-token"))
	assertErrorCode(t, rec, http.StatusNotFound, "address_not_found")
	assert.Equal(t, "missing", svc.lastID)
}

func TestUserHandlersEmptyAddressListIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	userRouter(&stubUserService{}).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/address/get", ""), "user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["address"])
}

func TestUserHandlersInfoReturnsCallerProfile(t *testing.T) {
	svc := &stubUserService{user: services.User{
		ID:        "user-1",
		Email:     "an@example.com",
		Name:      "An",
		Addresses: []services.Address{{ID: testOrderID, Street: "12 Le Loi", Phone: "0900000000"}},
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}}

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		userRouter(svc).ServeHTTP(rec, bearer(newRequest(method, "/api/user/info", ""), "user-token"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "user-1", svc.lastID)

		user := decodeBody(t, rec)["user"].(map[string]any)
		assert.Equal(t, "an@example.com", user["email"])
		require.Len(t, user["address"], 1)
	}

	svc.err = services.ErrUserNotFound
	rec := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/user/info", ""), "user-token"))
	assertErrorCode(t, rec, http.StatusNotFound, "user_not_found")

	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, newRequest(http.MethodGet, "/api/user/info", ""))
	assertErrorCode(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestUserHandlersListIsAdminOnly(t *testing.T) {
	svc := &stubUserService{users: []services.User{
		{ID: "user-2", Email: "binh@example.com", CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "user-1", Email: "an@example.com", CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}

	rec := httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/user/get", ""), "user-token"))
	assertErrorCode(t, rec, http.StatusForbidden, "insufficient_role")

	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/user/get", ""), "admin-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	users := decodeBody(t, rec)["users"].([]any)
	require.Len(t, users, 2)
	first := users[0].(map[string]any)
	assert.Equal(t, "user-2", first["id"])
	assert.NotContains(t, first, "address")
	assert.NotContains(t, first, "cartData")

	svc.users = nil
	rec = httptest.NewRecorder()
	userRouter(svc).ServeHTTP(rec, bearer(newRequest(http.MethodGet, "/api/user/get", ""), "admin-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["users"])
}
