package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/khotaikhoan/storefront/internal/platform/auth"
	"github.com/khotaikhoan/storefront/internal/platform/httpx"
	"github.com/khotaikhoan/storefront/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the signed-in user's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	cart  services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(authn *auth.Authenticator, cart services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, cart: cart}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(requireRoles(h.authn))
	r.Get("/get", h.getCart)
	r.Post("/get", h.getCart)
	r.Post("/add", h.addItem)
	r.Post("/update", h.updateQuantity)
	r.Post("/remove", h.removeItem)
	r.Post("/removemulti", h.removeItems)
}

type cartItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type cartItemsRequest struct {
	ItemIDs []string `json:"itemIds"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	cart, err := h.cart.GetCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	if cart == nil {
		cart = services.Cart{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"cartData": cart})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if err := h.cart.AddItem(ctx, identity.UID, strings.TrimSpace(req.ItemID)); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Added to cart"})
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	if err := h.cart.UpdateQuantity(ctx, identity.UID, strings.TrimSpace(req.ItemID), *req.Quantity); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Cart updated"})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if err := h.cart.RemoveItem(ctx, identity.UID, strings.TrimSpace(req.ItemID)); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Removed from cart"})
}

func (h *CartHandlers) removeItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req cartItemsRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if err := h.cart.RemoveItems(ctx, identity.UID, req.ItemIDs); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Removed purchased items from cart"})
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrCartAlreadyInCart):
		httpx.WriteError(ctx, w, httpx.NewError("already_in_cart", "product is already in the cart", http.StatusConflict))
	case errors.Is(err, services.ErrCartNotInCart):
		httpx.WriteError(ctx, w, httpx.NewError("not_in_cart", "product is not in the cart", http.StatusNotFound))
	default:
		writeStorageError(ctx, w, "cart_failed", "failed to update cart", err)
	}
}
