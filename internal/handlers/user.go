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

const maxUserBodySize = 16 * 1024

// UserHandlers serves profile bootstrap, wishlist and saved addresses.
type UserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewUserHandlers constructs user handlers.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService) *UserHandlers {
	return &UserHandlers{authn: authn, users: users}
}

// ProfileRoutes registers /user. Listing every customer is limited to the back office.
func (h *UserHandlers) ProfileRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(user chi.Router) {
		user.Use(requireRoles(h.authn))
		user.Post("/profile", h.ensureProfile)
		user.Get("/info", h.getProfile)
		user.Post("/info", h.getProfile)
	})
	r.With(requireRoles(h.authn, auth.RoleAdmin, auth.RoleStaff)).Get("/get", h.listUsers)
}

// WishlistRoutes registers /wishlist.
func (h *UserHandlers) WishlistRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(requireRoles(h.authn))
	r.Get("/get", h.getWishlist)
	r.Post("/get", h.getWishlist)
	r.Post("/add", h.addToWishlist)
	r.Post("/remove", h.removeFromWishlist)
}

// AddressRoutes registers /address.
func (h *UserHandlers) AddressRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(requireRoles(h.authn))
	r.Get("/get", h.listAddresses)
	r.Post("/get", h.listAddresses)
	r.Post("/add", h.addAddress)
	r.Post("/remove", h.removeAddress)
}

type profileRequest struct {
	Name string `json:"name"`
}

type wishlistRequest struct {
	ItemID string `json:"itemId"`
}

type addressRequest struct {
	AddressID string `json:"addressId"`
}

type addressPayload struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Phone     string `json:"phone"`
}

func (p addressPayload) toAddress() services.Address {
	return services.Address{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Street:    p.Street,
		City:      p.City,
		State:     p.State,
		Phone:     p.Phone,
	}
}

func newAddressPayload(a services.Address) addressPayload {
	return addressPayload{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Street:    a.Street,
		City:      a.City,
		State:     a.State,
		Phone:     a.Phone,
	}
}

type userPayload struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	CreatedAt string           `json:"createdAt"`
	Addresses []addressPayload `json:"address,omitempty"`
}

func newUserPayload(u services.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func newAddressPayloads(addresses []services.Address) []addressPayload {
	out := make([]addressPayload, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, newAddressPayload(a))
	}
	return out
}

func (h *UserHandlers) ensureProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	// The body is optional; the verified token already carries the email.
	var req profileRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxUserBodySize, &req) {
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = identity.Name
	}
	user, err := h.users.EnsureProfile(ctx, services.EnsureProfileCommand{
		UserID: identity.UID,
		Email:  identity.Email,
		Name:   name,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": newUserPayload(user)})
}

func (h *UserHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	payload := newUserPayload(user)
	payload.Addresses = newAddressPayloads(user.Addresses)
	writeSuccess(w, http.StatusOK, map[string]any{"user": payload})
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	out := make([]userPayload, 0, len(users))
	for _, user := range users {
		out = append(out, newUserPayload(user))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": out})
}

func (h *UserHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	items, err := h.users.GetWishlist(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	wishData := make(map[string]int, len(items))
	for _, id := range items {
		wishData[id] = 1
	}
	writeSuccess(w, http.StatusOK, map[string]any{"wishData": wishData})
}

func (h *UserHandlers) addToWishlist(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		serviceUnavailable(r.Context(), w, "user")
		return
	}
	h.mutateWishlist(w, r, h.users.AddToWishlist, "Added to wishlist")
}

func (h *UserHandlers) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		serviceUnavailable(r.Context(), w, "user")
		return
	}
	h.mutateWishlist(w, r, h.users.RemoveFromWishlist, "Removed from wishlist")
}

func (h *UserHandlers) mutateWishlist(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string) error, message string) {
	ctx := r.Context()
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req wishlistRequest
	if !decodeJSONBody(w, r, maxUserBodySize, &req) {
		return
	}
	if err := apply(ctx, identity.UID, strings.TrimSpace(req.ItemID)); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": message})
}

func (h *UserHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	addresses, err := h.users.ListAddresses(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"address": newAddressPayloads(addresses)})
}

func (h *UserHandlers) addAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req addressPayload
	if !decodeJSONBody(w, r, maxUserBodySize, &req) {
		return
	}
	addresses, err := h.users.AddAddress(ctx, identity.UID, req.toAddress())
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "Address added",
		"address": newAddressPayloads(addresses),
	})
}

func (h *UserHandlers) removeAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		serviceUnavailable(ctx, w, "user")
		return
	}
	identity, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req addressRequest
	if !decodeJSONBody(w, r, maxUserBodySize, &req) {
		return
	}
	addresses, err := h.users.RemoveAddress(ctx, identity.UID, strings.TrimSpace(req.AddressID))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "Address removed",
		"address": newAddressPayloads(addresses),
	})
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrWishlistAlreadyExists):
		httpx.WriteError(ctx, w, httpx.NewError("already_in_wishlist", "product is already in the wishlist", http.StatusConflict))
	case errors.Is(err, services.ErrWishlistNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_in_wishlist", "product is not in the wishlist", http.StatusNotFound))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address does not exist", http.StatusNotFound))
	default:
		writeStorageError(ctx, w, "user_failed", "failed to process user request", err)
	}
}
