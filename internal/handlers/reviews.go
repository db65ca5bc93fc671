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

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes review submission and moderation.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
	limiter *windowLimiter
}

// ReviewHandlersOption customises ReviewHandlers.
type ReviewHandlersOption func(*ReviewHandlers)

// WithReviewRateLimit caps review submissions per user within window.
func WithReviewRateLimit(limit int, window time.Duration, clock func() time.Time) ReviewHandlersOption {
	return func(h *ReviewHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, opts ...ReviewHandlersOption) *ReviewHandlers {
	h := &ReviewHandlers{authn: authn, reviews: reviews}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/get", h.listReviews)

	r.With(requireRoles(h.authn), h.limiter.perUser).Post("/{orderId}/add", h.addReview)

	r.Group(func(admin chi.Router) {
		admin.Use(requireRoles(h.authn, auth.RoleAdmin, auth.RoleStaff))
		admin.Patch("/hide", h.hideReview)
		admin.Patch("/unhide", h.unhideReview)
		admin.Post("/{orderId}/reviews/{reviewId}/reply", h.replyToReview)
		admin.Post("/{orderId}/reviews/{reviewId}/replies/{replyId}/hide", h.hideReply)
		admin.Post("/{orderId}/reviews/{reviewId}/replies/{replyId}/unhide", h.unhideReply)
	})
}

type addReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewTargetRequest struct {
	OrderID  string `json:"orderId"`
	ReviewID string `json:"reviewId"`
}

type replyRequest struct {
	ReplyText string `json:"replyText"`
}

type replyPayload struct {
	ID        string `json:"id"`
	ReplyText string `json:"replyText"`
	IsHidden  bool   `json:"isHidden"`
	CreatedAt string `json:"createdAt"`
}

type reviewPayload struct {
	ID        string         `json:"id"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment"`
	IsHidden  bool           `json:"isHidden"`
	CreatedAt string         `json:"createdAt"`
	Replies   []replyPayload `json:"replies"`
}

type reviewEntryPayload struct {
	OrderID   string             `json:"orderId"`
	ReviewID  string             `json:"reviewId"`
	Items     []orderItemPayload `json:"items"`
	FirstName string             `json:"firstName"`
	LastName  string             `json:"lastName"`
	Rating    int                `json:"rating"`
	Comment   string             `json:"comment"`
	CreatedAt string             `json:"createdAt"`
	IsHidden  bool               `json:"isHidden"`
	Replies   []replyPayload     `json:"replies"`
}

func newReplyPayload(reply services.Reply) replyPayload {
	return replyPayload{
		ID:        reply.ID,
		ReplyText: reply.ReplyText,
		IsHidden:  reply.IsHidden,
		CreatedAt: formatTime(reply.CreatedAt),
	}
}

func newReplyPayloads(replies []services.Reply) []replyPayload {
	out := make([]replyPayload, 0, len(replies))
	for _, reply := range replies {
		out = append(out, newReplyPayload(reply))
	}
	return out
}

func newReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		IsHidden:  review.IsHidden,
		CreatedAt: formatTime(review.CreatedAt),
		Replies:   newReplyPayloads(review.Replies),
	}
}

func (h *ReviewHandlers) addReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	var req addReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.AddReview(ctx, services.AddReviewCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "Review added",
		"review":  newReviewPayload(review),
	})
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	entries, err := h.reviews.ListAllReviews(ctx)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	out := make([]reviewEntryPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, reviewEntryPayload{
			OrderID:   entry.OrderID,
			ReviewID:  entry.ReviewID,
			Items:     newOrderItemPayloads(entry.Items),
			FirstName: entry.FirstName,
			LastName:  entry.LastName,
			Rating:    entry.Rating,
			Comment:   entry.Comment,
			CreatedAt: formatTime(entry.CreatedAt),
			IsHidden:  entry.IsHidden,
			Replies:   newReplyPayloads(entry.Replies),
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"reviews": out})
}

func (h *ReviewHandlers) hideReview(w http.ResponseWriter, r *http.Request) {
	h.toggleReview(w, r, true)
}

func (h *ReviewHandlers) unhideReview(w http.ResponseWriter, r *http.Request) {
	h.toggleReview(w, r, false)
}

func (h *ReviewHandlers) toggleReview(w http.ResponseWriter, r *http.Request, hidden bool) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	var req reviewTargetRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	orderID, reviewID := strings.TrimSpace(req.OrderID), strings.TrimSpace(req.ReviewID)

	var err error
	message := "Review hidden"
	if hidden {
		err = h.reviews.HideReview(ctx, orderID, reviewID)
	} else {
		err = h.reviews.UnhideReview(ctx, orderID, reviewID)
		message = "Review visible"
	}
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": message})
}

func (h *ReviewHandlers) replyToReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	var req replyRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	reply, err := h.reviews.ReplyToReview(ctx,
		strings.TrimSpace(chi.URLParam(r, "orderId")),
		strings.TrimSpace(chi.URLParam(r, "reviewId")),
		req.ReplyText,
	)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "Reply added",
		"reply":   newReplyPayload(reply),
	})
}

func (h *ReviewHandlers) hideReply(w http.ResponseWriter, r *http.Request) {
	h.toggleReply(w, r, true)
}

func (h *ReviewHandlers) unhideReply(w http.ResponseWriter, r *http.Request) {
	h.toggleReply(w, r, false)
}

func (h *ReviewHandlers) toggleReply(w http.ResponseWriter, r *http.Request, hidden bool) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	reviewID := strings.TrimSpace(chi.URLParam(r, "reviewId"))
	replyID := strings.TrimSpace(chi.URLParam(r, "replyId"))

	var err error
	message := "Reply hidden"
	if hidden {
		err = h.reviews.HideReply(ctx, orderID, reviewID, replyID)
	} else {
		err = h.reviews.UnhideReply(ctx, orderID, reviewID, replyID)
		message = "Reply visible"
	}
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": message})
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidOrderID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_order_id", "order id is malformed", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewInvalidID):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_id", "id is malformed", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewInvalidRating):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rating", "rating must be between 1 and 5", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewEmptyReply):
		httpx.WriteError(ctx, w, httpx.NewError("empty_reply", "reply text is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrReplyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("reply_not_found", "reply does not exist", http.StatusNotFound))
	default:
		writeStorageError(ctx, w, "review_failed", "failed to process review", err)
	}
}
