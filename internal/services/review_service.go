package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/khotaikhoan/storefront/internal/domain"
	"github.com/khotaikhoan/storefront/internal/repositories"
)

var (
	// ErrReviewInvalidOrderID indicates the order id is not a valid identifier.
	ErrReviewInvalidOrderID = errors.New("review: invalid order id")
	// ErrReviewInvalidID indicates a malformed order, review or reply id.
	ErrReviewInvalidID = errors.New("review: invalid id")
	// ErrReviewInvalidRating indicates a rating outside 1..5.
	ErrReviewInvalidRating = errors.New("review: rating must be between 1 and 5")
	// ErrReviewEmptyReply indicates a reply with no text after trimming.
	ErrReviewEmptyReply = errors.New("review: reply text is required")
	// ErrReviewOrderNotFound indicates the order does not exist.
	ErrReviewOrderNotFound = errors.New("review: order not found")
	// ErrReviewNotFound indicates the review does not exist on the order.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReplyNotFound indicates the reply does not exist on the review.
	ErrReplyNotFound = errors.New("review: reply not found")
)

const (
	minRating = 1
	maxRating = 5
)

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newULID
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = cleanText
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *reviewService) AddReview(ctx context.Context, cmd AddReviewCommand) (Review, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if !validID(orderID) {
		return Review{}, ErrReviewInvalidOrderID
	}
	if cmd.Rating < minRating || cmd.Rating > maxRating {
		return Review{}, ErrReviewInvalidRating
	}
	review := Review{
		ID:        s.newID(),
		Rating:    cmd.Rating,
		Comment:   s.sanitize(cmd.Comment),
		IsHidden:  false,
		CreatedAt: s.clock(),
		Replies:   []Reply{},
	}
	if _, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		order.Reviews = append(order.Reviews, review)
		return nil
	}); err != nil {
		return Review{}, s.mapError(err)
	}
	s.logger(ctx, "review.created", map[string]any{"orderId": orderID, "reviewId": review.ID, "rating": review.Rating})
	return review, nil
}

// ListAllReviews flattens every review across orders, newest orders first.
func (s *reviewService) ListAllReviews(ctx context.Context) ([]ReviewEntry, error) {
	orders, err := s.orders.List(ctx, repositories.OrderListFilter{})
	if err != nil {
		return nil, err
	}
	var entries []ReviewEntry
	for _, order := range orders {
		for _, review := range order.Reviews {
			entries = append(entries, ReviewEntry{
				OrderID:   order.ID,
				ReviewID:  review.ID,
				Items:     order.Items,
				FirstName: order.Address.FirstName,
				LastName:  order.Address.LastName,
				Rating:    review.Rating,
				Comment:   review.Comment,
				CreatedAt: review.CreatedAt,
				IsHidden:  review.IsHidden,
				Replies:   review.Replies,
			})
		}
	}
	if entries == nil {
		entries = []ReviewEntry{}
	}
	return entries, nil
}

func (s *reviewService) HideReview(ctx context.Context, orderID, reviewID string) error {
	return s.setReviewHidden(ctx, orderID, reviewID, true)
}

func (s *reviewService) UnhideReview(ctx context.Context, orderID, reviewID string) error {
	return s.setReviewHidden(ctx, orderID, reviewID, false)
}

func (s *reviewService) setReviewHidden(ctx context.Context, orderID, reviewID string, hidden bool) error {
	orderID, reviewID = strings.TrimSpace(orderID), strings.TrimSpace(reviewID)
	if !validID(orderID) || !validID(reviewID) {
		return ErrReviewInvalidID
	}
	_, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		review := order.FindReview(reviewID)
		if review == nil {
			return ErrReviewNotFound
		}
		review.IsHidden = hidden
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "review.visibility.updated", map[string]any{"orderId": orderID, "reviewId": reviewID, "hidden": hidden})
	return nil
}

func (s *reviewService) ReplyToReview(ctx context.Context, orderID, reviewID, text string) (Reply, error) {
	orderID, reviewID = strings.TrimSpace(orderID), strings.TrimSpace(reviewID)
	if !validID(orderID) || !validID(reviewID) {
		return Reply{}, ErrReviewInvalidID
	}
	body := s.sanitize(text)
	if body == "" {
		return Reply{}, ErrReviewEmptyReply
	}
	reply := Reply{
		ID:        s.newID(),
		ReplyText: body,
		CreatedAt: s.clock(),
	}
	_, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		review := order.FindReview(reviewID)
		if review == nil {
			return ErrReviewNotFound
		}
		review.Replies = append(review.Replies, reply)
		return nil
	})
	if err != nil {
		return Reply{}, s.mapError(err)
	}
	s.logger(ctx, "review.reply.created", map[string]any{"orderId": orderID, "reviewId": reviewID, "replyId": reply.ID})
	return reply, nil
}

func (s *reviewService) HideReply(ctx context.Context, orderID, reviewID, replyID string) error {
	return s.setReplyHidden(ctx, orderID, reviewID, replyID, true)
}

func (s *reviewService) UnhideReply(ctx context.Context, orderID, reviewID, replyID string) error {
	return s.setReplyHidden(ctx, orderID, reviewID, replyID, false)
}

func (s *reviewService) setReplyHidden(ctx context.Context, orderID, reviewID, replyID string, hidden bool) error {
	orderID, reviewID, replyID = strings.TrimSpace(orderID), strings.TrimSpace(reviewID), strings.TrimSpace(replyID)
	if !validID(orderID) || !validID(reviewID) || !validID(replyID) {
		return ErrReviewInvalidID
	}
	_, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		review := order.FindReview(reviewID)
		if review == nil {
			return ErrReviewNotFound
		}
		reply := review.FindReply(replyID)
		if reply == nil {
			return ErrReplyNotFound
		}
		reply.IsHidden = hidden
		return nil
	})
	if err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, "review.reply.visibility.updated", map[string]any{
		"orderId":  orderID,
		"reviewId": reviewID,
		"replyId":  replyID,
		"hidden":   hidden,
	})
	return nil
}

func (s *reviewService) mapError(err error) error {
	switch {
	case errors.Is(err, ErrReviewNotFound):
		return ErrReviewNotFound
	case errors.Is(err, ErrReplyNotFound):
		return ErrReplyNotFound
	case isRepoNotFound(err):
		return ErrReviewOrderNotFound
	default:
		return fmt.Errorf("review: update order: %w", err)
	}
}
