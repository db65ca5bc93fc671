package domain

import "strings"

// nominalTransitions is the lifecycle clients are expected to follow. UpdateStatus does not enforce
// it; it is used to flag out-of-band moves.
var nominalTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusReadyToShip: {
		OrderStatusShipping:  {},
		OrderStatusCancelled: {},
	},
	OrderStatusShipping: {
		OrderStatusDelivered: {},
		OrderStatusCancelled: {},
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus matches a status string case-insensitively against the known statuses.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	trimmed := strings.TrimSpace(value)
	for status := range nominalTransitions {
		if strings.EqualFold(string(status), trimmed) {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further lifecycle step is expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsNominalTransition reports whether from -> to follows the expected lifecycle.
func IsNominalTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	next, ok := nominalTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ParsePaymentMethod accepts "COD" and "Stripe" in any case.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cod":
		return PaymentMethodCOD, true
	case "stripe":
		return PaymentMethodStripe, true
	default:
		return "", false
	}
}

// LineRevenue is the margin earned on one order line.
func LineRevenue(p Product, quantity int) int64 {
	return (p.Price - p.GiaNhap) * int64(quantity)
}

// FindReview returns a pointer into o.Reviews so callers can mutate in place.
func (o *Order) FindReview(reviewID string) *Review {
	if o == nil {
		return nil
	}
	for i := range o.Reviews {
		if o.Reviews[i].ID == reviewID {
			return &o.Reviews[i]
		}
	}
	return nil
}

// FindReply returns a pointer into r.Replies.
func (r *Review) FindReply(replyID string) *Reply {
	if r == nil {
		return nil
	}
	for i := range r.Replies {
		if r.Replies[i].ID == replyID {
			return &r.Replies[i]
		}
	}
	return nil
}

// ContainsProductName reports whether any snapshot line carries the given product name.
func (o Order) ContainsProductName(name string) bool {
	for _, item := range o.Items {
		if item.Name == name {
			return true
		}
	}
	return false
}
