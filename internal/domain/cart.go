package domain

import "math"

// SanitizeCart converts a stored cartData map into a Cart, dropping entries whose value is not a
// positive whole number. Firestore hands back int64 or float64 depending on how the value was
// written.
func SanitizeCart(raw map[string]any) Cart {
	cart := make(Cart, len(raw))
	for productID, value := range raw {
		if qty, ok := wholeQuantity(value); ok {
			cart[productID] = qty
		}
	}
	return cart
}

func wholeQuantity(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, v > 0
	case int32:
		return int(v), v > 0
	case int64:
		return int(v), v > 0
	case float64:
		if v <= 0 || math.IsInf(v, 0) || math.Trunc(v) != v || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
