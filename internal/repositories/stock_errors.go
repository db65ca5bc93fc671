package repositories

import "fmt"

// StockErrorCode enumerates why an order placement was refused.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the requested quantity exceeds soLuong.
	StockErrorInsufficient StockErrorCode = "insufficient_stock"
	// StockErrorProductNotFound indicates an ordered product does not exist.
	StockErrorProductNotFound StockErrorCode = "product_not_found"
)

// StockError reports the first product that blocked a placement.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	Name      string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorInsufficient:
		return fmt.Sprintf("%s: product %s requested %d available %d", e.Code, e.ProductID, e.Requested, e.Available)
	default:
		return fmt.Sprintf("%s: product %s", e.Code, e.ProductID)
	}
}
