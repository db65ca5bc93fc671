package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised payment states.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrInvalidAmount is returned for non-positive amounts.
var ErrInvalidAmount = errors.New("payments: amount must be positive")

// IntentRequest describes a card payment the client is about to confirm.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the PSP object returned to the client. ClientSecret is what the mobile SDK needs.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
}

// Provider is implemented by payment gateways.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	LookupPayment(ctx context.Context, intentID string) (Intent, error)
}
