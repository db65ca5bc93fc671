package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeProvider creates PaymentIntents with automatic payment methods enabled.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.Intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentIntent creates a Stripe PaymentIntent. VND is a zero-decimal currency in Stripe, so
// the amount is passed through as whole dong.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
		"createdAt":     p.clock(),
	})
	return stripeIntent(intent), nil
}

// LookupPayment retrieves a Stripe PaymentIntent.
func (p *StripeProvider) LookupPayment(ctx context.Context, intentID string) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripeIntent(intent), nil
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToLower(string(intent.Currency)),
		Status:       status,
	}
}
