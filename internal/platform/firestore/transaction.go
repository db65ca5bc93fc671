package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc runs inside a transaction. All reads must precede the first write.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes a single RunTransaction call.
type TxOption func(*txSettings)

type txSettings struct {
	op       string
	attempts int
	timeout  time.Duration
}

// WithTxAttempts raises or lowers how often contention aborts are retried. Checkout uses more
// attempts than single-document mutations since it touches every ordered product.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxName labels errors returned by the transaction, e.g. "orders.place".
func WithTxName(op string) TxOption {
	return func(s *txSettings) {
		if op != "" {
			s.op = op
		}
	}
}

// RunTransaction executes fn on client. When every attempt aborts the error is classified as a
// conflict so callers can surface it as retryable.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	s := txSettings{op: "transaction", attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	switch {
	case client == nil:
		return WrapError(s.op, errors.New("firestore: client is nil"))
	case fn == nil:
		return WrapError(s.op, errors.New("firestore: transaction function is nil"))
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > s.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return WrapError(s.op, client.RunTransaction(ctx, fn, firestore.MaxAttempts(s.attempts)))
}
