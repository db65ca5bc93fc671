package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/khotaikhoan/storefront/internal/platform/firestore"
)

const collectionName = "idempotencyKeys"

// FirestoreStore shares reservations across instances. Expired documents are overwritten on the
// next reservation; a Firestore TTL policy on expiresAt reclaims the rest.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.Collection[keyDocument]
}

// NewFirestoreStore binds the store to the provider.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		keys:     pfirestore.NewCollection[keyDocument](provider, collectionName),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.keys.Doc(ctx, documentID(key))
	if err != nil {
		return 0, Record{}, err
	}

	var (
		state  State
		record Record
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		if err == nil {
			doc, err := pfirestore.Decode[keyDocument](snap)
			if err != nil {
				return err
			}
			existing := doc.Data.toRecord()
			if !expired(existing, now) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				state, record = StatePending, existing
				if existing.Completed {
					state = StateCompleted
				}
				return nil
			}
		}
		record = newPending(key, fingerprint, now, ttl)
		state = StateNew
		return tx.Set(ref, newKeyDocument(record))
	}, pfirestore.WithTxName("idempotency.reserve"))
	if err != nil {
		return 0, Record{}, err
	}
	return state, record, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.keys.Doc(ctx, documentID(key))
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record := newPending(key, fingerprint, now, ttl)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			doc, err := pfirestore.Decode[keyDocument](snap)
			if err != nil {
				return err
			}
			if doc.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record.CreatedAt = doc.Data.CreatedAt
		case !pfirestore.IsNotFound(err):
			return err
		}
		record.Completed = true
		record.Status = resp.Status
		record.Headers = storableHeaders(resp.Headers)
		record.Body = resp.Body
		return tx.Set(ref, newKeyDocument(record))
	}, pfirestore.WithTxName("idempotency.complete"))
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.keys.DeleteAll(ctx, []string{documentID(key)})
}

type keyDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Headers     map[string][]string `firestore:"headers"`
	Body        []byte              `firestore:"body"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func newKeyDocument(r Record) keyDocument {
	return keyDocument{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Headers:     r.Headers,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (d keyDocument) toRecord() Record {
	return Record{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
