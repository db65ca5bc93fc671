package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

const countAlias = "total"

// Document is a decoded snapshot plus its Firestore metadata.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// QueryBuilder customises a collection query before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection binds typed document helpers to one top-level collection. T is the persisted shape
// and must be decodable with DataTo.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection constructs a Collection for name.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection id.
func (c *Collection[T]) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Ref returns the collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("collection", errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("collection", errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the reference for id, for use inside transactions.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("doc"), errors.New("firestore: document id is required"))
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get fetches and decodes one document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return Decode[T](snap)
}

// Create writes value under id and fails with a conflict when the document already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, value)
	return WrapError(c.op("create"), err)
}

// Set upserts value under id.
func (c *Collection[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, value, opts...)
	return WrapError(c.op("set"), err)
}

// Update applies field updates. Updating a missing document yields a not-found error.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, updates)
	return WrapError(c.op("update"), err)
}

// Delete removes id and reports not-found when it does not exist.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return WrapError(c.op("delete"), err)
}

// DeleteAll removes the given documents with a bulk writer. Missing ids are not an error.
func (c *Collection[T]) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return err
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return err
	}

	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		job, err := writer.Delete(coll.Doc(id))
		if err != nil {
			writer.End()
			return WrapError(c.op("delete"), err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return WrapError(c.op("delete"), err)
		}
	}
	return nil
}

// Query executes a query and decodes every document.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := Decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Count runs a server-side count aggregation.
func (c *Collection[T]) Count(ctx context.Context, build QueryBuilder) (int64, error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return 0, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	result, err := query.NewAggregationQuery().WithCount(countAlias).Get(ctx)
	if err != nil {
		return 0, WrapError(c.op("count"), err)
	}
	value, ok := result[countAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("firestore: unexpected count result %T", result[countAlias])
	}
	return value.GetIntegerValue(), nil
}

func (c *Collection[T]) op(action string) string {
	if c == nil || c.name == "" {
		return "firestore." + action
	}
	return c.name + "." + action
}

// Decode hydrates a snapshot into T.
func Decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	if snap == nil || !snap.Exists() {
		return Document[T]{}, errors.New("firestore: snapshot does not exist")
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.ID, err)
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       data,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}
