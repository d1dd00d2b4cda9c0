package repository

import (
	"context"

	"github.com/uwscope/scope-web-sub000/internal/model"
)

// Query selects revisions of one collection. Zero fields do not constrain;
// a non-nil SetID pointing at "" selects singleton documents.
type Query struct {
	Type   string
	SetID  *string
	Fields map[string]string
}

// Collection is the append-only storage of one logical collection.
// InsertOne must fail with errs.ErrDuplicateKey when (type, setId, rev) exists.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc model.Document) error
	// Find returns every revision matching q ordered by id.
	Find(ctx context.Context, q Query) ([]model.Document, error)
	// FindLatest returns the highest revision of each identity matching
	// q.Type and q.SetID, then keeps those whose body matches q.Fields.
	FindLatest(ctx context.Context, q Query) ([]model.Document, error)
}

// Database hands out collections and initialises them.
type Database interface {
	Collection(name string) Collection
	// EnsureCollection prepares constraints and writes the sentinel document once.
	EnsureCollection(ctx context.Context, name string) error
	// CollectionNames lists the collections that have been initialised.
	CollectionNames(ctx context.Context) ([]string, error)
}

func sentinel(id string) model.Document {
	return model.Document{ID: id, Type: model.TypeSentinel, Rev: 1, Body: map[string]any{}}
}
