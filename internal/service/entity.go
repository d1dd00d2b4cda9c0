package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/uwscope/scope-web-sub000/internal/docset"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
	"github.com/uwscope/scope-web-sub000/internal/repository"
	"github.com/uwscope/scope-web-sub000/internal/validation"
)

// SetHooks lets a module check an entity before it is written and react
// after a write succeeded. After* errors are returned to the caller but the
// write itself stays committed.
type SetHooks[T any] interface {
	Check(ctx context.Context, store *repository.DocumentStore, entity T) error
	AfterCreate(ctx context.Context, store *repository.DocumentStore, doc model.Document, entity T) error
	AfterUpdate(ctx context.Context, store *repository.DocumentStore, prev *model.Document, next model.Document, entity T) error
	AfterDelete(ctx context.Context, store *repository.DocumentStore, tombstone model.Document, entity T) error
}

// NoHooks is embedded by modules that only need some of the hooks.
type NoHooks[T any] struct{}

func (NoHooks[T]) Check(context.Context, *repository.DocumentStore, T) error { return nil }
func (NoHooks[T]) AfterCreate(context.Context, *repository.DocumentStore, model.Document, T) error {
	return nil
}
func (NoHooks[T]) AfterUpdate(context.Context, *repository.DocumentStore, *model.Document, model.Document, T) error {
	return nil
}
func (NoHooks[T]) AfterDelete(context.Context, *repository.DocumentStore, model.Document, T) error {
	return nil
}

// DocumentHandler is the untyped surface of an entity module.
type DocumentHandler interface {
	Kind() model.Kind
	Get(ctx context.Context, collection, setID string) (model.Document, error)
	GetAll(ctx context.Context, collection string) ([]model.Document, error)
	Create(ctx context.Context, collection string, body map[string]any) (model.Document, error)
	Put(ctx context.Context, collection, setID string, basisRev *int, body map[string]any) (model.Document, error)
	Delete(ctx context.Context, collection, setID string, basisRev *int) (model.Document, error)
}

// SetService manages the elements of one set kind.
type SetService[T any] struct {
	kind      model.Kind
	stores    *Stores
	validator validation.Validator
	hooks     SetHooks[T]
}

func NewSetService[T any](docType string, stores *Stores, v validation.Validator, hooks SetHooks[T]) *SetService[T] {
	kind, ok := model.LookupKind(docType)
	if !ok || !kind.Set {
		panic(fmt.Sprintf("service: %q is not a set kind", docType))
	}
	if hooks == nil {
		hooks = NoHooks[T]{}
	}
	return &SetService[T]{kind: kind, stores: stores, validator: v, hooks: hooks}
}

func (s *SetService[T]) Kind() model.Kind { return s.kind }

// Get returns the live current revision of setID.
func (s *SetService[T]) Get(ctx context.Context, collection, setID string) (model.Document, error) {
	id := model.Element(s.kind.Type, setID)
	doc, err := s.stores.Store(collection).GetCurrent(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	if doc == nil || doc.Deleted {
		return model.Document{}, errs.NotFound(id)
	}
	return *doc, nil
}

// GetTyped is Get decoded into the entity type.
func (s *SetService[T]) GetTyped(ctx context.Context, collection, setID string) (T, model.Document, error) {
	var entity T
	doc, err := s.Get(ctx, collection, setID)
	if err != nil {
		return entity, model.Document{}, err
	}
	err = doc.Decode(&entity)
	return entity, doc, err
}

func (s *SetService[T]) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	set, err := s.stores.Store(collection).GetAllCurrent(ctx, s.kind.Type)
	if err != nil {
		return nil, err
	}
	return set.Documents(), nil
}

func (s *SetService[T]) Create(ctx context.Context, collection string, body map[string]any) (model.Document, error) {
	store := s.stores.Store(collection)
	if err := s.check(ctx, store, body); err != nil {
		return model.Document{}, err
	}
	doc, err := store.Create(ctx, s.kind.Type, body)
	if err != nil {
		return model.Document{}, err
	}
	entity, err := decode[T](doc)
	if err != nil {
		return doc, err
	}
	if err := s.hooks.AfterCreate(ctx, store, doc, entity); err != nil {
		return doc, fmt.Errorf("after create of %s: %w", doc.Identity(), err)
	}
	return doc, nil
}

func (s *SetService[T]) Put(ctx context.Context, collection, setID string, basisRev *int, body map[string]any) (model.Document, error) {
	store := s.stores.Store(collection)
	if err := s.check(ctx, store, body); err != nil {
		return model.Document{}, err
	}
	id := model.Element(s.kind.Type, setID)
	prev, err := store.GetCurrent(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	doc, err := store.PutNextRevision(ctx, id, basisRev, body)
	if err != nil {
		return model.Document{}, err
	}
	entity, err := decode[T](doc)
	if err != nil {
		return doc, err
	}
	if err := s.hooks.AfterUpdate(ctx, store, prev, doc, entity); err != nil {
		return doc, fmt.Errorf("after update of %s: %w", doc.Identity(), err)
	}
	return doc, nil
}

func (s *SetService[T]) Delete(ctx context.Context, collection, setID string, basisRev *int) (model.Document, error) {
	store := s.stores.Store(collection)
	tomb, err := store.SoftDelete(ctx, model.Element(s.kind.Type, setID), basisRev)
	if err != nil {
		return model.Document{}, err
	}
	entity, err := decode[T](tomb)
	if err != nil {
		return tomb, err
	}
	if err := s.hooks.AfterDelete(ctx, store, tomb, entity); err != nil {
		return tomb, fmt.Errorf("after delete of %s: %w", tomb.Identity(), err)
	}
	return tomb, nil
}

func (s *SetService[T]) check(ctx context.Context, store *repository.DocumentStore, body map[string]any) error {
	if err := s.validator.Validate(s.kind.Type, body); err != nil {
		return err
	}
	entity, err := decode[T](model.Document{Type: s.kind.Type, Body: body})
	if err != nil {
		return err
	}
	return s.hooks.Check(ctx, store, entity)
}

// SingletonService manages a kind with one document per collection.
type SingletonService[T any] struct {
	kind      model.Kind
	stores    *Stores
	validator validation.Validator
}

func NewSingletonService[T any](docType string, stores *Stores, v validation.Validator) *SingletonService[T] {
	kind, ok := model.LookupKind(docType)
	if !ok || kind.Set {
		panic(fmt.Sprintf("service: %q is not a singleton kind", docType))
	}
	return &SingletonService[T]{kind: kind, stores: stores, validator: v}
}

func (s *SingletonService[T]) Kind() model.Kind { return s.kind }

func (s *SingletonService[T]) identity() model.Identity { return model.Singleton(s.kind.Type) }

func (s *SingletonService[T]) Get(ctx context.Context, collection string) (model.Document, error) {
	doc, err := s.stores.Store(collection).GetCurrent(ctx, s.identity())
	if err != nil {
		return model.Document{}, err
	}
	if doc == nil || doc.Deleted {
		return model.Document{}, errs.NotFound(s.identity())
	}
	return *doc, nil
}

func (s *SingletonService[T]) Put(ctx context.Context, collection string, basisRev *int, body map[string]any) (model.Document, error) {
	if err := s.validator.Validate(s.kind.Type, body); err != nil {
		return model.Document{}, err
	}
	return s.stores.Store(collection).PutNextRevision(ctx, s.identity(), basisRev, body)
}

func (s *SingletonService[T]) History(ctx context.Context, collection string) (docset.Set, error) {
	return s.stores.Store(collection).History(ctx, s.identity())
}

// Handler adapts the singleton to DocumentHandler; setIds must be empty.
func (s *SingletonService[T]) Handler() DocumentHandler {
	return singletonHandler[T]{s}
}

type singletonHandler[T any] struct {
	svc *SingletonService[T]
}

func (h singletonHandler[T]) Kind() model.Kind { return h.svc.kind }

func (h singletonHandler[T]) Get(ctx context.Context, collection, setID string) (model.Document, error) {
	if err := noSetID(h.svc.kind, setID); err != nil {
		return model.Document{}, err
	}
	return h.svc.Get(ctx, collection)
}

func (h singletonHandler[T]) GetAll(ctx context.Context, collection string) ([]model.Document, error) {
	doc, err := h.svc.Get(ctx, collection)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return []model.Document{doc}, nil
}

func (h singletonHandler[T]) Create(ctx context.Context, collection string, body map[string]any) (model.Document, error) {
	if err := h.svc.validator.Validate(h.svc.kind.Type, body); err != nil {
		return model.Document{}, err
	}
	return h.svc.stores.Store(collection).Create(ctx, h.svc.kind.Type, body)
}

func (h singletonHandler[T]) Put(ctx context.Context, collection, setID string, basisRev *int, body map[string]any) (model.Document, error) {
	if err := noSetID(h.svc.kind, setID); err != nil {
		return model.Document{}, err
	}
	return h.svc.Put(ctx, collection, basisRev, body)
}

func (h singletonHandler[T]) Delete(ctx context.Context, collection, setID string, basisRev *int) (model.Document, error) {
	if err := noSetID(h.svc.kind, setID); err != nil {
		return model.Document{}, err
	}
	return h.svc.stores.Store(collection).SoftDelete(ctx, h.svc.identity(), basisRev)
}

func noSetID(kind model.Kind, setID string) error {
	if setID != "" {
		return errs.InvalidArgument("%s is a singleton and takes no setId", kind.Type)
	}
	return nil
}

func decode[T any](doc model.Document) (T, error) {
	var entity T
	if err := doc.Decode(&entity); err != nil {
		return entity, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return entity, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
