package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/uwscope/scope-web-sub000/internal/docset"
	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/logger"
	"github.com/uwscope/scope-web-sub000/internal/metrics"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

const tracerName = "github.com/uwscope/scope-web-sub000/internal/repository"

// DocumentStore reads and appends revisions of the documents in one collection.
// Writes never modify a stored revision; concurrent writers are serialised by
// the collection's unique (type, setId, rev) constraint.
type DocumentStore struct {
	coll    Collection
	ids     ids.Generator
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type StoreOption func(*DocumentStore)

func WithIDGenerator(gen ids.Generator) StoreOption {
	return func(s *DocumentStore) { s.ids = gen }
}

func WithLogger(l *logger.Logger) StoreOption {
	return func(s *DocumentStore) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *DocumentStore) { s.metrics = m }
}

func NewDocumentStore(coll Collection, opts ...StoreOption) *DocumentStore {
	s := &DocumentStore{
		coll:   coll,
		ids:    ids.NewGenerator(nil),
		log:    logger.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("collection", coll.Name())
	return s
}

func (s *DocumentStore) Collection() string { return s.coll.Name() }

// GetCurrent returns the highest revision of id, tombstones included.
// It returns nil when id was never written.
func (s *DocumentStore) GetCurrent(ctx context.Context, id model.Identity) (*model.Document, error) {
	if err := checkIdentity(id); err != nil {
		return nil, err
	}
	setID := id.SetID
	docs, err := s.coll.FindLatest(ctx, Query{Type: id.Type, SetID: &setID})
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return &docs[0], nil
	default:
		return nil, &errs.IntegrityError{Reason: fmt.Sprintf("%d latest revisions for %s", len(docs), id)}
	}
}

// GetAllCurrent returns the live (not deleted) current document of every
// identity of docType.
func (s *DocumentStore) GetAllCurrent(ctx context.Context, docType string) (docset.Set, error) {
	return s.GetAllCurrentMatching(ctx, docType, nil)
}

// GetAllCurrentMatching is GetAllCurrent restricted to documents whose body
// carries every attribute of fields.
func (s *DocumentStore) GetAllCurrentMatching(ctx context.Context, docType string, fields map[string]string) (docset.Set, error) {
	docs, err := s.coll.FindLatest(ctx, Query{Type: docType, Fields: fields})
	if err != nil {
		return docset.Set{}, err
	}
	set, err := docset.New(docs...)
	if err != nil {
		return docset.Set{}, err
	}
	return set.RemoveDeleted().RemoveSentinel(model.TypeSentinel), nil
}

// History returns every revision of id.
func (s *DocumentStore) History(ctx context.Context, id model.Identity) (docset.Set, error) {
	if err := checkIdentity(id); err != nil {
		return docset.Set{}, err
	}
	setID := id.SetID
	docs, err := s.coll.Find(ctx, Query{Type: id.Type, SetID: &setID})
	if err != nil {
		return docset.Set{}, err
	}
	return docset.New(docs...)
}

// GetAsOf returns the revision of id that was current at instant at, or nil.
func (s *DocumentStore) GetAsOf(ctx context.Context, id model.Identity, at time.Time) (*model.Document, error) {
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := history.FilterMatch(docset.Match{AsOf: &at})
	if err != nil {
		return nil, err
	}
	if current.Len() == 0 {
		return nil, nil
	}
	doc, err := current.Unique()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create writes revision 1 of a new document. Set kinds get a fresh setId.
func (s *DocumentStore) Create(ctx context.Context, docType string, body map[string]any) (doc model.Document, err error) {
	ctx, span := s.startSpan(ctx, "DocumentStore.Create", docType)
	start := time.Now()
	defer func() { s.finish(span, "create", start, err) }()

	if err := checkBody(body); err != nil {
		return model.Document{}, err
	}
	doc = model.Document{
		ID:   s.ids.NewID(),
		Type: docType,
		Rev:  1,
		Body: model.CloneBody(body),
	}
	if kind, ok := model.LookupKind(docType); ok && kind.Set {
		if _, present := body[kind.SetIDField()]; present {
			return model.Document{}, errs.InvalidArgument("%s is assigned by the store", kind.SetIDField())
		}
		doc.SetID = ids.NewSetID()
		doc.Body[kind.SetIDField()] = doc.SetID
	}
	span.SetAttributes(attribute.String("document.identity", doc.Identity().String()))

	if err := s.insert(ctx, doc, nil); err != nil {
		return model.Document{}, err
	}
	s.log.Debug("document created", "identity", doc.Identity().String(), "id", doc.ID)
	return doc, nil
}

// PutNextRevision writes body as the revision after the current one. When
// basisRev is set it must equal the current revision.
func (s *DocumentStore) PutNextRevision(ctx context.Context, id model.Identity, basisRev *int, body map[string]any) (doc model.Document, err error) {
	ctx, span := s.startSpan(ctx, "DocumentStore.PutNextRevision", id.Type)
	span.SetAttributes(attribute.String("document.identity", id.String()))
	start := time.Now()
	defer func() { s.finish(span, "put", start, err) }()

	if err := checkIdentity(id); err != nil {
		return model.Document{}, err
	}
	if err := checkBody(body); err != nil {
		return model.Document{}, err
	}
	current, err := s.GetCurrent(ctx, id)
	if err != nil {
		return model.Document{}, err
	}

	next := 1
	switch {
	case current == nil || (current.Deleted && !id.IsSet()):
		if id.IsSet() {
			return model.Document{}, errs.NotFound(id)
		}
		currentRev := 0
		if current != nil {
			currentRev = current.Rev
		}
		if basisRev != nil && *basisRev != currentRev {
			return model.Document{}, &errs.RevisionConflictError{Identity: id, BasisRev: basisRev, Current: current}
		}
		next = currentRev + 1
	case current.Deleted:
		return model.Document{}, errs.NotFound(id)
	default:
		if basisRev != nil && *basisRev != current.Rev {
			return model.Document{}, &errs.RevisionConflictError{Identity: id, BasisRev: basisRev, Current: current}
		}
		next = current.Rev + 1
	}

	doc = model.Document{
		ID:    s.ids.NewID(),
		Type:  id.Type,
		Rev:   next,
		SetID: id.SetID,
		Body:  model.CloneBody(body),
	}
	if kind, ok := model.LookupKind(id.Type); ok && kind.Set {
		doc.Body[kind.SetIDField()] = id.SetID
	}
	if err := s.insert(ctx, doc, basisRev); err != nil {
		return model.Document{}, err
	}
	s.log.Debug("document revised", "identity", id.String(), "rev", doc.Rev)
	return doc, nil
}

// SoftDelete appends a tombstone revision carrying the prior body.
func (s *DocumentStore) SoftDelete(ctx context.Context, id model.Identity, basisRev *int) (doc model.Document, err error) {
	ctx, span := s.startSpan(ctx, "DocumentStore.SoftDelete", id.Type)
	span.SetAttributes(attribute.String("document.identity", id.String()))
	start := time.Now()
	defer func() { s.finish(span, "delete", start, err) }()

	current, err := s.GetCurrent(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	if current == nil || current.Deleted {
		return model.Document{}, errs.NotFound(id)
	}
	if basisRev != nil && *basisRev != current.Rev {
		return model.Document{}, &errs.RevisionConflictError{Identity: id, BasisRev: basisRev, Current: current}
	}

	doc = current.Clone()
	doc.ID = s.ids.NewID()
	doc.Rev = current.Rev + 1
	doc.Deleted = true
	if err := s.insert(ctx, doc, basisRev); err != nil {
		return model.Document{}, err
	}
	s.log.Debug("document deleted", "identity", id.String(), "rev", doc.Rev)
	return doc, nil
}

// insert turns a lost race on the revision constraint into a conflict that
// carries the winning revision.
func (s *DocumentStore) insert(ctx context.Context, doc model.Document, basisRev *int) error {
	err := s.coll.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.ErrDuplicateKey) {
		return err
	}
	winner, gerr := s.GetCurrent(ctx, doc.Identity())
	if gerr != nil {
		return fmt.Errorf("read winner after conflict: %w", gerr)
	}
	s.log.Warn("concurrent revision write lost", "identity", doc.Identity().String(), "rev", doc.Rev)
	return &errs.RevisionConflictError{Identity: doc.Identity(), BasisRev: basisRev, Current: winner}
}

func (s *DocumentStore) startSpan(ctx context.Context, name, docType string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("document.collection", s.coll.Name()),
		attribute.String("document.type", docType),
	))
}

func (s *DocumentStore) finish(span trace.Span, operation string, start time.Time, err error) {
	defer span.End()
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrRevisionConflict):
		outcome = "conflict"
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidArgument):
		outcome = "rejected"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.ObserveWrite(operation, outcome, start)
}

func checkIdentity(id model.Identity) error {
	if id.Type == "" {
		return errs.InvalidArgument("document type is required")
	}
	if kind, ok := model.LookupKind(id.Type); ok && kind.Set != id.IsSet() {
		if kind.Set {
			return errs.InvalidArgument("%s is a set kind and needs a setId", id.Type)
		}
		return errs.InvalidArgument("%s is a singleton kind and takes no setId", id.Type)
	}
	return nil
}

func checkBody(body map[string]any) error {
	for k := range body {
		if model.IsReservedField(k) {
			return errs.InvalidArgument("body may not contain %s", k)
		}
	}
	return nil
}
