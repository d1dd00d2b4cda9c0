// Package docset provides an immutable, duplicate-free set of document
// revisions and the queries the store and reconciler run over them.
// Nothing in this package performs I/O.
package docset

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/ids"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

// Set is a collection of documents keyed by id. Operations return new sets.
type Set struct {
	docs []model.Document
}

// New builds a set ordered by id. Duplicate or missing ids are rejected.
func New(docs ...model.Document) (Set, error) {
	seen := make(map[string]struct{}, len(docs))
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return Set{}, errs.InvalidArgument("document %s has no id", d.Identity())
		}
		if _, ok := seen[d.ID]; ok {
			return Set{}, errs.InvalidArgument("duplicate document id %s", d.ID)
		}
		seen[d.ID] = struct{}{}
		out = append(out, d.Clone())
	}
	sortByID(out)
	return Set{docs: out}, nil
}

func sortByID(docs []model.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

func (s Set) Len() int { return len(s.docs) }

// Documents returns copies of the members ordered by id.
func (s Set) Documents() []model.Document {
	out := make([]model.Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.Clone()
	}
	return out
}

// GroupByIdentity partitions the set by logical document.
func (s Set) GroupByIdentity() map[model.Identity]Set {
	groups := map[model.Identity]Set{}
	for _, d := range s.docs {
		g := groups[d.Identity()]
		g.docs = append(g.docs, d)
		groups[d.Identity()] = g
	}
	return groups
}

// OrderByRevision returns the members ordered by rev. It fails when the set
// spans more than one identity or repeats a revision.
func (s Set) OrderByRevision(reverse bool) ([]model.Document, error) {
	if len(s.docs) == 0 {
		return nil, nil
	}
	identity := s.docs[0].Identity()
	revs := make(map[int]struct{}, len(s.docs))
	for _, d := range s.docs {
		if d.Identity() != identity {
			return nil, errs.InvalidArgument("cannot order revisions across %s and %s", identity, d.Identity())
		}
		if _, ok := revs[d.Rev]; ok {
			return nil, errs.InvalidArgument("revision %d of %s appears twice", d.Rev, identity)
		}
		revs[d.Rev] = struct{}{}
	}
	out := s.Documents()
	sort.Slice(out, func(i, j int) bool {
		if reverse {
			return out[i].Rev > out[j].Rev
		}
		return out[i].Rev < out[j].Rev
	})
	return out, nil
}

// RemoveRevisions keeps only the highest revision of each identity.
func (s Set) RemoveRevisions() Set {
	latest := map[model.Identity]model.Document{}
	for _, d := range s.docs {
		if cur, ok := latest[d.Identity()]; !ok || d.Rev > cur.Rev {
			latest[d.Identity()] = d
		}
	}
	out := make([]model.Document, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sortByID(out)
	return Set{docs: out}
}

// RemoveDeleted drops tombstone revisions.
func (s Set) RemoveDeleted() Set {
	return s.filter(func(d model.Document) bool { return !d.Deleted })
}

// RemoveSentinel drops documents of the placeholder type typeTag.
func (s Set) RemoveSentinel(typeTag string) Set {
	return s.filter(func(d model.Document) bool { return d.Type != typeTag })
}

func (s Set) filter(keep func(model.Document) bool) Set {
	var out []model.Document
	for _, d := range s.docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return Set{docs: out}
}

// Union merges sets. Documents sharing an id are taken once.
func (s Set) Union(others ...Set) Set {
	seen := make(map[string]struct{}, len(s.docs))
	var out []model.Document
	for _, set := range append([]Set{s}, others...) {
		for _, d := range set.docs {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	sortByID(out)
	return Set{docs: out}
}

// RemoveAll removes docs and fails if any of them is not a member.
func (s Set) RemoveAll(docs ...model.Document) (Set, error) {
	for _, d := range docs {
		if !s.contains(d) {
			return Set{}, errs.InvalidArgument("document %s is not in the set", d.ID)
		}
	}
	return s.RemoveAny(docs...), nil
}

// RemoveAny removes whichever of docs are members.
func (s Set) RemoveAny(docs ...model.Document) Set {
	return s.filter(func(m model.Document) bool {
		for _, d := range docs {
			if sameDocument(m, d) {
				return false
			}
		}
		return true
	})
}

func (s Set) ContainsAll(docs ...model.Document) bool {
	for _, d := range docs {
		if !s.contains(d) {
			return false
		}
	}
	return true
}

func (s Set) ContainsAny(docs ...model.Document) bool {
	for _, d := range docs {
		if s.contains(d) {
			return true
		}
	}
	return false
}

func (s Set) contains(d model.Document) bool {
	for _, m := range s.docs {
		if sameDocument(m, d) {
			return true
		}
	}
	return false
}

// Equal reports structural equality, independent of construction order.
func (s Set) Equal(other Set) bool {
	if len(s.docs) != len(other.docs) {
		return false
	}
	for i := range s.docs {
		if !sameDocument(s.docs[i], other.docs[i]) {
			return false
		}
	}
	return true
}

// Unique returns the only member. Empty or larger sets are an error.
func (s Set) Unique() (model.Document, error) {
	if len(s.docs) != 1 {
		return model.Document{}, errs.InvalidArgument("expected exactly one document, set has %d", len(s.docs))
	}
	return s.docs[0].Clone(), nil
}

func sameDocument(a, b model.Document) bool {
	if a.ID != b.ID || a.Type != b.Type || a.Rev != b.Rev || a.SetID != b.SetID || a.Deleted != b.Deleted {
		return false
	}
	if len(a.Body) != len(b.Body) {
		return false
	}
	for k, av := range a.Body {
		bv, ok := b.Body[k]
		if !ok || !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

// valuesEqual compares body values, treating numbers by value so that a body
// read back from JSON or BSON equals the one that was written.
func valuesEqual(a, b any) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			w, ok := bt[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !valuesEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// createdAt is the creation instant encoded in a document id.
func createdAt(d model.Document) (time.Time, error) {
	t, err := ids.TimeOf(d.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	return t, nil
}
