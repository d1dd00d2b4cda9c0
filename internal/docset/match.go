package docset

import (
	"sort"
	"time"

	"github.com/uwscope/scope-web-sub000/internal/errs"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

// Match is a conjunction of predicates. Nil fields do not constrain.
type Match struct {
	Type    *string
	Deleted *bool
	AsOf    *time.Time
	Fields  map[string]any
}

func (m Match) empty() bool {
	return m.Type == nil && m.Deleted == nil && m.AsOf == nil && len(m.Fields) == 0
}

// FilterMatch keeps the members satisfying every predicate of m.
func (s Set) FilterMatch(m Match) (Set, error) {
	return s.partition(m, true)
}

// RemoveMatch drops the members satisfying every predicate of m.
func (s Set) RemoveMatch(m Match) (Set, error) {
	return s.partition(m, false)
}

func (s Set) partition(m Match, keepMatching bool) (Set, error) {
	if m.empty() {
		return Set{}, errs.InvalidArgument("match has no predicates")
	}
	var current map[string]bool
	if m.AsOf != nil {
		var err error
		current, err = s.currentAsOf(*m.AsOf)
		if err != nil {
			return Set{}, err
		}
	}
	var out []model.Document
	for _, d := range s.docs {
		ok := matches(d, m, current)
		if ok == keepMatching {
			out = append(out, d)
		}
	}
	return Set{docs: out}, nil
}

func matches(d model.Document, m Match, current map[string]bool) bool {
	if m.Type != nil && d.Type != *m.Type {
		return false
	}
	if m.Deleted != nil && d.Deleted != *m.Deleted {
		return false
	}
	if m.AsOf != nil && !current[d.ID] {
		return false
	}
	for k, want := range m.Fields {
		got, ok := d.Body[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// currentAsOf returns the ids of the revisions that were current at instant
// at: created at or before it, and either the last revision of the chain or
// followed by a revision created after it.
func (s Set) currentAsOf(at time.Time) (map[string]bool, error) {
	current := map[string]bool{}
	for _, group := range s.GroupByIdentity() {
		chain := append([]model.Document(nil), group.docs...)
		sort.Slice(chain, func(i, j int) bool { return chain[i].Rev < chain[j].Rev })

		for i, d := range chain {
			created, err := createdAt(d)
			if err != nil {
				return nil, err
			}
			if created.After(at) {
				continue
			}
			if i == len(chain)-1 {
				current[d.ID] = true
				continue
			}
			next, err := createdAt(chain[i+1])
			if err != nil {
				return nil, err
			}
			if next.After(at) {
				current[d.ID] = true
			}
		}
	}
	return current, nil
}
