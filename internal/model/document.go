package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Meta field names in the flattened form of a document.
const (
	FieldID      = "_id"
	FieldType    = "_type"
	FieldRev     = "_rev"
	FieldSetID   = "_set_id"
	FieldDeleted = "_deleted"
)

var reservedFields = []string{FieldID, FieldType, FieldRev, FieldSetID, FieldDeleted}

// IsReservedField reports whether key is a meta field that callers may not put in a body.
func IsReservedField(key string) bool {
	for _, f := range reservedFields {
		if f == key {
			return true
		}
	}
	return false
}

// Identity is the logical document a revision chain belongs to.
type Identity struct {
	Type  string
	SetID string
}

// Singleton identifies the only document of a singleton kind.
func Singleton(docType string) Identity {
	return Identity{Type: docType}
}

// Element identifies one member of a set kind.
func Element(docType, setID string) Identity {
	return Identity{Type: docType, SetID: setID}
}

func (i Identity) IsSet() bool { return i.SetID != "" }

func (i Identity) String() string {
	if i.SetID == "" {
		return i.Type
	}
	return i.Type + "/" + i.SetID
}

// Document is one immutable revision of a logical document.
type Document struct {
	ID      string
	Type    string
	Rev     int
	SetID   string
	Deleted bool
	Body    map[string]any
}

func (d Document) Identity() Identity {
	return Identity{Type: d.Type, SetID: d.SetID}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Body = CloneBody(d.Body)
	return out
}

// Map returns the flattened form: body attributes plus meta fields.
func (d Document) Map() map[string]any {
	m := make(map[string]any, len(d.Body)+5)
	for k, v := range d.Body {
		m[k] = cloneValue(v)
	}
	m[FieldID] = d.ID
	m[FieldType] = d.Type
	m[FieldRev] = d.Rev
	if d.SetID != "" {
		m[FieldSetID] = d.SetID
	}
	if d.Deleted {
		m[FieldDeleted] = true
	}
	return m
}

// FromMap parses the flattened form produced by Map or read back from storage.
func FromMap(m map[string]any) (Document, error) {
	var d Document
	d.Body = make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case FieldID:
			s, ok := v.(string)
			if !ok {
				return Document{}, fmt.Errorf("field %s: expected string, got %T", k, v)
			}
			d.ID = s
		case FieldType:
			s, ok := v.(string)
			if !ok {
				return Document{}, fmt.Errorf("field %s: expected string, got %T", k, v)
			}
			d.Type = s
		case FieldSetID:
			s, ok := v.(string)
			if !ok {
				return Document{}, fmt.Errorf("field %s: expected string, got %T", k, v)
			}
			d.SetID = s
		case FieldRev:
			n, err := toInt(v)
			if err != nil {
				return Document{}, fmt.Errorf("field %s: %w", k, err)
			}
			d.Rev = n
		case FieldDeleted:
			b, ok := v.(bool)
			if !ok {
				return Document{}, fmt.Errorf("field %s: expected bool, got %T", k, v)
			}
			d.Deleted = b
		default:
			d.Body[k] = v
		}
	}
	if d.Type == "" {
		return Document{}, fmt.Errorf("document has no %s", FieldType)
	}
	return d, nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Decode fills v (a pointer to an entity struct) from the document body.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Body)
	if err != nil {
		return fmt.Errorf("encode body of %s: %w", d.Identity(), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode body of %s: %w", d.Identity(), err)
	}
	return nil
}

// BodyFrom converts an entity struct into a plain JSON body.
func BodyFrom(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return body, nil
}

func CloneBody(body map[string]any) map[string]any {
	if body == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneBody(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
