// Package criteria models the boolean filter grammar used to select documents
// from the document store.
//
// The wire format is a tree of single-key JSON objects:
//
//	{"$and": [ {"applicationSource": {"$eq": "GED"}}, {"creationDate": {"$eq": "2021-03-01T00:00:00Z"}} ]}
//
// Keys starting with "$" at node position are combinators; any other key is a
// field name whose body holds exactly one leaf operator.
package criteria

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operator names understood by the default grammar.
const (
	OpAnd = "$and"
	OpEq  = "$eq"
)

// Criterion is a node of a filter expression.
type Criterion interface {
	// Op returns the operator name of the node.
	Op() string

	// Wire returns the node in its decoded wire form (maps, slices and strings).
	Wire() any

	// Equal reports whether other is the same filter.
	Equal(other Criterion) bool

	fmt.Stringer
}

// And matches documents that satisfy every child. An And without children
// matches everything.
type And struct {
	Children []Criterion
}

// MatchAll returns the criterion selecting every document.
func MatchAll() And {
	return And{}
}

// Op implements Criterion.
func (a And) Op() string { return OpAnd }

// Wire implements Criterion.
func (a And) Wire() any {
	children := make([]any, 0, len(a.Children))
	for _, c := range a.Children {
		children = append(children, c.Wire())
	}
	return map[string]any{OpAnd: children}
}

// Equal implements Criterion.
func (a And) Equal(other Criterion) bool {
	o, ok := other.(And)
	if !ok || len(o.Children) != len(a.Children) {
		return false
	}
	for i := range a.Children {
		if !a.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func (a And) String() string {
	parts := make([]string, 0, len(a.Children))
	for _, c := range a.Children {
		parts = append(parts, c.String())
	}
	return "$and(" + strings.Join(parts, ", ") + ")"
}

// MarshalJSON encodes the node in wire format.
func (a And) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Wire())
}

// Eq matches documents whose field equals the value.
type Eq struct {
	Field string
	Value Value
}

// Op implements Criterion.
func (e Eq) Op() string { return OpEq }

// Wire implements Criterion.
func (e Eq) Wire() any {
	return map[string]any{e.Field: map[string]any{OpEq: e.Value.wire()}}
}

// Equal implements Criterion.
func (e Eq) Equal(other Criterion) bool {
	o, ok := other.(Eq)
	return ok && o.Field == e.Field && o.Value.Equal(e.Value)
}

func (e Eq) String() string {
	return fmt.Sprintf("%s $eq %q", e.Field, e.Value.wire())
}

// MarshalJSON encodes the node in wire format.
func (e Eq) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Wire())
}

// Value is a leaf operand: either a plain string or a timestamp. A timestamp
// parsed from text keeps that text for the wire.
type Value struct {
	s      string
	t      time.Time
	isTime bool
}

// String returns a string operand.
func String(s string) Value {
	return Value{s: s}
}

// Timestamp returns a timestamp operand. It is normalized to UTC.
func Timestamp(t time.Time) Value {
	return Value{t: t.UTC(), isTime: true}
}

// parsedTimestamp returns a timestamp operand that is sent as text.
func parsedTimestamp(t time.Time, text string) Value {
	return Value{s: text, t: t.UTC(), isTime: true}
}

// IsTimestamp reports whether the operand is a timestamp.
func (v Value) IsTimestamp() bool { return v.isTime }

// Time returns the timestamp operand, or the zero time for string operands.
func (v Value) Time() time.Time { return v.t }

// Text returns the operand as it is sent on the wire.
func (v Value) Text() string { return v.wire() }

// Equal compares operands after timestamp normalization, so a string holding
// an RFC 3339 instant equals the corresponding timestamp.
func (v Value) Equal(o Value) bool {
	a, b := v.normalized(), o.normalized()
	if a.isTime && b.isTime {
		return a.t.Equal(b.t)
	}
	return a.isTime == b.isTime && a.s == b.s
}

func (v Value) wire() string {
	if v.isTime && v.s == "" {
		return v.t.Format(time.RFC3339Nano)
	}
	return v.s
}

func (v Value) normalized() Value {
	if v.isTime {
		return v
	}
	if t, ok := parseTimestamp(v.s); ok {
		return parsedTimestamp(t, v.s)
	}
	return v
}

func parseTimestamp(s string) (time.Time, bool) {
	// Cheap reject before attempting a full parse.
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Serialize returns the wire form of c.
func Serialize(c Criterion) any {
	if c == nil {
		return MatchAll().Wire()
	}
	return c.Wire()
}
