package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MalformedError reports a criteria tree that cannot be built.
type MalformedError struct {
	Path   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed criteria at %s: %s", e.Path, e.Reason)
}

// CombinatorFunc builds a node from its already-built children.
type CombinatorFunc func(children []Criterion) (Criterion, error)

// LeafFunc builds a node from a field name and its operand.
type LeafFunc func(field string, value Value) (Criterion, error)

// Grammar holds the operators a tree may use. New operators are added by
// registering them; trees that only use existing operators are unaffected.
type Grammar struct {
	mu          sync.RWMutex
	combinators map[string]CombinatorFunc
	leaves      map[string]LeafFunc
}

// NewGrammar returns a grammar with the $and combinator and the $eq leaf.
func NewGrammar() *Grammar {
	g := &Grammar{
		combinators: make(map[string]CombinatorFunc),
		leaves:      make(map[string]LeafFunc),
	}
	g.RegisterCombinator(OpAnd, func(children []Criterion) (Criterion, error) {
		return And{Children: children}, nil
	})
	g.RegisterLeaf(OpEq, func(field string, value Value) (Criterion, error) {
		return Eq{Field: field, Value: value}, nil
	})
	return g
}

var defaultGrammar = NewGrammar()

// RegisterCombinator adds or replaces a combinator operator.
func (g *Grammar) RegisterCombinator(op string, fn CombinatorFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.combinators[op] = fn
}

// RegisterLeaf adds or replaces a leaf operator.
func (g *Grammar) RegisterLeaf(op string, fn LeafFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves[op] = fn
}

// Operators returns the registered operator names, sorted.
func (g *Grammar) Operators() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.operators()
}

func (g *Grammar) operators() []string {
	ops := make([]string, 0, len(g.combinators)+len(g.leaves))
	for op := range g.combinators {
		ops = append(ops, op)
	}
	for op := range g.leaves {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Build converts a decoded JSON tree into a Criterion using the default grammar.
func Build(raw any) (Criterion, error) {
	return defaultGrammar.Build(raw)
}

// Parse decodes JSON bytes and builds a Criterion using the default grammar.
func Parse(data []byte) (Criterion, error) {
	return defaultGrammar.Parse(data)
}

// Parse decodes JSON bytes and builds a Criterion.
func (g *Grammar) Parse(data []byte) (Criterion, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedError{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return g.Build(raw)
}

// Build converts a decoded JSON tree into a Criterion.
func (g *Grammar) Build(raw any) (Criterion, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.build(raw, "$")
}

func (g *Grammar) build(raw any, path string) (Criterion, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &MalformedError{Path: path, Reason: fmt.Sprintf("expected an object, got %s", kindOf(raw))}
	}
	if len(obj) != 1 {
		return nil, &MalformedError{Path: path, Reason: fmt.Sprintf("expected exactly one operator or field, got %d keys", len(obj))}
	}

	for key, body := range obj {
		if !strings.HasPrefix(key, "$") {
			return g.buildLeaf(key, body, path+"."+key)
		}

		fn, ok := g.combinators[key]
		if !ok {
			return nil, g.unrecognized(path, key)
		}

		list, ok := body.([]any)
		if !ok {
			return nil, &MalformedError{Path: path + "." + key, Reason: fmt.Sprintf("expected an array, got %s", kindOf(body))}
		}

		children := make([]Criterion, 0, len(list))
		for i, item := range list {
			child, err := g.build(item, fmt.Sprintf("%s.%s[%d]", path, key, i))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}

		node, err := fn(children)
		if err != nil {
			return nil, &MalformedError{Path: path, Reason: err.Error()}
		}
		return node, nil
	}

	panic("unreachable")
}

func (g *Grammar) buildLeaf(field string, body any, path string) (Criterion, error) {
	if field == "" {
		return nil, &MalformedError{Path: path, Reason: "empty field name"}
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return nil, &MalformedError{Path: path, Reason: fmt.Sprintf("expected an operator object, got %s", kindOf(body))}
	}
	if len(obj) != 1 {
		return nil, &MalformedError{Path: path, Reason: fmt.Sprintf("expected exactly one operator, got %d", len(obj))}
	}

	for op, operand := range obj {
		fn, ok := g.leaves[op]
		if !ok {
			return nil, g.unrecognized(path, op)
		}

		s, ok := operand.(string)
		if !ok {
			return nil, &MalformedError{Path: path + "." + op, Reason: fmt.Sprintf("value must be a string or timestamp, got %s", kindOf(operand))}
		}

		value := String(s)
		if t, isTime := parseTimestamp(s); isTime {
			value = parsedTimestamp(t, s)
		}

		node, err := fn(field, value)
		if err != nil {
			return nil, &MalformedError{Path: path, Reason: err.Error()}
		}
		return node, nil
	}

	panic("unreachable")
}

// unrecognized is called with g.mu held.
func (g *Grammar) unrecognized(path, op string) error {
	return &MalformedError{
		Path:   path,
		Reason: fmt.Sprintf("unrecognized operator %q (known: %s)", op, strings.Join(g.operators(), ", ")),
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
