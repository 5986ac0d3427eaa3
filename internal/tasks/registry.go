package tasks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrTaskExists is returned when registering a duplicate task name.
	ErrTaskExists = errors.New("task already registered")
)

// UnknownTaskError is returned when a task name is not registered.
type UnknownTaskError struct {
	Name  string
	Known []string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q; valid tasks are %s", e.Name, strings.Join(e.Known, ", "))
}

// Factory creates an unconfigured task.
type Factory func() Task

// Registry maps task names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every built-in task.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, f := range []Factory{
		func() Task { return &ExistenceCheck{} },
		func() Task { return &Inventory{} },
		func() Task { return &Delete{} },
		func() Task { return &Dump{} },
	} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a task kind under the name its tasks report.
func (r *Registry) Register(f Factory) error {
	name := f().Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns a new task for name. An exact match wins over a
// case-insensitive one.
func (r *Registry) Lookup(name string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[name]; ok {
		return f(), nil
	}
	for registered, f := range r.factories {
		if strings.EqualFold(registered, name) {
			return f(), nil
		}
	}
	return nil, &UnknownTaskError{Name: name, Known: r.names()}
}

// Names returns the registered task names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

// Tasks returns a new task of every registered kind, sorted by name.
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Task, 0, len(r.factories))
	for _, name := range r.names() {
		out = append(out, r.factories[name]())
	}
	return out
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
