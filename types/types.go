// Package types is the wire type registry used by request and response templates.
//
// A wire type converts one kind of value between its in-memory form and a
// JSON-safe form. Types are looked up by name. Besides the primitives, three
// composite forms are resolved on demand from the name alone:
//
//	array:T     a list whose elements are of type T
//	nullable:T  T, or nil
//	dict:T      an object whose values are all of type T
//
// Named object types with per-field types are added with [Registry.AddDict].
package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUnknownType is returned by Lookup for a name that is neither registered
	// nor a composite of registered types.
	ErrUnknownType = errors.New("unknown wire type")
	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("wire type already registered")
	// ErrTypeMismatch is returned by a codec for a value it cannot convert.
	ErrTypeMismatch = errors.New("value does not match wire type")
)

// Type converts values of one kind to and from their wire form. ctx is the
// opaque value the caller threads through Write/Read of a template.
type Type interface {
	Name() string
	Write(v any, ctx any) (any, error)
	Read(v any, ctx any) (any, error)
}

// Func adapts a pair of functions to the Type interface.
type Func struct {
	TypeName  string
	WriteFunc func(v any, ctx any) (any, error)
	ReadFunc  func(v any, ctx any) (any, error)
}

func (f *Func) Name() string { return f.TypeName }

func (f *Func) Write(v any, ctx any) (any, error) { return f.WriteFunc(v, ctx) }

func (f *Func) Read(v any, ctx any) (any, error) { return f.ReadFunc(v, ctx) }

// Registry maps type names to types. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// Default is the registry used by templates that are not given one explicitly.
var Default = NewRegistry()

// NewRegistry returns a registry holding the primitive types
// json, string, number, boolean and bytes.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]Type)}
	for _, t := range primitives() {
		r.types[t.Name()] = t
	}
	return r
}

// Add registers t under t.Name().
func (r *Registry) Add(t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name())
	}
	r.types[t.Name()] = t
	return nil
}

// AddDict registers a named object type. fields maps a property name to the
// name of its wire type; field types are resolved on first use, so they may
// be registered after the dict itself. Properties not listed in fields are
// copied through unchanged.
func (r *Registry) AddDict(name string, fields map[string]string) (Type, error) {
	d := &dictType{name: name, fields: fields, reg: r}
	if err := r.Add(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Lookup returns the type registered under name, building and caching
// array:, nullable: and dict: composites as needed.
func (r *Registry) Lookup(name string) (Type, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	kind, inner, found := strings.Cut(name, ":")
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	var build func(Type) Type
	switch kind {
	case "array":
		build = func(elem Type) Type { return &arrayType{name: name, elem: elem} }
	case "nullable":
		build = func(elem Type) Type { return &nullableType{name: name, elem: elem} }
	case "dict":
		build = func(elem Type) Type { return &mapType{name: name, elem: elem} }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	elem, err := r.Lookup(inner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have built the same composite meanwhile.
	if t, ok := r.types[name]; ok {
		return t, nil
	}
	t = build(elem)
	r.types[name] = t
	return t, nil
}

func mismatch(typeName string, v any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrTypeMismatch, typeName, v)
}
