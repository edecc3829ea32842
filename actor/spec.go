// Package actor describes actor types: the methods they answer and the events
// they emit, each with the templates that marshal its arguments.
package actor

import (
	"errors"
	"fmt"

	"mini-rdp/marshal"
	"mini-rdp/types"
)

var (
	ErrDuplicateMethod = errors.New("actor: duplicate method")
	ErrNoSuchMethod    = errors.New("actor: no such method")
	ErrNoSuchEvent     = errors.New("actor: no such event")
)

// Method declares one method of an actor type.
type Method struct {
	Name     string
	Request  marshal.Template // ignored when Bulk is set
	Bulk     bool
	Response marshal.Template
	OneWay   bool // no reply is sent
}

// MethodSpec is a Method with its templates built.
type MethodSpec struct {
	Name     string
	Request  *marshal.Request
	Response *marshal.Response
	OneWay   bool
}

// Spec is the protocol description of one actor type, shared by the server
// that hosts such actors and the clients that talk to them.
type Spec struct {
	TypeName string
	Registry *types.Registry

	methods map[string]*MethodSpec // by method name
	byType  map[string]*MethodSpec // by wire type tag
	events  map[string]*marshal.Request
}

// NewSpec builds and validates the templates of every method and event.
// reg may be nil to use types.Default.
func NewSpec(reg *types.Registry, typeName string, methods []Method, events map[string]marshal.Template) (*Spec, error) {
	s := &Spec{
		TypeName: typeName,
		Registry: reg,
		methods:  make(map[string]*MethodSpec, len(methods)),
		byType:   make(map[string]*MethodSpec, len(methods)),
		events:   make(map[string]*marshal.Request, len(events)),
	}

	for _, m := range methods {
		var req *marshal.Request
		if m.Bulk {
			req = marshal.NewBulkRequest(m.Name)
		} else {
			req = marshal.NewRequest(reg, m.Name, m.Request)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName, m.Name, err)
		}
		if _, dup := s.methods[m.Name]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateMethod, typeName, m.Name)
		}
		if _, dup := s.byType[req.Type()]; dup {
			return nil, fmt.Errorf("%w: %s has two methods with wire type %q", ErrDuplicateMethod, typeName, req.Type())
		}
		ms := &MethodSpec{
			Name:     m.Name,
			Request:  req,
			Response: marshal.NewResponse(reg, m.Response),
			OneWay:   m.OneWay,
		}
		s.methods[m.Name] = ms
		s.byType[req.Type()] = ms
	}

	for name, tmpl := range events {
		ev := marshal.NewRequest(reg, name, tmpl)
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("%s event %s: %w", typeName, name, err)
		}
		s.events[name] = ev
	}
	return s, nil
}

// Method returns the method declared under name.
func (s *Spec) Method(name string) (*MethodSpec, error) {
	m, ok := s.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, s.TypeName, name)
	}
	return m, nil
}

// MethodByType returns the method whose request carries wire type tag.
func (s *Spec) MethodByType(tag string) (*MethodSpec, bool) {
	m, ok := s.byType[tag]
	return m, ok
}

// Event returns the template of the event declared under name.
func (s *Spec) Event(name string) (*marshal.Request, error) {
	ev, ok := s.events[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchEvent, s.TypeName, name)
	}
	return ev, nil
}

// EventByType returns the event whose packets carry wire type tag.
func (s *Spec) EventByType(tag string) (string, *marshal.Request, bool) {
	for name, ev := range s.events {
		if ev.Type() == tag {
			return name, ev, true
		}
	}
	return "", nil, false
}

// MethodNames lists the declared method names.
func (s *Spec) MethodNames() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}
