package server

import (
	"context"
	"fmt"

	"mini-rdp/actor"
)

// service is one actor hosted by the server.
type service struct {
	id       string
	spec     *actor.Spec
	handlers actor.Handlers
}

// newService checks that every method of spec has a handler.
func newService(id string, spec *actor.Spec, handlers actor.Handlers) (*service, error) {
	if id == "" {
		return nil, fmt.Errorf("rdp: empty actor ID")
	}
	for _, name := range spec.MethodNames() {
		if handlers[name] == nil {
			return nil, fmt.Errorf("rdp: actor %s (%s) has no handler for %s", id, spec.TypeName, name)
		}
	}
	return &service{id: id, spec: spec, handlers: handlers}, nil
}

// call runs the handler bound to method.
func (s *service) call(ctx context.Context, method *actor.MethodSpec, args []any) (any, error) {
	return s.handlers[method.Name](ctx, args)
}
