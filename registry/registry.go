// Package registry maps actor IDs to the servers hosting them.
package registry

import "errors"

// ErrNotFound is returned by Discover when no instance hosts the name.
var ErrNotFound = errors.New("registry: no instances")

type ServiceInstance struct {
	Addr     string
	ServerID string // Unique per server process
	Weight   int    // Weight for load balancing
	Version  string
}

// Registry is keyed by actor ID: every actor a server hosts is registered
// under its own name.
type Registry interface {
	Register(name string, instance ServiceInstance, ttl int64) error
	Deregister(name string, addr string) error
	Discover(name string) ([]ServiceInstance, error)
	Watch(name string) <-chan []ServiceInstance
}
