// Package loadbalance picks which server instance receives a request.
//
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances of different capacity
//   - ConsistentHash:  stick every actor to one instance
package loadbalance

import (
	"errors"

	"mini-rdp/registry"
)

// ErrNoInstances is returned when the candidate list is empty.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance per call. Implementations must be safe for
// concurrent use.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// KeyedBalancer is a Balancer that can also route by key. The client passes
// the target actor ID as the key.
type KeyedBalancer interface {
	Balancer
	PickFor(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
}
