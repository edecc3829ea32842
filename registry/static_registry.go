package registry

import (
	"fmt"
	"sync"
)

// StaticRegistry keeps instances in memory. It suits single-process setups
// and tests; TTLs are ignored.
type StaticRegistry struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Register adds or replaces the instance at instance.Addr.
func (r *StaticRegistry) Register(name string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[name]
	for i := range list {
		if list[i].Addr == instance.Addr {
			list[i] = instance
			r.notify(name)
			return nil
		}
	}
	r.instances[name] = append(list, instance)
	r.notify(name)
	return nil
}

func (r *StaticRegistry) Deregister(name string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[name]
	for i := range list {
		if list[i].Addr == addr {
			r.instances[name] = append(list[:i:i], list[i+1:]...)
			r.notify(name)
			return nil
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(name string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.instances[name]
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]ServiceInstance(nil), list...), nil
}

// Watch emits the instance list after every change. Slow readers only see
// the latest list.
func (r *StaticRegistry) Watch(name string) <-chan []ServiceInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan []ServiceInstance, 1)
	r.watchers[name] = append(r.watchers[name], ch)
	return ch
}

// notify must be called with r.mu held.
func (r *StaticRegistry) notify(name string) {
	snapshot := append([]ServiceInstance(nil), r.instances[name]...)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
