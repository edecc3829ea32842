package transport

import (
	"sync"
)

// Pool keeps up to size transports per address and hands them out round
// robin. Since transports multiplex, callers share them instead of borrowing
// and returning. Slots are dialed lazily and redialed once their transport
// closes.
type Pool struct {
	mu    sync.Mutex
	size  int
	dial  func(addr string) (*ClientTransport, error)
	addrs map[string]*slots
}

type slots struct {
	transports []*ClientTransport
	next       int
}

// NewPool creates a pool with size transports per address, created by dial.
func NewPool(size int, dial func(addr string) (*ClientTransport, error)) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:  size,
		dial:  dial,
		addrs: make(map[string]*slots),
	}
}

// Get returns a live transport to addr.
func (p *Pool) Get(addr string) (*ClientTransport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.addrs[addr]
	if !ok {
		s = &slots{transports: make([]*ClientTransport, p.size)}
		p.addrs[addr] = s
	}

	i := s.next
	s.next = (s.next + 1) % p.size
	if t := s.transports[i]; t != nil && !t.Closed() {
		return t, nil
	}

	// Dialing under the lock keeps the pool from exceeding size.
	t, err := p.dial(addr)
	if err != nil {
		return nil, err
	}
	s.transports[i] = t
	return t, nil
}

// Close closes every transport in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, s := range p.addrs {
		for _, t := range s.transports {
			if t != nil {
				t.Close()
			}
		}
		delete(p.addrs, addr)
	}
	return nil
}
