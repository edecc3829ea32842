// Package client talks to actors hosted by one or more servers.
//
//	Front.Call → Request.Write → Registry.Discover(actorID) → Balancer.Pick
//	  → Pool.Get(addr) → ClientTransport.Send → wait → Response.Read
package client

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-rdp/actor"
	"mini-rdp/codec"
	"mini-rdp/loadbalance"
	"mini-rdp/message"
	"mini-rdp/registry"
	"mini-rdp/transport"
)

// DialTimeout bounds connection setup to a server.
const DialTimeout = 5 * time.Second

type Client struct {
	registry  registry.Registry // find the servers hosting an actor
	balancer  loadbalance.Balancer
	pool      *transport.Pool // transports per server address
	codecType codec.CodecType
	logger    *zap.Logger

	mu     sync.RWMutex
	fronts map[string][]*Front // actor ID → fronts, for event delivery
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType codec.CodecType, poolSize int) *Client {
	c := &Client{
		registry:  reg,
		balancer:  bal,
		codecType: codecType,
		logger:    zap.NewNop(),
		fronts:    make(map[string][]*Front),
	}
	c.pool = transport.NewPool(poolSize, c.dial)
	return c
}

// SetLogger replaces the no-op default logger. Call it before the first request.
func (c *Client) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

// Front returns a proxy for the actor id, which speaks spec. Asking again for
// the same id and spec returns the same Front until it is closed.
func (c *Client) Front(id string, spec *actor.Spec) *Front {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.fronts[id] {
		if f.spec == spec {
			return f
		}
	}
	f := &Front{
		client:    c,
		id:        id,
		spec:      spec,
		listeners: make(map[string][]func(args []any)),
	}
	c.fronts[id] = append(c.fronts[id], f)
	return f
}

// release stops delivering events to f.
func (c *Client) release(f *Front) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fronts := c.fronts[f.id]
	for i, other := range fronts {
		if other == f {
			fronts = append(fronts[:i:i], fronts[i+1:]...)
			break
		}
	}
	if len(fronts) == 0 {
		delete(c.fronts, f.id)
	} else {
		c.fronts[f.id] = fronts
	}
}

// Close closes every connection.
func (c *Client) Close() error {
	return c.pool.Close()
}

func (c *Client) dial(addr string) (*transport.ClientTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("connected", zap.String("addr", addr))
	return transport.NewClientTransport(conn, transport.Options{
		Codec:   c.codecType,
		OnEvent: c.onEvent,
		Logger:  c.logger,
	})
}

// transportFor picks a server hosting actor id. Keyed balancers route by
// actor ID so one actor always lands on the same server.
func (c *Client) transportFor(id string) (*transport.ClientTransport, error) {
	instances, err := c.registry.Discover(id)
	if err != nil {
		return nil, err
	}

	var instance *registry.ServiceInstance
	if kb, ok := c.balancer.(loadbalance.KeyedBalancer); ok {
		instance, err = kb.PickFor(id, instances)
	} else {
		instance, err = c.balancer.Pick(instances)
	}
	if err != nil {
		return nil, err
	}
	return c.pool.Get(instance.Addr)
}

// onEvent hands an event packet to the fronts of the actor that sent it.
func (c *Client) onEvent(pkt message.Packet) {
	c.mu.RLock()
	fronts := c.fronts[pkt.From()]
	c.mu.RUnlock()
	if len(fronts) == 0 {
		c.logger.Debug("event for unknown actor", zap.String("from", pkt.From()), zap.String("type", pkt.Type()))
		return
	}
	for _, f := range fronts {
		f.dispatch(pkt)
	}
}
