package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"mini-rdp/actor"
	"mini-rdp/marshal"
	"mini-rdp/message"
	"mini-rdp/protocol"
)

// ErrBulkMethod is returned when Call and CallBulk are mixed up.
var ErrBulkMethod = errors.New("client: method is bulk, use CallBulk")

// ErrNotBulk is returned by CallBulk for a regular method.
var ErrNotBulk = errors.New("client: method is not bulk, use Call")

// Front is the client side of one remote actor.
type Front struct {
	client *Client
	id     string
	spec   *actor.Spec

	mu        sync.RWMutex
	listeners map[string][]func(args []any)
}

// ID returns the remote actor ID.
func (f *Front) ID() string { return f.id }

// Call invokes method with positional args and returns the decoded return
// value, or nil for void methods. One-way methods return as soon as the
// request is written. ctx is also handed to the wire types.
func (f *Front) Call(ctx context.Context, method string, args ...any) (any, error) {
	m, err := f.spec.Method(method)
	if err != nil {
		return nil, err
	}
	if m.Request.IsBulk() {
		return nil, fmt.Errorf("%w: %s.%s", ErrBulkMethod, f.spec.TypeName, method)
	}

	pkt, err := m.Request.Write(args, ctx)
	if err != nil {
		return nil, err
	}
	pkt[message.KeyTo] = f.id

	t, err := f.client.transportFor(f.id)
	if err != nil {
		return nil, err
	}
	if m.OneWay {
		return nil, t.SendOneWay(pkt)
	}
	seq, ch, err := t.Send(pkt)
	if err != nil {
		return nil, err
	}
	return f.await(ctx, m, seq, ch, t.Cancel)
}

// CallBulk invokes a bulk method, streaming exactly length bytes from r
// after the request.
func (f *Front) CallBulk(ctx context.Context, method string, length int64, r io.Reader) (any, error) {
	m, err := f.spec.Method(method)
	if err != nil {
		return nil, err
	}
	if !m.Request.IsBulk() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotBulk, f.spec.TypeName, method)
	}

	pkt, err := m.Request.Write([]any{&marshal.BulkPayload{Length: length}}, ctx)
	if err != nil {
		return nil, err
	}
	t, err := f.client.transportFor(f.id)
	if err != nil {
		return nil, err
	}
	seq, ch, err := t.SendBulk(protocol.BulkHeader{To: f.id, Type: pkt.Type(), Length: length}, r)
	if err != nil {
		return nil, err
	}
	return f.await(ctx, m, seq, ch, t.Cancel)
}

func (f *Front) await(ctx context.Context, m *actor.MethodSpec, seq uint32, ch <-chan message.Packet, cancel func(uint32)) (any, error) {
	var resp message.Packet
	select {
	case resp = <-ch:
	case <-ctx.Done():
		cancel(seq)
		return nil, ctx.Err()
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return m.Response.Read(resp, ctx)
}

// On subscribes fn to event. fn runs on the connection's reader goroutine
// and must not block.
func (f *Front) On(event string, fn func(args []any)) error {
	if _, err := f.spec.Event(event); err != nil {
		return err
	}
	f.mu.Lock()
	f.listeners[event] = append(f.listeners[event], fn)
	f.mu.Unlock()
	return nil
}

// Close drops f's listeners and detaches it from the client. Calls still
// work; the next Client.Front for the same actor returns a new Front.
func (f *Front) Close() {
	f.client.release(f)
	f.mu.Lock()
	f.listeners = make(map[string][]func(args []any))
	f.mu.Unlock()
}

func (f *Front) dispatch(pkt message.Packet) {
	name, tmpl, ok := f.spec.EventByType(pkt.Type())
	if !ok {
		f.client.logger.Debug("unknown event", zap.String("from", f.id), zap.String("type", pkt.Type()))
		return
	}
	f.mu.RLock()
	listeners := f.listeners[name]
	f.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	args, err := tmpl.Read(pkt, nil)
	if err != nil {
		f.client.logger.Warn("undecodable event", zap.String("from", f.id), zap.String("event", name), zap.Error(err))
		return
	}
	for _, fn := range listeners {
		fn(args)
	}
}
