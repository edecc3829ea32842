// Package transport implements the client side of a connection: request
// multiplexing, events, bulk uploads and heartbeats.
//
// Many goroutines share one ClientTransport. Each request gets a sequence
// number; a single reader goroutine (recvLoop) routes every response to the
// caller waiting on that number, and hands event frames to the event callback.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] → goroutine-2 wakes up
//	           ←── event(seq=0)    → OnEvent
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-rdp/codec"
	"mini-rdp/message"
	"mini-rdp/protocol"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport: connection closed")

// Options configures a ClientTransport. Zero values pick defaults.
type Options struct {
	Codec     codec.CodecType
	Heartbeat time.Duration        // default 30s
	OnEvent   func(message.Packet) // called from the reader goroutine
	Logger    *zap.Logger
}

// ClientTransport manages a single multiplexed connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.Codec
	onEvent func(message.Packet)
	logger  *zap.Logger

	seq     uint32     // guarded by sending
	sending sync.Mutex // one frame at a time on the wire
	pending sync.Map   // uint32 → chan message.Packet

	closed atomic.Bool
	done   chan struct{}
}

// NewClientTransport starts the reader and heartbeat goroutines for conn.
func NewClientTransport(conn net.Conn, opts Options) (*ClientTransport, error) {
	c, err := codec.GetCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	t := &ClientTransport{
		conn:    conn,
		codec:   c,
		onEvent: opts.OnEvent,
		logger:  opts.Logger.With(zap.String("remote", conn.RemoteAddr().String())),
		done:    make(chan struct{}),
	}
	go t.recvLoop()
	go t.heartbeatLoop(opts.Heartbeat)
	return t, nil
}

// Send writes a request packet and returns a channel that receives its reply.
func (t *ClientTransport) Send(pkt message.Packet) (uint32, <-chan message.Packet, error) {
	body, err := t.codec.Encode(pkt)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	seq, respChan, err := t.register()
	if err != nil {
		return 0, nil, err
	}
	header := protocol.Header{CodecType: byte(t.codec.Type()), MsgType: protocol.MsgTypeRequest, Seq: seq}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, respChan, nil
}

// SendOneWay writes a request packet without waiting for a reply.
func (t *ClientTransport) SendOneWay(pkt message.Packet) error {
	if t.closed.Load() {
		return ErrClosed
	}
	body, err := t.codec.Encode(pkt)
	if err != nil {
		return err
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	t.seq++
	header := protocol.Header{CodecType: byte(t.codec.Type()), MsgType: protocol.MsgTypeRequest, Seq: t.seq}
	return protocol.Encode(t.conn, &header, body)
}

// SendBulk writes a bulk header followed by exactly h.Length bytes from r.
// If r runs short the stream can no longer be framed, so the connection is
// closed.
func (t *ClientTransport) SendBulk(h protocol.BulkHeader, r io.Reader) (uint32, <-chan message.Packet, error) {
	body, err := protocol.EncodeBulkHeader(h)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	seq, respChan, err := t.register()
	if err != nil {
		return 0, nil, err
	}
	header := protocol.Header{CodecType: byte(t.codec.Type()), MsgType: protocol.MsgTypeBulk, Seq: seq}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	n, err := io.CopyN(t.conn, r, h.Length)
	if err != nil {
		t.pending.Delete(seq)
		err = fmt.Errorf("transport: bulk payload wrote %d of %d bytes: %w", n, h.Length, err)
		t.shutdown(err)
		return 0, nil, err
	}
	return seq, respChan, nil
}

// Cancel forgets a pending request; a late reply is dropped.
func (t *ClientTransport) Cancel(seq uint32) {
	t.pending.Delete(seq)
}

// register must be called with t.sending held.
func (t *ClientTransport) register() (uint32, chan message.Packet, error) {
	t.seq++
	seq := t.seq
	// Buffered so recvLoop never blocks on a caller that gave up.
	respChan := make(chan message.Packet, 1)
	t.pending.Store(seq, respChan)
	if t.closed.Load() {
		t.pending.Delete(seq)
		return 0, nil, ErrClosed
	}
	return seq, respChan, nil
}

// recvLoop is the only reader of the connection.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.shutdown(err)
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse, protocol.MsgTypeEvent:
		default:
			t.logger.Warn("unexpected frame from server", zap.Uint8("msgType", uint8(header.MsgType)))
			continue
		}

		c, err := codec.GetCodec(codec.CodecType(header.CodecType))
		if err != nil {
			t.logger.Warn("dropping frame", zap.Error(err))
			continue
		}
		var pkt message.Packet
		if err := c.Decode(body, &pkt); err != nil {
			t.logger.Warn("dropping undecodable frame", zap.Uint32("seq", header.Seq), zap.Error(err))
			pkt = message.NewErrorPacket("", message.CodeUnknownError, err.Error())
		}

		if header.MsgType == protocol.MsgTypeEvent {
			if t.onEvent != nil {
				t.onEvent(pkt)
			}
			continue
		}
		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan message.Packet) <- pkt
		}
	}
}

// shutdown marks the transport closed and fails every pending request.
func (t *ClientTransport) shutdown(err error) {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)
	t.conn.Close()
	t.pending.Range(func(key, _ any) bool {
		if ch, ok := t.pending.LoadAndDelete(key); ok {
			ch.(chan message.Packet) <- message.NewErrorPacket("", message.CodeConnectionClosed, err.Error())
		}
		return true
	})
}

// Close closes the connection and fails pending requests.
func (t *ClientTransport) Close() error {
	t.shutdown(ErrClosed)
	return nil
}

// Closed reports whether the connection is gone.
func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop keeps idle connections alive.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}
