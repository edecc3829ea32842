// Package server hosts actors: it registers them, runs the middleware chain,
// processes requests in parallel and shuts down gracefully.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → request frame: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → businessHandler → Codec.Encode → write response
//	  → bulk frame: handled inline, the raw payload follows on the stream
//	    → Middleware Chain → businessHandler → drain payload → write response
//
// businessHandler finds the actor named by "to", the method whose request
// template carries the packet's "type", decodes the positional arguments with
// that template and encodes the handler's result with the response template.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mini-rdp/actor"
	"mini-rdp/codec"
	"mini-rdp/marshal"
	"mini-rdp/message"
	"mini-rdp/middleware"
	"mini-rdp/protocol"
	"mini-rdp/registry"
)

// RegistryTTL is the lease, in seconds, under which actors are registered.
const RegistryTTL = 10

// Server hosts actors and answers the packets addressed to them.
type Server struct {
	id     string
	logger *zap.Logger

	mu            sync.RWMutex
	services      map[string]*service // actor ID → actor
	conns         map[*conn]struct{}
	registry      registry.Registry // nil when not using discovery
	advertiseAddr string            // routable address registered for every actor

	listener    net.Listener
	wg          sync.WaitGroup // in-flight requests
	shutdown    atomic.Bool    // set before the listener closes so Accept errors are expected
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(businessHandler)))
}

// NewServer creates a server hosting only the root actor.
func NewServer() *Server {
	svr := &Server{
		id:       uuid.NewString(),
		logger:   zap.NewNop(),
		services: make(map[string]*service),
		conns:    make(map[*conn]struct{}),
	}
	svr.handler = svr.businessHandler
	root, err := newService(RootActorID, RootSpec(svr.id), actor.Handlers{"listActors": svr.listActors})
	if err != nil {
		panic(err)
	}
	svr.services[RootActorID] = root
	return svr
}

// ID returns the server's unique ID, also reported by the root actor.
func (svr *Server) ID() string { return svr.id }

// SetLogger replaces the no-op default logger.
func (svr *Server) SetLogger(logger *zap.Logger) {
	svr.logger = logger.With(zap.String("server", svr.id))
}

// RegisterActor hosts an actor under id. If the server is already serving
// with a registry, the actor is registered right away.
func (svr *Server) RegisterActor(id string, spec *actor.Spec, handlers actor.Handlers) error {
	svc, err := newService(id, spec, handlers)
	if err != nil {
		return err
	}

	svr.mu.Lock()
	if _, dup := svr.services[id]; dup {
		svr.mu.Unlock()
		return fmt.Errorf("rdp: actor %s already registered", id)
	}
	svr.services[id] = svc
	reg, addr := svr.registry, svr.advertiseAddr
	svr.mu.Unlock()

	if reg != nil {
		return reg.Register(id, svr.instance(addr), RegistryTTL)
	}
	return nil
}

// Register hosts rcvr as actor id, binding spec's methods to rcvr's exported
// methods (see actor.Bind).
func (svr *Server) Register(id string, spec *actor.Spec, rcvr any) error {
	handlers, err := actor.Bind(spec, rcvr)
	if err != nil {
		return err
	}
	return svr.RegisterActor(id, spec, handlers)
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must be added before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

func (svr *Server) instance(addr string) registry.ServiceInstance {
	return registry.ServiceInstance{Addr: addr, ServerID: svr.id, Weight: 1}
}

// Serve listens on address, registers every actor under advertiseAddr when
// reg is not nil, and accepts connections until Shutdown.
//
// advertiseAddr differs from address because ":8080" is not routable for
// other hosts.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}

	// Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.mu.Lock()
	svr.listener = listener
	svr.advertiseAddr = advertiseAddr
	svr.registry = reg
	ids := make([]string, 0, len(svr.services))
	for id := range svr.services {
		ids = append(ids, id)
	}
	svr.mu.Unlock()

	if reg != nil {
		for _, id := range ids {
			if err := reg.Register(id, svr.instance(advertiseAddr), RegistryTTL); err != nil {
				listener.Close()
				return fmt.Errorf("rdp: register %s: %w", id, err)
			}
		}
	}
	svr.logger.Info("serving", zap.String("addr", listener.Addr().String()), zap.Int("actors", len(ids)))

	for {
		nc, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		c := &conn{Conn: nc}
		svr.mu.Lock()
		svr.conns[c] = struct{}{}
		svr.mu.Unlock()
		go svr.handleConn(c)
	}
}

// Addr returns the listening address once Serve has started.
func (svr *Server) Addr() net.Addr {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn reads frames off one connection. Reads are sequential, but each
// request is dispatched to its own goroutine so a slow handler does not
// block the requests behind it. Bulk frames are the exception: their payload
// sits on the stream, so they are handled before the next frame is read.
func (svr *Server) handleConn(c *conn) {
	defer func() {
		c.Close()
		svr.mu.Lock()
		delete(svr.conns, c)
		svr.mu.Unlock()
	}()
	for {
		header, body, err := protocol.Decode(c)
		if err != nil {
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeBulk:
			if err := svr.handleBulk(c, header, body); err != nil {
				svr.logger.Warn("dropping connection after bulk frame",
					zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
				return
			}
		case protocol.MsgTypeRequest:
			svr.wg.Add(1)
			go svr.handleRequest(c, header, body)
		default:
			svr.logger.Warn("unexpected frame from client", zap.Uint8("msgType", uint8(header.MsgType)))
		}
	}
}

// handleRequest decodes a request packet, runs it through the middleware chain
// and writes the reply, if any, with the request's Seq.
// The caller has already counted it in svr.wg.
func (svr *Server) handleRequest(c *conn, header *protocol.Header, body []byte) {
	defer svr.wg.Done()

	cd, err := codec.GetCodec(codec.CodecType(header.CodecType))
	if err != nil {
		svr.logger.Warn("dropping request", zap.Uint32("seq", header.Seq), zap.Error(err))
		return
	}

	var reply message.Packet
	var req message.Packet
	if err := cd.Decode(body, &req); err != nil {
		reply = message.NewErrorPacket("", message.CodeUnknownError, fmt.Sprintf("undecodable packet: %v", err))
	} else {
		reply = svr.dispatch(newCallContext(c, cd), req)
	}
	if reply == nil {
		return
	}
	svr.reply(c, cd, header, reply)
}

// handleBulk serves a bulk frame inline. It returns an error only when the
// stream can no longer be framed.
func (svr *Server) handleBulk(c *conn, header *protocol.Header, body []byte) error {
	h, err := protocol.ParseBulkHeader(body)
	if err != nil {
		return err
	}
	cd, err := codec.GetCodec(codec.CodecType(header.CodecType))
	if err != nil {
		return err
	}

	svr.wg.Add(1)
	defer svr.wg.Done()

	payload := newBulkReader(c, h.Length)
	req := message.Packet{
		message.KeyTo:           h.To,
		message.KeyType:         h.Type,
		marshal.KeyLength:       h.Length,
		marshal.KeyCopyTo:       payload.copyTo,
		marshal.KeyCopyToBuffer: payload.copyToBuffer,
	}
	// The payload can be read once, so the chain must not replay the request.
	reply := svr.dispatch(middleware.WithOneShot(newCallContext(c, cd)), req)
	if err := payload.drain(); err != nil {
		return fmt.Errorf("bulk payload for %s.%s: %w", h.To, h.Type, err)
	}
	if reply != nil {
		svr.reply(c, cd, header, reply)
	}
	return nil
}

// dispatch runs req through the handler chain, turning a panic into an
// unknownError reply.
func (svr *Server) dispatch(ctx context.Context, req message.Packet) (reply message.Packet) {
	defer func() {
		if r := recover(); r != nil {
			svr.logger.Error("handler panicked",
				zap.String("actor", req.To()),
				zap.String("type", req.Type()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			reply = message.NewErrorPacket(req.To(), message.CodeUnknownError, fmt.Sprint(r))
		}
	}()
	return svr.handler(ctx, req)
}

func (svr *Server) reply(c *conn, cd codec.Codec, header *protocol.Header, reply message.Packet) {
	result, err := cd.Encode(reply)
	if err != nil {
		svr.logger.Error("failed to encode reply", zap.Uint32("seq", header.Seq), zap.Error(err))
		result, err = cd.Encode(message.FromError(reply.From(), err))
		if err != nil {
			return
		}
	}
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq, // same seq as the request, this is how multiplexing works
	}
	if err := c.writeFrame(&replyHeader, result); err != nil {
		svr.logger.Debug("failed to write reply", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister every actor (clients stop routing to this server)
//  2. Set the shutdown flag and close the listener
//  3. Wait for in-flight requests, up to timeout
//  4. Close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.RLock()
	reg, addr, listener := svr.registry, svr.advertiseAddr, svr.listener
	ids := make([]string, 0, len(svr.services))
	for id := range svr.services {
		ids = append(ids, id)
	}
	svr.mu.RUnlock()
	if reg != nil {
		for _, id := range ids {
			if err := reg.Deregister(id, addr); err != nil {
				svr.logger.Warn("deregister failed", zap.String("actor", id), zap.Error(err))
			}
		}
	}

	svr.shutdown.Store(true)
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.New("rdp: timeout waiting for ongoing requests to finish")
	}

	svr.mu.Lock()
	for c := range svr.conns {
		c.Close()
	}
	svr.mu.Unlock()
	return err
}

func (svr *Server) lookup(id string) *service {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	return svr.services[id]
}

// actorIDs returns the hosted actor IDs in sorted order.
func (svr *Server) actorIDs() []string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	ids := make([]string, 0, len(svr.services))
	for id := range svr.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// businessHandler dispatches a packet to the actor it is addressed to.
// It is wrapped by the middleware chain and has the HandlerFunc signature.
func (svr *Server) businessHandler(ctx context.Context, req message.Packet) message.Packet {
	to := req.To()
	svc := svr.lookup(to)
	if svc == nil {
		return message.NewErrorPacket(to, message.CodeNoSuchActor, fmt.Sprintf("no such actor for ID: %s", to))
	}
	method, ok := svc.spec.MethodByType(req.Type())
	if !ok {
		return message.NewErrorPacket(to, message.CodeUnrecognizedPacketType,
			fmt.Sprintf("actor %s does not recognize the packet type %q", to, req.Type()))
	}

	if call := callFrom(ctx); call != nil {
		call.svc = svc
	}

	args, err := method.Request.Read(req, ctx)
	if err != nil {
		return message.NewErrorPacket(to, message.CodeBadParameterType, err.Error())
	}

	ret, err := svc.call(ctx, method, args)
	if method.OneWay {
		if err != nil {
			svr.logger.Warn("one-way handler failed", zap.String("actor", to), zap.String("type", req.Type()), zap.Error(err))
		}
		return nil
	}
	if err != nil {
		if errors.Is(err, actor.ErrBadArgument) {
			return message.NewErrorPacket(to, message.CodeBadParameterType, err.Error())
		}
		return message.FromError(to, err)
	}

	resp, err := method.Response.Write(ret, ctx)
	if err != nil {
		return message.FromError(to, err)
	}
	resp[message.KeyFrom] = to
	return resp
}
