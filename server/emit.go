package server

import (
	"context"
	"errors"

	"mini-rdp/codec"
	"mini-rdp/message"
	"mini-rdp/protocol"
)

// ErrNoCaller is returned by Emit when ctx does not come from a request
// dispatched by a Server.
var ErrNoCaller = errors.New("rdp: context carries no connection to emit on")

type callKey struct{}

// call ties a request context to the connection it arrived on.
type call struct {
	conn  *conn
	codec codec.Codec
	svc   *service // set once the target actor is known
}

func newCallContext(c *conn, cd codec.Codec) context.Context {
	return context.WithValue(context.Background(), callKey{}, &call{conn: c, codec: cd})
}

func callFrom(ctx context.Context) *call {
	c, _ := ctx.Value(callKey{}).(*call)
	return c
}

// Emit sends event from the actor handling ctx's request to the client that
// sent it. args are encoded with the event template declared in the actor's
// spec. Emit may be called after the handler returned, as long as the
// connection is open.
func Emit(ctx context.Context, event string, args ...any) error {
	c := callFrom(ctx)
	if c == nil || c.svc == nil {
		return ErrNoCaller
	}
	tmpl, err := c.svc.spec.Event(event)
	if err != nil {
		return err
	}
	pkt, err := tmpl.Write(args, ctx)
	if err != nil {
		return err
	}
	pkt[message.KeyFrom] = c.svc.id

	body, err := c.codec.Encode(pkt)
	if err != nil {
		return err
	}
	header := protocol.Header{CodecType: byte(c.codec.Type()), MsgType: protocol.MsgTypeEvent}
	return c.conn.writeFrame(&header, body)
}
