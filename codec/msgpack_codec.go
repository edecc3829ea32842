package codec

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"mini-rdp/message"
)

// MsgpackCodec encodes packets as MessagePack maps. It works on the generic
// packet shape, so integers decode as int64 or uint64 rather than float64;
// the number wire type accepts both.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	p, err := packetOf(v)
	if err != nil {
		return nil, err
	}
	return msgp.AppendIntf(nil, p)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	dst, ok := v.(*message.Packet)
	if !ok {
		return ErrNotPacket
	}
	i, _, err := msgp.ReadIntfBytes(data)
	if err != nil {
		return err
	}
	m, ok := i.(map[string]any)
	if !ok {
		return fmt.Errorf("codec: msgpack body is %T, want a map", i)
	}
	*dst = m
	return nil
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}
