// Package codec turns packets into frame bodies and back.
package codec

import (
	"errors"
	"fmt"

	"mini-rdp/message"
)

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeMsgpack CodecType = 1
	CodecTypeZstd    CodecType = 2 // JSON compressed with zstd
)

// ErrNotPacket is returned when a codec is handed something other than a packet.
var ErrNotPacket = errors.New("codec: value must be a message.Packet")

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

var (
	jsonCodec    = &JSONCodec{}
	msgpackCodec = &MsgpackCodec{}
	zstdCodec    = NewZstdCodec(jsonCodec)
)

// GetCodec returns the shared codec for codecType.
func GetCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return jsonCodec, nil
	case CodecTypeMsgpack:
		return msgpackCodec, nil
	case CodecTypeZstd:
		return zstdCodec, nil
	}
	return nil, fmt.Errorf("codec: unsupported codec type %d", codecType)
}

// ParseCodecType maps a configuration name to a codec type.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "msgpack":
		return CodecTypeMsgpack, nil
	case "zstd":
		return CodecTypeZstd, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

func packetOf(v any) (map[string]any, error) {
	switch p := v.(type) {
	case message.Packet:
		return p, nil
	case *message.Packet:
		return *p, nil
	case map[string]any:
		return p, nil
	}
	return nil, ErrNotPacket
}
