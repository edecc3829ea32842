package codec

import (
	"github.com/klauspost/compress/zstd"
)

// ZstdCodec compresses the output of another codec. Encoder and decoder are
// created once and shared; EncodeAll and DecodeAll are safe for concurrent use.
type ZstdCodec struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstdCodec wraps inner. It panics if the zstd coder cannot be created,
// which only happens for invalid options.
func NewZstdCodec(inner Codec) *ZstdCodec {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return &ZstdCodec{inner: inner, enc: enc, dec: dec}
}

func (c *ZstdCodec) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *ZstdCodec) Decode(data []byte, v any) error {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return c.inner.Decode(raw, v)
}

func (c *ZstdCodec) Type() CodecType {
	return CodecTypeZstd
}
