package marshal

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"

	"mini-rdp/message"
	"mini-rdp/types"
)

var (
	// ErrInvalidTemplate is returned when a request template holds a value
	// other than an Arg or Option at the top level.
	ErrInvalidTemplate = errors.New("invalid request template")
	// ErrBulkLength is returned by a bulk request called without a length.
	ErrBulkLength = errors.New("this method must be called with an object argument having a numeric length")
	// ErrArgCollision is reported by Validate for ambiguous argument bindings.
	ErrArgCollision = errors.New("placeholders collide on argument index")
)

// Template describes the wire shape of one request, response or event.
// The reserved "type" key, when it holds a string, overrides the wire tag.
type Template map[string]any

// BulkPayload is the single argument of a bulk request. On the sending side
// only Length matters. On the receiving side CopyTo and CopyToBuffer read the
// raw bytes that followed the packet.
type BulkPayload struct {
	Length       int64
	CopyTo       func(w io.Writer) (int64, error)
	CopyToBuffer func(buf []byte) (int, error)
}

// Bulk packet keys supplied by the transport on the receiving side.
const (
	KeyLength       = "length"
	KeyCopyTo       = "copyTo"
	KeyCopyToBuffer = "copyToBuffer"
)

// Request encodes call arguments into a packet and decodes them back.
type Request struct {
	typ      string
	bulk     bool
	template Template
	keys     []string
	args     []found[Placeholder]
	arity    int
}

// NewRequest builds a request for tmpl registered under name. Placeholders
// without a registry of their own resolve their types against reg, or
// types.Default when reg is nil. Malformed templates are not rejected here;
// see Validate.
func NewRequest(reg *types.Registry, name string, tmpl Template) *Request {
	r := &Request{typ: name, template: tmpl}
	if s, ok := tmpl[message.KeyType].(string); ok {
		r.typ = s
	}
	for _, k := range sortedKeys(tmpl) {
		if k != message.KeyType {
			r.keys = append(r.keys, k)
		}
	}
	r.args = collect[Placeholder](tmpl, nil, nil)
	for _, f := range r.args {
		if b, ok := f.ph.(binder); ok && reg != nil {
			b.bind(reg)
		}
		if f.ph.Index()+1 > r.arity {
			r.arity = f.ph.Index() + 1
		}
	}
	return r
}

// NewBulkRequest builds a request whose packet carries only a byte length.
func NewBulkRequest(name string) *Request {
	return &Request{typ: name, bulk: true, arity: 1}
}

// Type returns the wire tag written into every packet.
func (r *Request) Type() string { return r.typ }

// IsBulk reports whether r is a bulk request.
func (r *Request) IsBulk() bool { return r.bulk }

// Arity returns the number of argument slots Read produces.
func (r *Request) Arity() int { return r.arity }

// Write encodes args into a packet. Fields bound to slots beyond len(args) are
// omitted. Codec errors are returned as is.
func (r *Request) Write(args []any, ctx any) (message.Packet, error) {
	if r.bulk {
		var first any
		if len(args) > 0 {
			first = args[0]
		}
		n, ok := bulkLength(first)
		if !ok {
			return nil, ErrBulkLength
		}
		return message.Packet{message.KeyType: r.typ, KeyLength: n}, nil
	}

	pkt := message.Packet{message.KeyType: r.typ}
	for _, key := range r.keys {
		ph, ok := r.template[key].(Placeholder)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is %T, want Arg or Option", ErrInvalidTemplate, r.typ, key, r.template[key])
		}
		// A slot the caller did not supply leaves its field out.
		if ph.Index() >= len(args) {
			continue
		}
		wire, present, err := ph.Encode(args[ph.Index()], ctx, key)
		if err != nil {
			return nil, err
		}
		if present {
			pkt[key] = wire
		}
	}
	return pkt, nil
}

// Read decodes a packet into positional arguments. Slots no placeholder
// wrote to are nil.
func (r *Request) Read(pkt message.Packet, ctx any) ([]any, error) {
	if r.bulk {
		n, ok := asInt64(pkt[KeyLength])
		if !ok {
			return nil, ErrBulkLength
		}
		bulk := &BulkPayload{Length: n}
		bulk.CopyTo, _ = pkt[KeyCopyTo].(func(io.Writer) (int64, error))
		bulk.CopyToBuffer, _ = pkt[KeyCopyToBuffer].(func([]byte) (int, error))
		return []any{bulk}, nil
	}

	args := make([]any, r.arity)
	for _, f := range r.args {
		wire, ok := lookup(pkt, f.path)
		if err := f.ph.Decode(wire, ok, ctx, args, f.key()); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// Validate reports template problems that Write or Read would otherwise hit
// at call time, plus ambiguous bindings they would silently accept: two bare
// Args on the same index, or an Arg and an Option sharing one.
func (r *Request) Validate() error {
	if r.bulk {
		return nil
	}
	for _, key := range r.keys {
		if _, ok := r.template[key].(Placeholder); !ok {
			return fmt.Errorf("%w: %s.%s is %T, want Arg or Option", ErrInvalidTemplate, r.typ, key, r.template[key])
		}
	}

	bare := make(map[int]string)
	optioned := make(map[int]string)
	for _, f := range r.args {
		key := f.key()
		switch f.ph.(type) {
		case *Option:
			optioned[f.ph.Index()] = key
		default:
			if prev, dup := bare[f.ph.Index()]; dup {
				return fmt.Errorf("%w: %s.%s and %s.%s both bind argument %d",
					ErrArgCollision, r.typ, prev, r.typ, key, f.ph.Index())
			}
			bare[f.ph.Index()] = key
		}
	}
	for idx, key := range optioned {
		if prev, dup := bare[idx]; dup {
			return fmt.Errorf("%w: %s.%s is an option on argument %d already bound by %s.%s",
				ErrArgCollision, r.typ, key, idx, r.typ, prev)
		}
	}
	return nil
}

func bulkLength(v any) (int64, bool) {
	switch b := v.(type) {
	case *BulkPayload:
		if b == nil {
			return 0, false
		}
		return b.Length, true
	case BulkPayload:
		return b.Length, true
	case map[string]any:
		return asInt64(b[KeyLength])
	}
	return 0, false
}

// asInt64 accepts any numeric kind holding an integral value.
func asInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
