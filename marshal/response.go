package marshal

import (
	"fmt"

	"mini-rdp/message"
	"mini-rdp/types"
)

// Response encodes a return value into a reply packet. Template values other
// than the RetVal are copied into every reply unchanged.
type Response struct {
	template Template
	ret      *found[*RetVal]
}

// NewResponse builds a response for tmpl. A nil or RetVal-free template
// describes a method with no return value. It panics if tmpl holds more than
// one RetVal.
func NewResponse(reg *types.Registry, tmpl Template) *Response {
	r := &Response{template: tmpl}
	rets := collect[*RetVal](tmpl, nil, nil)
	switch len(rets) {
	case 0:
	case 1:
		r.ret = &rets[0]
		if reg != nil {
			r.ret.ph.bind(reg)
		}
	default:
		panic(fmt.Sprintf("marshal: response template has %d RetVal placeholders", len(rets)))
	}
	return r
}

// Write builds the reply packet for ret.
func (r *Response) Write(ret any, ctx any) (message.Packet, error) {
	out, err := r.fill(r.template, ret, ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return message.Packet{}, nil
	}
	return message.Packet(out.(map[string]any)), nil
}

func (r *Response) fill(v any, ret any, ctx any) (any, error) {
	switch node := v.(type) {
	case *RetVal:
		return node.write(ret, ctx)
	case Template:
		return r.fillObject(node, ret, ctx)
	case map[string]any:
		return r.fillObject(node, ret, ctx)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			filled, err := r.fill(item, ret, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = filled
		}
		return out, nil
	}
	return v, nil
}

func (r *Response) fillObject(obj map[string]any, ret any, ctx any) (any, error) {
	if obj == nil {
		return nil, nil
	}
	out := make(map[string]any, len(obj))
	for k, item := range obj {
		filled, err := r.fill(item, ret, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = filled
	}
	return out, nil
}

// Read extracts the return value from a reply packet. It returns nil for a
// void response or when the value is missing.
func (r *Response) Read(pkt message.Packet, ctx any) (any, error) {
	if r.ret == nil {
		return nil, nil
	}
	wire, ok := lookup(pkt, r.ret.path)
	if !ok {
		return nil, nil
	}
	return r.ret.ph.read(wire, ctx)
}
