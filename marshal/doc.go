// Package marshal converts between positional Go call arguments and wire packets.
//
// A [Request] is built from a [Template]: a JSON-shaped object whose values are
// placeholders bound to argument positions. [Arg] maps one argument to one
// packet field; [Option] maps one property of an options object (a
// map[string]any argument) to one packet field and omits it when absent.
//
//	add := marshal.NewRequest(nil, "add", marshal.Template{
//		"value": marshal.NewArg(0, "number"),
//		"label": marshal.NewOption(1, "string"),
//	})
//	pkt, _ := add.Write([]any{5, map[string]any{"label": "x"}}, nil)
//	// pkt == {"type": "add", "value": 5, "label": "x"}
//	args, _ := add.Read(pkt, nil)
//	// args == [5, {"label": "x"}]
//
// A bulk request carries only a byte length in its packet; the payload itself
// travels as raw bytes next to it and is exposed through a [BulkPayload].
//
// [Response] and [RetVal] do the same for return values.
//
// Wire types are resolved by name from a [types.Registry] on first use.
// Templates are immutable once built and safe for concurrent use.
package marshal
