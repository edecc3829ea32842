// Package message defines the packet exchanged between client and server.
//
// A Packet is a JSON-shaped object. Requests carry "to" (the target actor) and
// "type" (the method or event name); responses and events carry "from". Error
// responses carry "error" (a code) and "message" (human-readable text).
//
//	request:  {"to": "counter1", "type": "add", "value": 5}
//	response: {"from": "counter1", "total": 5}
//	error:    {"from": "counter1", "error": "noSuchActor", "message": "..."}
package message

import (
	"errors"
	"fmt"
)

// Reserved packet keys.
const (
	KeyType    = "type"
	KeyTo      = "to"
	KeyFrom    = "from"
	KeyError   = "error"
	KeyMessage = "message"
)

// Error codes carried in the "error" field of a response.
const (
	CodeNoSuchActor            = "noSuchActor"
	CodeUnrecognizedPacketType = "unrecognizedPacketType"
	CodeBadParameterType       = "badParameterType"
	CodeUnknownError           = "unknownError"
	CodeTimeout                = "timeout"
	CodeRateLimited            = "rateLimited"
	CodeConnectionClosed       = "connectionClosed"
)

// Packet is a single protocol message. Values are restricted to what a codec can
// carry: nil, bool, string, numbers, []any and map[string]any. Bulk packets
// handed to a request template on the server side also carry function values.
type Packet map[string]any

// Type returns the "type" tag, or "" if absent.
func (p Packet) Type() string { return p.str(KeyType) }

// To returns the target actor ID of a request.
func (p Packet) To() string { return p.str(KeyTo) }

// From returns the source actor ID of a response or event.
func (p Packet) From() string { return p.str(KeyFrom) }

func (p Packet) str(key string) string {
	s, _ := p[key].(string)
	return s
}

// Err returns the remote error carried by p, or nil for a successful response.
func (p Packet) Err() error {
	code := p.str(KeyError)
	if code == "" {
		return nil
	}
	return &Error{Actor: p.From(), Code: code, Message: p.str(KeyMessage)}
}

// NewErrorPacket builds an error response originating from actor.
func NewErrorPacket(actor, code, msg string) Packet {
	return Packet{KeyFrom: actor, KeyError: code, KeyMessage: msg}
}

// FromError converts a handler error into an error response. A *Error keeps its
// code; anything else is reported as CodeUnknownError.
func FromError(actor string, err error) Packet {
	var remote *Error
	if errors.As(err, &remote) {
		return NewErrorPacket(actor, remote.Code, remote.Message)
	}
	return NewErrorPacket(actor, CodeUnknownError, err.Error())
}

// ErrRemote is a sentinel for use with errors.Is to check whether an error
// came back from the other side of the connection.
var ErrRemote = &Error{}

// Error is an error reported by a remote actor.
type Error struct {
	Actor   string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Actor == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s from %s: %s", e.Code, e.Actor, e.Message)
}

// Is matches any *Error target, or a target with the same code when the
// target's code is set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}
