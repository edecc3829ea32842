package message

import (
	"errors"
	"fmt"
	"testing"
)

func TestPacketAccessors(t *testing.T) {
	p := Packet{"to": "counter1", "type": "add", "value": 5.0}

	if p.To() != "counter1" {
		t.Fatalf("expect to=counter1, got %q", p.To())
	}
	if p.Type() != "add" {
		t.Fatalf("expect type=add, got %q", p.Type())
	}
	if p.From() != "" {
		t.Fatalf("expect empty from, got %q", p.From())
	}
	if p.Err() != nil {
		t.Fatalf("expect no error, got %v", p.Err())
	}
}

func TestErrorPacket(t *testing.T) {
	p := NewErrorPacket("root", CodeNoSuchActor, "no actor named ghost")

	err := p.Err()
	if err == nil {
		t.Fatal("expect error from error packet")
	}
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expect errors.Is(err, ErrRemote), got %v", err)
	}
	if !errors.Is(err, &Error{Code: CodeNoSuchActor}) {
		t.Fatalf("expect code match, got %v", err)
	}
	if errors.Is(err, &Error{Code: CodeTimeout}) {
		t.Fatalf("expect code mismatch for timeout")
	}
}

func TestFromError(t *testing.T) {
	p := FromError("a1", fmt.Errorf("wrapped: %w", &Error{Code: CodeTimeout, Message: "slow"}))
	if p[KeyError] != CodeTimeout {
		t.Fatalf("expect timeout code to survive wrapping, got %v", p[KeyError])
	}

	p = FromError("a1", errors.New("boom"))
	if p[KeyError] != CodeUnknownError || p[KeyMessage] != "boom" {
		t.Fatalf("expect unknownError/boom, got %v", p)
	}
}
