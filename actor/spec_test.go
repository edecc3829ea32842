package actor

import (
	"context"
	"errors"
	"math"
	"testing"

	"mini-rdp/marshal"
	"mini-rdp/message"
)

func counterSpec(t *testing.T) *Spec {
	t.Helper()
	spec, err := NewSpec(nil, "counter", []Method{
		{
			Name:     "add",
			Request:  marshal.Template{"value": marshal.NewArg(0, "number")},
			Response: marshal.Template{"total": marshal.NewRetVal("number")},
		},
		{
			Name: "reset",
			Request: marshal.Template{
				"type":  "clear",
				"quiet": marshal.NewOption(0, "boolean"),
			},
		},
		{
			Name:     "tag",
			Request:  marshal.Template{"names": marshal.NewArg(0, "array:string")},
			Response: marshal.Template{"count": marshal.NewRetVal("number")},
		},
	}, map[string]marshal.Template{
		"changed": {"total": marshal.NewArg(0, "number")},
	})
	if err != nil {
		t.Fatalf("NewSpec failed: %v", err)
	}
	return spec
}

type Counter struct {
	total int
}

func (c *Counter) Add(ctx context.Context, value int) (int, error) {
	c.total += value
	return c.total, nil
}

func (c *Counter) Reset(ctx context.Context, opts map[string]any) error {
	c.total = 0
	return nil
}

func (c *Counter) Tag(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, errors.New("no names")
	}
	return len(names), nil
}

func TestSpecLookup(t *testing.T) {
	spec := counterSpec(t)

	m, err := spec.Method("reset")
	if err != nil {
		t.Fatal(err)
	}
	if m.Request.Type() != "clear" {
		t.Fatalf("reset wire type = %q", m.Request.Type())
	}
	if byType, ok := spec.MethodByType("clear"); !ok || byType != m {
		t.Fatal("expect lookup by wire type to find reset")
	}
	if _, err := spec.Method("missing"); !errors.Is(err, ErrNoSuchMethod) {
		t.Fatalf("expect ErrNoSuchMethod, got %v", err)
	}

	if _, err := spec.Event("changed"); err != nil {
		t.Fatal(err)
	}
	if name, _, ok := spec.EventByType("changed"); !ok || name != "changed" {
		t.Fatal("expect changed event by type")
	}
	if _, err := spec.Event("gone"); !errors.Is(err, ErrNoSuchEvent) {
		t.Fatalf("expect ErrNoSuchEvent, got %v", err)
	}
	if len(spec.MethodNames()) != 3 {
		t.Fatalf("MethodNames = %v", spec.MethodNames())
	}
}

func TestNewSpecRejectsBadTemplates(t *testing.T) {
	_, err := NewSpec(nil, "bad", []Method{{
		Name: "collide",
		Request: marshal.Template{
			"a": marshal.NewArg(0, "number"),
			"b": marshal.NewArg(0, "number"),
		},
	}}, nil)
	if !errors.Is(err, marshal.ErrArgCollision) {
		t.Fatalf("expect ErrArgCollision, got %v", err)
	}

	_, err = NewSpec(nil, "bad", []Method{{Name: "x"}, {Name: "x"}}, nil)
	if !errors.Is(err, ErrDuplicateMethod) {
		t.Fatalf("expect ErrDuplicateMethod, got %v", err)
	}

	_, err = NewSpec(nil, "bad", []Method{
		{Name: "x", Request: marshal.Template{"type": "same"}},
		{Name: "y", Request: marshal.Template{"type": "same"}},
	}, nil)
	if !errors.Is(err, ErrDuplicateMethod) {
		t.Fatalf("expect ErrDuplicateMethod for shared wire type, got %v", err)
	}
}

func TestBindAndCall(t *testing.T) {
	spec := counterSpec(t)
	handlers, err := Bind(spec, &Counter{})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	add, _ := spec.Method("add")
	pkt, err := add.Request.Write([]any{3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	args, err := add.Request.Read(pkt, nil)
	if err != nil {
		t.Fatal(err)
	}
	ret, err := handlers["add"](context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if ret != 3 {
		t.Fatalf("add returned %v", ret)
	}

	reply, err := add.Response.Write(ret, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reply["total"] != 3.0 {
		t.Fatalf("reply = %v", reply)
	}

	ret, err = handlers["reset"](context.Background(), []any{map[string]any{}})
	if err != nil || ret != nil {
		t.Fatalf("reset = %v, %v", ret, err)
	}

	ret, err = handlers["tag"](context.Background(), []any{[]any{"a", "b"}})
	if err != nil || ret != 2 {
		t.Fatalf("tag = %v, %v", ret, err)
	}

	if _, err := handlers["tag"](context.Background(), []any{nil}); err == nil || err.Error() != "no names" {
		t.Fatalf("expect handler error, got %v", err)
	}

	if _, err := handlers["add"](context.Background(), []any{"three"}); !errors.Is(err, ErrBadArgument) {
		t.Fatalf("expect ErrBadArgument, got %v", err)
	}
}

func TestBindRejectsLossyNumbers(t *testing.T) {
	handlers, err := Bind(counterSpec(t), &Counter{})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	for _, arg := range []any{2.7, -1e30, 1e30, math.NaN(), math.Inf(1)} {
		if ret, err := handlers["add"](context.Background(), []any{arg}); !errors.Is(err, ErrBadArgument) {
			t.Fatalf("add(%v): expect ErrBadArgument, got %v, %v", arg, ret, err)
		}
	}

	ret, err := handlers["add"](context.Background(), []any{float64(-4)})
	if err != nil || ret != -4 {
		t.Fatalf("add(-4) = %v, %v", ret, err)
	}
	ret, err = handlers["add"](context.Background(), []any{uint8(6)})
	if err != nil || ret != 2 {
		t.Fatalf("add(6) = %v, %v", ret, err)
	}
}

type halfCounter struct{}

func (h *halfCounter) Add(ctx context.Context, value int) (int, error) { return value, nil }

type wrongShape struct{}

func (w *wrongShape) Add(value int) int { return value }
func (w *wrongShape) Reset(ctx context.Context) error { return nil }
func (w *wrongShape) Tag(ctx context.Context) error   { return nil }

func TestBindErrors(t *testing.T) {
	spec := counterSpec(t)

	if _, err := Bind(spec, Counter{}); err == nil {
		t.Fatal("expect error for non-pointer receiver")
	}
	if _, err := Bind(spec, &halfCounter{}); err == nil {
		t.Fatal("expect error for missing methods")
	}
	if _, err := Bind(spec, &wrongShape{}); err == nil {
		t.Fatal("expect error for wrong signature")
	}
}

func TestRemoteErrorFromHandler(t *testing.T) {
	// A handler may return a *message.Error to choose the reply code.
	h := Handler(func(ctx context.Context, args []any) (any, error) {
		return nil, &message.Error{Code: message.CodeBadParameterType, Message: "nope"}
	})
	_, err := h(context.Background(), nil)
	pkt := message.FromError("counter1", err)
	if pkt[message.KeyError] != message.CodeBadParameterType {
		t.Fatalf("reply = %v", pkt)
	}
}
