package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"mini-rdp/actor"
	"mini-rdp/codec"
	"mini-rdp/loadbalance"
	"mini-rdp/marshal"
	"mini-rdp/message"
	"mini-rdp/registry"
	"mini-rdp/server"
)

func storeSpec(t *testing.T) *actor.Spec {
	t.Helper()
	spec, err := actor.NewSpec(nil, "store", []actor.Method{
		{
			Name: "set",
			Request: marshal.Template{
				"key":       marshal.NewArg(0, "string"),
				"value":     marshal.NewArg(1, "json"),
				"overwrite": marshal.NewOption(2, "boolean"),
			},
			Response: marshal.Template{"stored": marshal.NewRetVal("boolean")},
		},
		{
			Name:     "get",
			Request:  marshal.Template{"key": marshal.NewArg(0, "string")},
			Response: marshal.Template{"value": marshal.NewRetVal("json")},
		},
		{
			Name:     "load",
			Bulk:     true,
			Response: marshal.Template{"size": marshal.NewRetVal("number")},
		},
		{
			Name:    "slow",
			Request: marshal.Template{"ms": marshal.NewArg(0, "number")},
		},
		{
			Name:    "log",
			Request: marshal.Template{"line": marshal.NewArg(0, "string")},
			OneWay:  true,
		},
	}, map[string]marshal.Template{
		"changed": {"key": marshal.NewArg(0, "string"), "value": marshal.NewArg(1, "json")},
	})
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

type Store struct {
	mu   sync.Mutex
	data map[string]any
	logs chan string
}

func (s *Store) Set(ctx context.Context, key string, value any, opts map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists && opts["overwrite"] == false {
		return false, nil
	}
	s.data[key] = value
	return true, server.Emit(ctx, "changed", key, value)
}

func (s *Store) Get(ctx context.Context, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, &message.Error{Code: "notFound", Message: key}
	}
	return v, nil
}

func (s *Store) Load(ctx context.Context, p *marshal.BulkPayload) (int64, error) {
	return p.CopyTo(io.Discard)
}

func (s *Store) Slow(ctx context.Context, ms float64) error {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return nil
}

func (s *Store) Log(ctx context.Context, line string) error {
	s.logs <- line
	return nil
}

func setup(t *testing.T, addr string, ct codec.CodecType) (*Client, *actor.Spec, *Store) {
	t.Helper()
	reg := registry.NewStaticRegistry()
	spec := storeSpec(t)
	store := &Store{data: make(map[string]any), logs: make(chan string, 1)}

	svr := server.NewServer()
	if err := svr.Register("store1", spec, store); err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", addr, "127.0.0.1"+addr, reg)
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, ct, 2)
	t.Cleanup(func() { c.Close() })
	return c, spec, store
}

func TestFrontCall(t *testing.T) {
	for i, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeMsgpack} {
		addr := []string{":18821", ":18822"}[i]
		c, spec, _ := setup(t, addr, ct)
		store := c.Front("store1", spec)
		ctx := context.Background()

		stored, err := store.Call(ctx, "set", "color", "blue")
		if err != nil {
			t.Fatal(err)
		}
		if stored != true {
			t.Fatalf("expect stored, got %v", stored)
		}

		stored, err = store.Call(ctx, "set", "color", "red", map[string]any{"overwrite": false})
		if err != nil {
			t.Fatal(err)
		}
		if stored != false {
			t.Fatalf("expect refusal to overwrite, got %v", stored)
		}

		v, err := store.Call(ctx, "get", "color")
		if err != nil {
			t.Fatal(err)
		}
		if v != "blue" {
			t.Fatalf("expect blue, got %v", v)
		}
	}
}

func TestFrontRemoteError(t *testing.T) {
	c, spec, _ := setup(t, ":18823", codec.CodecTypeJSON)
	store := c.Front("store1", spec)

	_, err := store.Call(context.Background(), "get", "missing")
	if !errors.Is(err, message.ErrRemote) {
		t.Fatalf("expect remote error, got %v", err)
	}
	var remote *message.Error
	if !errors.As(err, &remote) || remote.Code != "notFound" || remote.Actor != "store1" {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestFrontEvents(t *testing.T) {
	c, spec, _ := setup(t, ":18824", codec.CodecTypeJSON)
	store := c.Front("store1", spec)

	changes := make(chan []any, 1)
	if err := store.On("changed", func(args []any) { changes <- args }); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Call(context.Background(), "set", "size", 3); err != nil {
		t.Fatal(err)
	}

	select {
	case args := <-changes:
		if len(args) != 2 || args[0] != "size" || args[1] != float64(3) {
			t.Fatalf("unexpected event args: %v", args)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestFrontReused(t *testing.T) {
	c, spec, _ := setup(t, ":18830", codec.CodecTypeJSON)
	first := c.Front("store1", spec)
	if again := c.Front("store1", spec); again != first {
		t.Fatal("expect the same front for the same actor and spec")
	}

	heard := make(chan string, 4)
	if err := first.On("changed", func(args []any) { heard <- "first" }); err != nil {
		t.Fatal(err)
	}
	first.Close()
	second := c.Front("store1", spec)
	if second == first {
		t.Fatal("expect a new front after Close")
	}
	if err := second.On("changed", func(args []any) { heard <- "second" }); err != nil {
		t.Fatal(err)
	}

	if _, err := second.Call(context.Background(), "set", "k", 1); err != nil {
		t.Fatal(err)
	}
	select {
	case who := <-heard:
		if who != "second" {
			t.Fatalf("event reached a closed front")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case who := <-heard:
		t.Fatalf("unexpected extra delivery to %s", who)
	case <-time.After(100 * time.Millisecond):
	}

	c.mu.RLock()
	n := len(c.fronts["store1"])
	c.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expect one registered front, got %d", n)
	}
}

func TestFrontCallBulk(t *testing.T) {
	c, spec, _ := setup(t, ":18825", codec.CodecTypeJSON)
	store := c.Front("store1", spec)

	payload := strings.Repeat("0123456789", 1000)
	size, err := store.CallBulk(context.Background(), "load", int64(len(payload)), strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if size != float64(len(payload)) {
		t.Fatalf("expect %d, got %v", len(payload), size)
	}
}

func TestFrontOneWay(t *testing.T) {
	c, spec, store := setup(t, ":18826", codec.CodecTypeJSON)
	front := c.Front("store1", spec)

	ret, err := front.Call(context.Background(), "log", "started")
	if err != nil || ret != nil {
		t.Fatalf("expect nil, nil; got %v, %v", ret, err)
	}
	select {
	case line := <-store.logs:
		if line != "started" {
			t.Fatalf("expect started, got %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("one-way request not delivered")
	}
}

func TestFrontContextCancel(t *testing.T) {
	c, spec, _ := setup(t, ":18827", codec.CodecTypeJSON)
	store := c.Front("store1", spec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := store.Call(ctx, "slow", 500); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
}

func TestFrontLocalErrors(t *testing.T) {
	c, spec, _ := setup(t, ":18828", codec.CodecTypeJSON)
	store := c.Front("store1", spec)
	ctx := context.Background()

	if _, err := store.Call(ctx, "delete", "k"); !errors.Is(err, actor.ErrNoSuchMethod) {
		t.Fatalf("expect ErrNoSuchMethod, got %v", err)
	}
	if _, err := store.Call(ctx, "load", 3); !errors.Is(err, ErrBulkMethod) {
		t.Fatalf("expect ErrBulkMethod, got %v", err)
	}
	if _, err := store.CallBulk(ctx, "get", 3, strings.NewReader("abc")); !errors.Is(err, ErrNotBulk) {
		t.Fatalf("expect ErrNotBulk, got %v", err)
	}
	if err := store.On("deleted", func([]any) {}); !errors.Is(err, actor.ErrNoSuchEvent) {
		t.Fatalf("expect ErrNoSuchEvent, got %v", err)
	}

	ghost := c.Front("store2", spec)
	if _, err := ghost.Call(ctx, "get", "k"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expect registry.ErrNotFound, got %v", err)
	}
}

func TestRootFront(t *testing.T) {
	c, _, _ := setup(t, ":18829", codec.CodecTypeJSON)
	root := c.Front(server.RootActorID, server.RootSpec(""))

	ret, err := root.Call(context.Background(), "listActors")
	if err != nil {
		t.Fatal(err)
	}
	actors, ok := ret.([]any)
	if !ok || len(actors) != 2 {
		t.Fatalf("expect two actors, got %#v", ret)
	}
	// Sorted by actor ID: root, store1.
	store := actors[1].(map[string]any)
	if store["actor"] != "store1" || store["typeName"] != "store" {
		t.Fatalf("unexpected actor entry: %v", store)
	}
}
