package registry

import (
	"errors"
	"testing"
	"time"
)

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry()

	if _, err := reg.Discover("counter1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}

	watch := reg.Watch("counter1")

	reg.Register("counter1", ServiceInstance{Addr: ":8001", Weight: 1}, 10)
	reg.Register("counter1", ServiceInstance{Addr: ":8002", Weight: 1}, 10)
	reg.Register("counter1", ServiceInstance{Addr: ":8001", Weight: 7}, 10)

	instances, err := reg.Discover("counter1")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 || instances[0].Weight != 7 {
		t.Fatalf("expect re-registration to replace, got %v", instances)
	}

	select {
	case latest := <-watch:
		if len(latest) != 2 {
			t.Fatalf("watch delivered %v", latest)
		}
	case <-time.After(time.Second):
		t.Fatal("expect a watch notification")
	}

	reg.Deregister("counter1", ":8001")
	instances, _ = reg.Discover("counter1")
	if len(instances) != 1 || instances[0].Addr != ":8002" {
		t.Fatalf("expect only :8002, got %v", instances)
	}
}
