package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/mini-rdp/"

// EtcdRegistry implements Registry on etcd v3. Instances live under
//
//	Key:   /mini-rdp/{actorID}/{Addr}
//	Value: JSON-encoded ServiceInstance
//
// Entries are bound to a TTL lease that the server keeps alive; if the
// server dies the lease expires and its actors disappear from discovery.
type EtcdRegistry struct {
	client *clientv3.Client
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Ping checks that at least the first endpoint answers.
func (r *EtcdRegistry) Ping(ctx context.Context) error {
	endpoints := r.client.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("registry: no etcd endpoints")
	}
	_, err := r.client.Status(ctx, endpoints[0])
	return err
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func instanceKey(name, addr string) string {
	return keyPrefix + name + "/" + addr
}

// Register puts the instance under a fresh lease of ttl seconds and keeps the
// lease alive in the background. The lease ID stays local so one registry can
// serve several servers.
func (r *EtcdRegistry) Register(name string, instance ServiceInstance, ttl int64) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, instanceKey(name, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(name string, addr string) error {
	_, err := r.client.Delete(context.Background(), instanceKey(name, addr))
	return err
}

// Watch re-reads the instance list after every change under the actor's prefix.
func (r *EtcdRegistry) Watch(name string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(context.Background(), keyPrefix+name+"/", clientv3.WithPrefix()) {
			instances, _ := r.Discover(name)
			ch <- instances
		}
	}()
	return ch
}

func (r *EtcdRegistry) Discover(name string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(context.Background(), keyPrefix+name+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return instances, nil
}
