package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mini-rdp/codec"
	"mini-rdp/loadbalance"
	"mini-rdp/registry"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdp.json")
	data := `{
		"listen": ":9000",
		"codec": "msgpack",
		"balancer": "consistenthash",
		"requestTimeout": "250ms",
		"rateLimit": 10,
		"rateBurst": 5
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("expect :9000, got %s", cfg.Listen)
	}
	if ct, _ := cfg.CodecType(); ct != codec.CodecTypeMsgpack {
		t.Fatalf("expect msgpack, got %d", ct)
	}
	if time.Duration(cfg.RequestTimeout) != 250*time.Millisecond {
		t.Fatalf("expect 250ms, got %v", time.Duration(cfg.RequestTimeout))
	}
	// Unset fields keep their defaults.
	if cfg.PoolSize != 4 || cfg.LogLevel != "info" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	bal, err := cfg.NewBalancer()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bal.(loadbalance.KeyedBalancer); !ok {
		t.Fatalf("expect a keyed balancer, got %T", bal)
	}
	if n := len(cfg.Middlewares(nil)); n != 3 {
		t.Fatalf("expect logging, rate limit and timeout middlewares, got %d", n)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expect error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"codec": "xml"}`), 0o600)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expect ErrInvalid, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MINIRDP_LISTEN":          ":7000",
		"MINIRDP_POOL_SIZE":       "8",
		"MINIRDP_ETCD_ENDPOINTS":  "10.0.0.1:2379, 10.0.0.2:2379",
		"MINIRDP_REQUEST_TIMEOUT": "2s",
		"MINIRDP_RATE_LIMIT":      "1.5",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.PoolSize != 8 || cfg.RateLimit != 1.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "10.0.0.2:2379" {
		t.Fatalf("unexpected endpoints: %v", cfg.EtcdEndpoints)
	}
	if time.Duration(cfg.RequestTimeout) != 2*time.Second {
		t.Fatalf("expect 2s, got %v", time.Duration(cfg.RequestTimeout))
	}

	env = map[string]string{"MINIRDP_POOL_SIZE": "many"}
	if err := Default().ApplyEnv(lookup); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expect ErrInvalid, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rdp.json")
	os.WriteFile(path, []byte(`{"codec": "msgpack"}`), 0o600)
	t.Setenv("MINIRDP_CODEC", "zstd")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Codec != "zstd" {
		t.Fatalf("expect zstd, got %s", cfg.Codec)
	}
}

func TestNewRegistryWithoutEtcd(t *testing.T) {
	reg, err := Default().NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.(*registry.StaticRegistry); !ok {
		t.Fatalf("expect static registry, got %T", reg)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(-1) {
		t.Fatal("expect debug level enabled")
	}

	cfg.LogLevel = "loud"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expect ErrInvalid, got %v", err)
	}
}
