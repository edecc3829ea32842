// Package config loads the settings shared by servers and clients: where to
// listen, how to find each other, the wire codec, and middleware limits.
//
// Values come from Default, then an optional JSON file, then MINIRDP_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"mini-rdp/codec"
	"mini-rdp/loadbalance"
	"mini-rdp/middleware"
	"mini-rdp/registry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MINIRDP_"

var ErrInvalid = errors.New("config: invalid value")

// Duration is a time.Duration written as "1.5s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Listen    string `json:"listen"`
	Advertise string `json:"advertise"` // routable form of Listen, registered for every actor

	Codec    string `json:"codec"` // json, msgpack or zstd
	PoolSize int    `json:"poolSize"`
	Balancer string `json:"balancer"` // roundrobin, weighted or consistenthash

	EtcdEndpoints   []string `json:"etcdEndpoints"` // empty: in-process static registry
	EtcdDialTimeout Duration `json:"etcdDialTimeout"`

	RequestTimeout Duration `json:"requestTimeout"` // 0 disables the timeout middleware
	RateLimit      float64  `json:"rateLimit"`      // requests per second, 0 disables
	RateBurst      int      `json:"rateBurst"`
	Retries        int      `json:"retries"`
	RetryDelay     Duration `json:"retryDelay"`

	LogLevel string `json:"logLevel"`
}

func Default() *Config {
	return &Config{
		Listen:          ":8080",
		Advertise:       "127.0.0.1:8080",
		Codec:           "json",
		PoolSize:        4,
		Balancer:        "roundrobin",
		EtcdDialTimeout: Duration(5 * time.Second),
		RequestTimeout:  Duration(30 * time.Second),
		RetryDelay:      Duration(50 * time.Millisecond),
		LogLevel:        "info",
	}
}

// Load reads path on top of Default and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MINIRDP_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	duration := func(name string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q", ErrInvalid, EnvPrefix, name, v)
		}
		*dst = Duration(d)
		return nil
	}

	str("LISTEN", &c.Listen)
	str("ADVERTISE", &c.Advertise)
	str("CODEC", &c.Codec)
	str("BALANCER", &c.Balancer)
	str("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup(EnvPrefix + "ETCD_ENDPOINTS"); ok {
		c.EtcdEndpoints = nil
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				c.EtcdEndpoints = append(c.EtcdEndpoints, ep)
			}
		}
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sRATE_LIMIT=%q", ErrInvalid, EnvPrefix, v)
		}
		c.RateLimit = f
	}
	return errors.Join(
		integer("POOL_SIZE", &c.PoolSize),
		integer("RATE_BURST", &c.RateBurst),
		integer("RETRIES", &c.Retries),
		duration("REQUEST_TIMEOUT", &c.RequestTimeout),
		duration("RETRY_DELAY", &c.RetryDelay),
		duration("ETCD_DIAL_TIMEOUT", &c.EtcdDialTimeout),
	)
}

// Validate checks that every named component exists.
func (c *Config) Validate() error {
	if _, err := c.CodecType(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.NewBalancer(); err != nil {
		return err
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("%w: poolSize %d", ErrInvalid, c.PoolSize)
	}
	if c.RateLimit < 0 || c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: rateLimit %v with burst %d", ErrInvalid, c.RateLimit, c.RateBurst)
	}
	return nil
}

func (c *Config) CodecType() (codec.CodecType, error) {
	return codec.ParseCodecType(c.Codec)
}

func (c *Config) NewBalancer() (loadbalance.Balancer, error) {
	switch c.Balancer {
	case "", "roundrobin":
		return &loadbalance.RoundRobinBalancer{}, nil
	case "weighted":
		return &loadbalance.WeightedRandomBalancer{}, nil
	case "consistenthash":
		return loadbalance.NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("%w: balancer %q", ErrInvalid, c.Balancer)
}

// NewRegistry connects to etcd, or returns an in-process registry when no
// endpoints are configured.
func (c *Config) NewRegistry() (registry.Registry, error) {
	if len(c.EtcdEndpoints) == 0 {
		return registry.NewStaticRegistry(), nil
	}
	return registry.NewEtcdRegistry(c.EtcdEndpoints, time.Duration(c.EtcdDialTimeout))
}

// Middlewares returns the server middleware chain, outermost first.
func (c *Config) Middlewares(logger *zap.Logger) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if c.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(logger, c.Retries, time.Duration(c.RetryDelay)))
	}
	if c.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(c.RateLimit, c.RateBurst))
	}
	if c.RequestTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(time.Duration(c.RequestTimeout)))
	}
	return mws
}

// NewLogger builds a production logger at LogLevel.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}
