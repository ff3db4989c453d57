package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldpath/visittracker/pkg/config"
	"github.com/fieldpath/visittracker/pkg/logger"
)

// Key layout under the vt namespace:
//
//	vt:doc:<document path>     hash, one field per document field
//	vt:col:<collection path>   set of document ids
//	vt:chg:<collection path>   pub/sub channel announcing writes
//	vt:rate_limit:<scope>      fixed window counter
const (
	keyNamespace    = "vt"
	docPrefix       = "doc"
	indexPrefix     = "col"
	changePrefix    = "chg"
	rateLimitPrefix = "rate_limit"
)

// fixedWindowScript increments the counter, starts the window on the first
// hit and returns the count plus the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// Client is the redis connection shared by the document store and the
// write rate limiter.
type Client struct {
	rdb redis.UniversalClient
}

// New connects using either a redis:// URL or a bare address and verifies the
// connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	}
	return &Client{rdb: rdb}, nil
}

// Wrap adapts an existing connection, e.g. one pointed at miniredis in tests.
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	// Values in the URL win over the separate settings.
	setIfZero(&opts.DB, cfg.DB)
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

// Raw exposes the underlying connection for pipelines, scripts and pub/sub.
func (c *Client) Raw() redis.UniversalClient {
	return c.rdb
}

// Window is the state of a fixed window counter after one hit.
type Window struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// FixedWindowAllow records one hit for scope and reports whether it fits in
// limit for the current window. Increment and expiry run atomically.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if c == nil || c.rdb == nil {
		return Window{}, errors.New("redis client not initialized")
	}
	res, err := fixedWindowScript.Run(ctx, c.rdb, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("rate limit %s: unexpected reply %v", scope, res)
	}
	w := Window{Allowed: res[0] <= limit, Count: res[0]}
	if !w.Allowed {
		w.RetryAfter = window
		if res[1] > 0 {
			w.RetryAfter = time.Duration(res[1]) * time.Millisecond
		}
	}
	return w, nil
}

// DocKey returns the hash key holding the document at path.
func (c *Client) DocKey(path string) string {
	return key(docPrefix, path)
}

// IndexKey returns the set key listing the document ids of a collection.
func (c *Client) IndexKey(collection string) string {
	return key(indexPrefix, collection)
}

// ChangeChannel returns the pub/sub channel announcing writes to a collection.
func (c *Client) ChangeChannel(collection string) string {
	return key(changePrefix, collection)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(rateLimitPrefix, scope)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis client not initialized")
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func key(kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return keyNamespace + ":" + kind
	}
	return keyNamespace + ":" + kind + ":" + name
}
