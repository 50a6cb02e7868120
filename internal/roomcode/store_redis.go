package roomcode

import (
    "context"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

const ttlCode = 24 * time.Hour

// RedisReserver claims codes with SETNX so restarted or sibling processes
// sharing the same Redis do not reuse a code that is still on someone's screen.
type RedisReserver struct {
    rdb *redis.Client
    ttl time.Duration
}

func NewRedisReserver(rdb *redis.Client) *RedisReserver { return &RedisReserver{rdb: rdb, ttl: ttlCode} }

func keyCode(code string) string { return "room:code:" + strings.TrimSpace(code) }

func (r *RedisReserver) Reserve(ctx context.Context, code string) (bool, error) {
    return r.rdb.SetNX(ctx, keyCode(code), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}

func (r *RedisReserver) Release(ctx context.Context, code string) error {
    return r.rdb.Del(ctx, keyCode(code)).Err()
}

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(raw)
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        n, err := strconv.Atoi(p)
        if err != nil { return nil, fmt.Errorf("bad redis db %q", p) }
        db = n
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

// Dial connects and pings.
func Dial(ctx context.Context, raw string) (*redis.Client, error) {
    opts, err := ParseRedisURL(raw)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return rdb, nil
}
