package roomcode

import (
    "bytes"
    "context"
    "errors"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"
)

func newTestReserver(t *testing.T) (*RedisReserver, *miniredis.Miniredis) {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return NewRedisReserver(rdb), mr
}

func TestGenerateShape(t *testing.T) {
    for i := 0; i < 200; i++ {
        c, err := Generate()
        if err != nil { t.Fatalf("Generate: %v", err) }
        if !Valid(c) { t.Fatalf("invalid code %q", c) }
    }
    if Valid("abc123") || Valid("ABCDE") { t.Fatalf("Valid accepted bad codes") }
}

func TestGenerateDropsBiasedBytes(t *testing.T) {
    src := bytes.NewReader([]byte{
        252, 253, 254, 255, 36, 1, 2, 3, 4, 5, 0, 0,
    })
    c, err := generate(src)
    if err != nil { t.Fatalf("generate: %v", err) }
    if c != "ABCDEF" { t.Fatalf("got %q, want ABCDEF", c) }

    // a whole chunk of rejected bytes forces another read
    rejected := bytes.Repeat([]byte{255}, Length*2)
    src = bytes.NewReader(append(rejected, 35, 35, 35, 35, 35, 35, 0, 0, 0, 0, 0, 0))
    c, err = generate(src)
    if err != nil { t.Fatalf("generate: %v", err) }
    if c != "999999" { t.Fatalf("got %q, want 999999", c) }

    if _, err := generate(bytes.NewReader(rejected)); err == nil {
        t.Fatalf("expected error once the source runs dry")
    }
}

func TestAllocatorSkipsLiveAndReserved(t *testing.T) {
    seq := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
    i := 0
    a := NewAllocator(nil).WithGenerator(func() (string, error) { c := seq[i]; i++; return c, nil })
    ctx := context.Background()
    if ok, _ := a.res.Reserve(ctx, "BBBBBB"); !ok { t.Fatalf("pre-reserve failed") }

    got, err := a.Allocate(ctx, func(c string) bool { return c == "AAAAAA" })
    if err != nil { t.Fatalf("Allocate: %v", err) }
    if got != "CCCCCC" { t.Fatalf("got %q, want CCCCCC", got) }
}

func TestAllocatorGivesUp(t *testing.T) {
    calls := 0
    a := NewAllocator(nil).WithGenerator(func() (string, error) { calls++; return "ZZZZZZ", nil })
    _, err := a.Allocate(context.Background(), func(string) bool { return true })
    if !errors.Is(err, ErrExhausted) { t.Fatalf("expected ErrExhausted, got %v", err) }
    if calls != maxAttempts { t.Fatalf("calls = %d", calls) }
}

func TestRedisReserveRelease(t *testing.T) {
    r, mr := newTestReserver(t)
    ctx := context.Background()

    ok, err := r.Reserve(ctx, "K7Q2ZX")
    if err != nil || !ok { t.Fatalf("first Reserve: ok=%v err=%v", ok, err) }
    ok, err = r.Reserve(ctx, "K7Q2ZX")
    if err != nil || ok { t.Fatalf("second Reserve should fail: ok=%v err=%v", ok, err) }
    if ttl := mr.TTL(keyCode("K7Q2ZX")); ttl != ttlCode { t.Fatalf("ttl = %v", ttl) }

    if err := r.Release(ctx, "K7Q2ZX"); err != nil { t.Fatalf("Release: %v", err) }
    ok, _ = r.Reserve(ctx, "K7Q2ZX")
    if !ok { t.Fatalf("code not reusable after release") }
}

func TestRedisReservationExpires(t *testing.T) {
    r, mr := newTestReserver(t)
    ctx := context.Background()
    if ok, _ := r.Reserve(ctx, "EXP1RE"); !ok { t.Fatalf("reserve") }
    mr.FastForward(ttlCode + time.Second)
    if ok, _ := r.Reserve(ctx, "EXP1RE"); !ok { t.Fatalf("expired code still reserved") }
}

func TestParseRedisURL(t *testing.T) {
    o, err := ParseRedisURL("redis://:secret@localhost:6380/2")
    if err != nil { t.Fatalf("ParseRedisURL: %v", err) }
    if o.Addr != "localhost:6380" || o.Password != "secret" || o.DB != 2 {
        t.Fatalf("unexpected options: %+v", o)
    }
    if _, err := ParseRedisURL("http://x"); err == nil { t.Fatalf("expected scheme error") }
    if _, err := ParseRedisURL("redis://x/abc"); err == nil { t.Fatalf("expected db error") }
}

func TestDialPings(t *testing.T) {
    _, mr := newTestReserver(t)
    rdb, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
    if err != nil { t.Fatalf("Dial: %v", err) }
    _ = rdb.Close()
}
