// Package roomcode hands out short shareable room codes.
package roomcode

import (
    "context"
    "crypto/rand"
    "errors"
    "io"
    "strings"
    "sync"
)

const (
    Alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
    Length      = 6
    maxAttempts = 5
)

var ErrExhausted = errors.New("failed to allocate room code")

// unbiased is the largest multiple of len(Alphabet) that fits in a byte.
const unbiased = 256 - 256%len(Alphabet)

// Generate returns Length random characters from Alphabet.
func Generate() (string, error) {
    return generate(rand.Reader)
}

// generate draws bytes from src and drops those at or above unbiased so every
// character is equally likely.
func generate(src io.Reader) (string, error) {
    out := make([]byte, 0, Length)
    buf := make([]byte, Length*2)
    for len(out) < Length {
        if _, err := io.ReadFull(src, buf); err != nil {
            return "", err
        }
        for _, v := range buf {
            if int(v) >= unbiased { continue }
            out = append(out, Alphabet[int(v)%len(Alphabet)])
            if len(out) == Length { break }
        }
    }
    return string(out), nil
}

// Valid reports whether s looks like a code this package could have produced.
func Valid(s string) bool {
    if len(s) != Length { return false }
    for i := 0; i < len(s); i++ {
        if strings.IndexByte(Alphabet, s[i]) < 0 { return false }
    }
    return true
}

// Reserver claims codes so they are not handed out twice.
type Reserver interface {
    Reserve(ctx context.Context, code string) (bool, error)
    Release(ctx context.Context, code string) error
}

type Allocator struct {
    gen func() (string, error)
    res Reserver
}

// NewAllocator uses an in-process reserver when res is nil.
func NewAllocator(res Reserver) *Allocator {
    if res == nil { res = NewMemoryReserver() }
    return &Allocator{gen: Generate, res: res}
}

// WithGenerator swaps the code source; tests use it to force collisions.
func (a *Allocator) WithGenerator(gen func() (string, error)) *Allocator {
    a.gen = gen
    return a
}

// Allocate draws codes until one is neither inUse nor already reserved.
func (a *Allocator) Allocate(ctx context.Context, inUse func(string) bool) (string, error) {
    for i := 0; i < maxAttempts; i++ {
        c, err := a.gen()
        if err != nil { return "", err }
        if inUse != nil && inUse(c) { continue }
        ok, err := a.res.Reserve(ctx, c)
        if err != nil { return "", err }
        if ok { return c, nil }
    }
    return "", ErrExhausted
}

func (a *Allocator) Release(ctx context.Context, code string) error {
    return a.res.Release(ctx, code)
}

type MemoryReserver struct {
    mu    sync.Mutex
    codes map[string]struct{}
}

func NewMemoryReserver() *MemoryReserver { return &MemoryReserver{codes: make(map[string]struct{})} }

func (m *MemoryReserver) Reserve(_ context.Context, code string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.codes[code]; ok { return false, nil }
    m.codes[code] = struct{}{}
    return true, nil
}

func (m *MemoryReserver) Release(_ context.Context, code string) error {
    m.mu.Lock()
    delete(m.codes, code)
    m.mu.Unlock()
    return nil
}
