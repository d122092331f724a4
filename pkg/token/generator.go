// Package token derives and opens Sidus device authentication tokens.
package token

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/yndnr/sidus-go/pkg/crypto/adaptive"
)

const (
	// KeySize is the required secret key length (AES-256).
	KeySize = 32

	// NonceSize is the GCM nonce length at the start of a token.
	NonceSize = 12

	// TagSize is the GCM authentication tag length following the nonce.
	TagSize = 16

	// BoundaryMargin is how far past a second boundary a rate-limited
	// derivation waits before claiming the new second.
	BoundaryMargin = 20 * time.Millisecond
)

var (
	// ErrInvalidKey is returned when the secret key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("token: secret key must be 32 bytes")

	// ErrMalformed is returned when a token cannot be decoded or split.
	ErrMalformed = errors.New("token: malformed token")

	// ErrAuthentication is returned when a token fails GCM authentication.
	ErrAuthentication = errors.New("token: authentication failed")
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Generator derives tokens bound to the current Unix second.
//
// A Generator never issues two tokens for the same second: a derivation
// that lands in an already-claimed second waits until BoundaryMargin past
// the next boundary. Share one Generator per device key holder.
type Generator struct {
	mu         sync.Mutex
	lastSecond int64
	now        func() time.Time
	sleep      Sleeper
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithSleeper sets the function used to wait out a claimed second.
func WithSleeper(s Sleeper) Option {
	return func(g *Generator) {
		g.sleep = s
	}
}

// NewGenerator creates a Generator using the wall clock.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		lastSecond: -1,
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Derive returns base64(nonce || tag || AES-256-GCM(decimal second)).
//
// It may block up to roughly one second to honour the one-token-per-second
// rule. An invalid key fails before any second is claimed.
func (g *Generator) Derive(ctx context.Context, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKey
	}

	c, err := adaptive.NewAESGCM(key)
	if err != nil {
		return "", err
	}

	second, err := g.claimSecond(ctx)
	if err != nil {
		return "", err
	}

	nonce, tag, ciphertext, err := c.SealDetached([]byte(strconv.FormatInt(second, 10)), nil)
	if err != nil {
		return "", err
	}

	raw := make([]byte, 0, len(nonce)+len(tag)+len(ciphertext))
	raw = append(raw, nonce...)
	raw = append(raw, tag...)
	raw = append(raw, ciphertext...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeriveString decodes a base64 secret key and derives a token with it.
func (g *Generator) DeriveString(ctx context.Context, encodedKey string) (string, error) {
	key, err := DecodeKey(encodedKey)
	if err != nil {
		return "", err
	}
	return g.Derive(ctx, key)
}

// LastSecond returns the most recently claimed second, or -1 if none.
func (g *Generator) LastSecond() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSecond
}

// claimSecond holds the lock across check, wait and record so concurrent
// derivations are serialized one second apart.
func (g *Generator) claimSecond(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	second := now.Unix()
	for second <= g.lastSecond {
		wake := time.Unix(g.lastSecond+1, 0).Add(BoundaryMargin)
		if err := g.sleep(ctx, wake.Sub(now)); err != nil {
			return 0, err
		}
		now = g.now()
		second = now.Unix()
	}

	g.lastSecond = second
	return second, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
