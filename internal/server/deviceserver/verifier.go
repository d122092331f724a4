package deviceserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/sidus-go/pkg/token"
)

// Token rejection reasons, used as metric labels.
const (
	RejectInvalid = "invalid"
	RejectSkew    = "skew"
	RejectReplay  = "replay"
)

var (
	// ErrTokenSkew is returned for a token whose second is too far from now.
	ErrTokenSkew = errors.New("token outside the accepted time window")

	// ErrTokenReplay is returned for a second that was already used.
	ErrTokenReplay = errors.New("token second already used")
)

// Verifier accepts each authentic, fresh token second once.
type Verifier struct {
	key     []byte
	maxSkew time.Duration
	seen    *ReplayCache
	now     func() time.Time
}

// NewVerifier creates a Verifier for key.
func NewVerifier(key []byte, maxSkew time.Duration) *Verifier {
	// A second can only be presented while it is within the skew window,
	// so remembering it a little longer than the window is enough.
	ttl := 2*maxSkew + 2*time.Second
	return &Verifier{
		key:     key,
		maxSkew: maxSkew,
		seen:    NewReplayCache(int(ttl/time.Second)+16, ttl),
		now:     time.Now,
	}
}

// Verify checks tok and returns its second.
func (v *Verifier) Verify(tok string) (int64, error) {
	second, err := token.Open(v.key, tok)
	if err != nil {
		return 0, err
	}

	skew := v.now().Unix() - second
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.maxSkew {
		return 0, fmt.Errorf("%w: %ds", ErrTokenSkew, skew)
	}

	if !v.seen.AddIfAbsent(second) {
		return 0, fmt.Errorf("%w: %d", ErrTokenReplay, second)
	}
	return second, nil
}

// rejectReason maps a Verify error to its metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenSkew):
		return RejectSkew
	case errors.Is(err, ErrTokenReplay):
		return RejectReplay
	default:
		return RejectInvalid
	}
}
