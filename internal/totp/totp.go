// Package totp derives time-based one-time passwords (RFC 6238) from a
// base32 seed. Codes are a pure function of seed, parameters and time, so the
// output interoperates with standard authenticator apps.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/passlock/passlock/internal/errs"
)

// Algorithm selects the HMAC hash for code derivation.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// Params configures code derivation. The zero value is not valid; use
// DefaultParams for the common 6-digit/30s/SHA1 profile.
type Params struct {
	Digits    int
	Period    time.Duration
	Algorithm Algorithm
}

// DefaultParams matches what the big authenticator apps issue by default.
func DefaultParams() Params {
	return Params{Digits: 6, Period: 30 * time.Second, Algorithm: SHA1}
}

func (p Params) validate() error {
	if p.Digits != 6 && p.Digits != 8 {
		return fmt.Errorf("digits must be 6 or 8: %w", errs.ErrValidation)
	}
	if p.Period < time.Second {
		return fmt.Errorf("period too short: %w", errs.ErrValidation)
	}
	switch p.Algorithm {
	case SHA1, SHA256, SHA512:
	default:
		return fmt.Errorf("unknown algorithm %q: %w", p.Algorithm, errs.ErrValidation)
	}
	return nil
}

func (p Params) newHash() func() hash.Hash {
	switch p.Algorithm {
	case SHA256:
		return sha256.New
	case SHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

// DecodeSecret decodes a base32 TOTP seed. Whitespace and padding are
// tolerated, case is ignored.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	s = strings.TrimRight(s, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad totp secret: %w", errs.ErrValidation)
	}
	return key, nil
}

// Code computes the one-time code for the window containing at. Two calls
// within the same window return the same code.
func Code(secret string, p Params, at time.Time) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}

	counter := uint64(at.Unix()) / uint64(p.Period/time.Second)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(p.newHash(), key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// dynamic truncation (RFC 4226 §5.3)
	off := sum[len(sum)-1] & 0x0F
	code := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7FFFFFFF

	mod := uint32(1)
	for i := 0; i < p.Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", p.Digits, code%mod), nil
}

// Remaining reports how long the code for the window containing at stays
// valid. Used for the countdown next to a displayed code.
func Remaining(p Params, at time.Time) time.Duration {
	period := int64(p.Period / time.Second)
	if period <= 0 {
		period = 30
	}
	return time.Duration(period-at.Unix()%period) * time.Second
}
