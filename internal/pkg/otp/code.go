// internal/pkg/otp/code.go
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	xerrors "dashboard-service/internal/pkg/errors"
)

const (
	DefaultLength = 6
	MaxLength     = 12
)

var ten = big.NewInt(10)

// Hasher generates one-time numeric codes and their commitments. The server
// secret is fixed at construction and never leaves the process.
type Hasher struct {
	secret []byte
	random io.Reader
}

func NewHasher(secret []byte) (*Hasher, error) {
	if len(secret) < 16 {
		return nil, xerrors.New(xerrors.KindInvalidInput, "otp.NewHasher", "server secret must be at least 16 bytes")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Hasher{secret: s, random: rand.Reader}, nil
}

// WithRandom returns a copy of the hasher drawing digits from r.
func (h *Hasher) WithRandom(r io.Reader) *Hasher {
	cp := *h
	cp.random = r
	return &cp
}

// GenerateCode returns length decimal digits, each drawn independently and
// uniformly from crypto/rand.
func (h *Hasher) GenerateCode(length int) (string, error) {
	return generateCode(h.random, length)
}

// GenerateCode draws a code from crypto/rand.
func GenerateCode(length int) (string, error) {
	return generateCode(rand.Reader, length)
}

func generateCode(r io.Reader, length int) (string, error) {
	if length <= 0 || length > MaxLength {
		return "", xerrors.New(xerrors.KindInvalidInput, "otp.GenerateCode", fmt.Sprintf("code length must be between 1 and %d", MaxLength))
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		// rand.Int rejects out-of-range samples, so each digit is unbiased
		n, err := rand.Int(r, ten)
		if err != nil {
			return "", xerrors.E(xerrors.KindInternal, "otp.GenerateCode", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Commit derives the stored commitment for a code. The email is normalized so
// "A@x.com" and "a@x.com " commit identically.
func (h *Hasher) Commit(code, email string) string {
	return Commit(code, email, h.secret)
}

// Verify recomputes the commitment and compares it in constant time.
func (h *Hasher) Verify(code, email, stored string) bool {
	return Verify(code, email, h.secret, stored)
}

// Commit is HMAC-SHA256 keyed by the server secret over the length-prefixed
// email and code, hex encoded.
func Commit(code, email string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	writeField(mac, NormalizeEmail(email))
	writeField(mac, strings.TrimSpace(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(code, email string, secret []byte, stored string) bool {
	want, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(Commit(code, email, secret))
	return hmac.Equal(got, want)
}

// writeField prefixes the value with its length so that the pair
// ("ab", "c") never collides with ("a", "bc").
func writeField(w io.Writer, v string) {
	fmt.Fprintf(w, "%d:", len(v))
	io.WriteString(w, v)
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsNumeric reports whether s is a non-empty string of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
