package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("session secret is not configured")
)

const sigLen = 16

// TokenSigner encapsulates HMAC issuance/validation so handlers stay small.
// A token is base64(expiry || subject) "." base64(truncated HMAC).
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer that issues compact HMAC tokens.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL is how long issued tokens stay valid.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// Issue mints a token for subject, typically a user id.
func (s *TokenSigner) Issue(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, 8, 8+len(subject))
	binary.BigEndian.PutUint64(payload, uint64(s.now().Add(s.ttl).Unix()))
	payload = append(payload, subject...)

	payloadEnc := base64.RawURLEncoding.EncodeToString(payload)
	sigEnc := base64.RawURLEncoding.EncodeToString(s.sign(payload)[:sigLen])
	return fmt.Sprintf("%s.%s", payloadEnc, sigEnc), nil
}

// Validate checks signature integrity and TTL and returns the subject.
func (s *TokenSigner) Validate(token string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(payload) <= 8 {
		return "", ErrInvalidToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(sigProvided) != sigLen {
		return "", ErrInvalidToken
	}

	if !hmac.Equal(sigProvided, s.sign(payload)[:sigLen]) {
		return "", ErrInvalidToken
	}

	expires := int64(binary.BigEndian.Uint64(payload[:8]))
	if s.now().Unix() > expires {
		return "", ErrInvalidToken
	}

	return string(payload[8:]), nil
}

func (s *TokenSigner) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("session|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
