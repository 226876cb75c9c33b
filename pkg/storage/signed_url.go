package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for malformed, tampered or expired download tokens.
var ErrInvalidToken = errors.New("invalid download token")

// SignedURLSigner creates and validates signed download tokens for stored uploads.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

// Generate returns a token granting subject access to relPath until it expires.
func (s *SignedURLSigner) Generate(subject, relPath string) (string, time.Time, error) {
	if subject == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("subject and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{subject, ts, encodedPath, s.sign(subject, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the subject and stored path it grants.
func (s *SignedURLSigner) Parse(token string) (subject, relPath string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrInvalidToken
	}
	subject, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(subject, ts, encodedPath)), []byte(signature)) {
		return "", "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || time.Now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	return subject, string(rawPath), nil
}

func (s *SignedURLSigner) sign(subject, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
