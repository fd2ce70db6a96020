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

var (
	ErrInvalidToken = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// SignedURLSigner creates and validates HMAC-signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token binding fileID to relPath until the TTL elapses.
func (s *SignedURLSigner) Generate(fileID, relPath string) (string, time.Time, error) {
	if fileID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("file id and path required")
	}
	if strings.Contains(fileID, ".") {
		return "", time.Time{}, fmt.Errorf("file id must not contain dots")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{fileID, exp, encodedPath, s.sign(fileID, exp, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse validates token and returns the file id and path it grants access to.
func (s *SignedURLSigner) Parse(token string) (fileID, relPath string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrInvalidToken
	}
	fileID, exp, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(fileID, exp, encodedPath)), []byte(signature)) {
		return "", "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrTokenExpired
	}
	return fileID, string(rawPath), nil
}

func (s *SignedURLSigner) sign(fileID, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(fileID + "|" + exp + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
