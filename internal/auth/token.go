// Package auth validates the bearer credential presented at connection
// time. It is a leaf: beyond the subject lookup it has no side effects,
// and it must succeed before any other component touches the connection.
package auth

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

	"github.com/avelar/chatd/internal/store"
)

var (
	ErrMissingToken   = errors.New("auth: missing token")
	ErrMalformedToken = errors.New("auth: malformed token")
	ErrBadSignature   = errors.New("auth: invalid signature")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrUnknownSubject = errors.New("auth: unknown subject")
)

// Authenticator verifies HMAC-signed bearer tokens against a shared secret
// and resolves the subject through the persistence collaborator.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	db     *store.DB
}

// New creates an authenticator. The secret is shared with the token-issuing
// auth service, which lives outside this core.
func New(secret string, ttl time.Duration, db *store.DB) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, db: db}
}

// Mint issues a token for userID expiring after the configured TTL.
// Format: base64url(userID).expiryUnix.hexHMAC
func (a *Authenticator) Mint(userID string, now time.Time) string {
	payload := fmt.Sprintf("%s.%d",
		base64.RawURLEncoding.EncodeToString([]byte(userID)),
		now.Add(a.ttl).Unix())
	return payload + "." + a.sign(payload)
}

// Verify checks a bearer token and returns the resolved user.
func (a *Authenticator) Verify(token string) (*store.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	payload := parts[0] + "." + parts[1]
	expected := a.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, ErrBadSignature
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrMalformedToken
	}
	if time.Now().Unix() > expiry {
		return nil, ErrTokenExpired
	}

	rawID, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedToken
	}

	user, err := a.db.GetUser(string(rawID))
	if err != nil {
		return nil, fmt.Errorf("auth: lookup subject: %w", err)
	}
	if user == nil {
		return nil, ErrUnknownSubject
	}
	return user, nil
}

func (a *Authenticator) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
