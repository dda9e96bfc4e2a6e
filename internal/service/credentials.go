// Package service holds the trust-establishment and abuse-detection logic
// sitting between the HTTP edge and the storage layer.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/storage"
)

const (
	// DefaultAPIKeyTTL is the lifetime of an issued API key.
	DefaultAPIKeyTTL = 1 * time.Hour

	// DefaultSessionTokenTTL is the lifetime of a signed session token.
	DefaultSessionTokenTTL = 1 * time.Hour

	sessionTokenKind = "session"
)

var (
	// ErrInvalidCredentials covers unknown, malformed and expired bearer
	// credentials uniformly, so the edge never leaks which case it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// SessionClaims is the claim set embedded in a signed session token.
type SessionClaims struct {
	Domain    string `json:"domain"`
	Timestamp int64  `json:"ts"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// CredentialIssuer mints and validates the two credential variants: stateless
// API keys persisted in the store and signed session tokens paired with an
// in-memory session record.
type CredentialIssuer struct {
	store      *storage.Store
	secret     []byte
	keyTTL     time.Duration
	sessionTTL time.Duration
}

// NewCredentialIssuer builds an issuer signing session tokens with secret.
func NewCredentialIssuer(store *storage.Store, secret string) *CredentialIssuer {
	return &CredentialIssuer{
		store:      store,
		secret:     []byte(secret),
		keyTTL:     DefaultAPIKeyTTL,
		sessionTTL: DefaultSessionTokenTTL,
	}
}

// WithTTLs overrides the credential lifetimes. Non-positive values keep the
// defaults.
func (c *CredentialIssuer) WithTTLs(keyTTL, sessionTTL time.Duration) *CredentialIssuer {
	if keyTTL > 0 {
		c.keyTTL = keyTTL
	}
	if sessionTTL > 0 {
		c.sessionTTL = sessionTTL
	}
	return c
}

// IssueAPIKey generates a 64-hex-character key for the address, replacing any
// prior keys for that address in one atomic transaction. The raw key is
// returned exactly once.
func (c *CredentialIssuer) IssueAPIKey(ctx context.Context, address string) (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate api key: %w", err)
	}
	rawKey := hex.EncodeToString(buf)

	now := time.Now().UTC()
	key := &model.APIKey{
		KeyHash:   storage.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:8],
		Address:   address,
		CreatedAt: now,
		ExpiresAt: now.Add(c.keyTTL),
	}
	if err := c.store.ReplaceAPIKey(ctx, key); err != nil {
		return "", time.Time{}, err
	}
	return rawKey, key.ExpiresAt, nil
}

// ValidateAPIKey resolves a raw key to its owner. Expired keys are deleted
// opportunistically. Reads do not extend expiry. Returns (nil, nil) for any
// invalid key.
func (c *CredentialIssuer) ValidateAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error) {
	hash := storage.HashAPIKey(rawKey)

	key, err := c.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	if key.IsExpired(time.Now()) {
		_ = c.store.DeleteAPIKeyByHash(ctx, hash)
		return nil, nil
	}
	return key, nil
}

// IssueSessionToken signs a session token embedding the claim set. It does
// not check session uniqueness; callers must consult the session store first.
func (c *CredentialIssuer) IssueSessionToken(address, domain string, timestamp int64) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.sessionTTL)
	claims := SessionClaims{
		Domain:    domain,
		Timestamp: timestamp,
		Kind:      sessionTokenKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "tonbeats",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSessionToken verifies a session token and returns its claims.
func (c *CredentialIssuer) ParseSessionToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if claims.Kind != sessionTokenKind {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
