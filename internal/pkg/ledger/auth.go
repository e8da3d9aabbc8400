package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// TokenCache exchanges credentials for a bearer token once and serves
// it from memory until expiry. Concurrent refreshes coalesce into one
// outstanding exchange through singleflight.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	ttl   time.Duration
	fetch func(ctx context.Context) (string, error)
	group singleflight.Group
}

func NewTokenCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *TokenCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenCache{ttl: ttl, fetch: fetch}
}

// Token returns the cached bearer token, refreshing it transparently
// when missing or expired.
func (t *TokenCache) Token(ctx context.Context) (string, error) {
	t.mu.RLock()
	token, expiresAt := t.token, t.expiresAt
	t.mu.RUnlock()

	if token != "" && time.Now().Before(expiresAt) {
		return token, nil
	}
	return t.refresh(ctx)
}

func (t *TokenCache) refresh(ctx context.Context) (string, error) {
	result, err, _ := t.group.Do("token", func() (interface{}, error) {
		token, err := t.fetch(ctx)
		if err != nil {
			return "", err
		}

		expiresAt := time.Now().Add(t.ttl)
		if claimExp := jwtExpiry(token); !claimExp.IsZero() && claimExp.Before(expiresAt) {
			expiresAt = claimExp
		}

		t.mu.Lock()
		t.token = token
		t.expiresAt = expiresAt
		t.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token, forcing the next call to
// re-authenticate. Used on 401 responses and by the admin reset.
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

// Valid reports whether a non-expired token is cached.
func (t *TokenCache) Valid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != "" && time.Now().Before(t.expiresAt)
}

func (t *TokenCache) ExpiresAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiresAt
}

// jwtExpiry extracts the exp claim when the token is a JWT. The token
// is not validated here; the ledger does that on every call.
func jwtExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
