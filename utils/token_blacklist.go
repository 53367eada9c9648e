package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Logout revokes a JWT before its natural expiration. Revocations live in
// Redis keyed by a token digest with a TTL matching the remaining token
// lifetime; without Redis an in-memory map provides single-node semantics.

const revokedKeyPrefix = "auth:revoked:"

var (
	revokedMu     sync.RWMutex
	revokedTokens = map[string]time.Time{}
)

// tokenDigest keys revocations by a hash so the raw JWT is never stored.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BlacklistToken revokes the token until expiresAt.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	digest := tokenDigest(token)

	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, revokedKeyPrefix+digest, "1", ttl).Err(); err == nil {
			return
		}
		// fall through to the in-memory map on a Redis failure
	}

	revokedMu.Lock()
	revokedTokens[digest] = expiresAt
	revokedMu.Unlock()
}

// IsTokenBlacklisted reports whether the token was revoked. A Redis error
// fails open rather than locking every member out.
func IsTokenBlacklisted(token string) bool {
	digest := tokenDigest(token)

	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, err := rc.Exists(ctx, revokedKeyPrefix+digest).Result(); err == nil {
			return n > 0
		}
	}

	revokedMu.RLock()
	expiresAt, ok := revokedTokens[digest]
	revokedMu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		revokedMu.Lock()
		delete(revokedTokens, digest)
		revokedMu.Unlock()
		return false
	}
	return true
}
