package erp

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "erp:service_layer:session"

// defaultSessionTTL is used when the login answer does not report a
// timeout. Service Layer sessions default to 30 minutes; staying under
// that avoids handing out a session that expires mid-request.
const defaultSessionTTL = 25 * time.Minute

// SessionCache shares one Service Layer session across requests and
// worker processes through Redis.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache constructs the cache.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Get returns the cached session id, if any.
func (s *SessionCache) Get(ctx context.Context) (string, bool) {
	if s == nil || s.client == nil {
		return "", false
	}
	session, err := s.client.Get(ctx, sessionKey).Result()
	if err != nil {
		return "", false
	}
	return session, session != ""
}

// Set stores a fresh session id with a margin below its server timeout.
func (s *SessionCache) Set(ctx context.Context, session string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return errors.New("erp: session cache not initialised")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	} else {
		ttl -= ttl / 6
	}
	return s.client.Set(ctx, sessionKey, session, ttl).Err()
}

// Invalidate drops the cached session after the ERP rejects it.
func (s *SessionCache) Invalidate(ctx context.Context) {
	if s == nil || s.client == nil {
		return
	}
	_ = s.client.Del(ctx, sessionKey).Err()
}
