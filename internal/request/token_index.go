package request

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	id "pilotdesk/pkg/domain"
	"pilotdesk/pkg/platform/sentinel"
	"pilotdesk/pkg/requestcontext"
)

// TokenIndex resolves an agreement token to the request that issued it. The
// signing endpoint is public and unauthenticated, so the lookup must be a
// single round trip rather than a scan over all requests.
type TokenIndex interface {
	Put(ctx context.Context, token string, requestID id.RequestID, ttl time.Duration) error
	// Lookup returns sentinel.ErrNotFound for unknown or expired tokens.
	Lookup(ctx context.Context, token string) (id.RequestID, error)
}

// InMemoryTokenIndex is the single-node token index. Expiry is evaluated
// lazily at lookup time.
type InMemoryTokenIndex struct {
	mu     sync.RWMutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	requestID id.RequestID
	expiresAt time.Time
}

func NewInMemoryTokenIndex() *InMemoryTokenIndex {
	return &InMemoryTokenIndex{tokens: make(map[string]tokenEntry)}
}

func (s *InMemoryTokenIndex) Put(ctx context.Context, token string, requestID id.RequestID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = tokenEntry{requestID: requestID, expiresAt: requestcontext.Now(ctx).Add(ttl)}
	return nil
}

func (s *InMemoryTokenIndex) Lookup(ctx context.Context, token string) (id.RequestID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tokens[token]
	if !ok || requestcontext.Now(ctx).After(entry.expiresAt) {
		return id.RequestID{}, sentinel.ErrNotFound
	}
	return entry.requestID, nil
}

// RedisTokenIndex shares the token index across instances. Keys carry the
// link TTL so Redis expires them without a sweeper.
type RedisTokenIndex struct {
	client *goredis.Client
}

func NewRedisTokenIndex(client *goredis.Client) *RedisTokenIndex {
	return &RedisTokenIndex{client: client}
}

func tokenKey(token string) string {
	return "agreement:" + token
}

func (s *RedisTokenIndex) Put(ctx context.Context, token string, requestID id.RequestID, ttl time.Duration) error {
	return s.client.Set(ctx, tokenKey(token), requestID.String(), ttl).Err()
}

func (s *RedisTokenIndex) Lookup(ctx context.Context, token string) (id.RequestID, error) {
	raw, err := s.client.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		if err == goredis.Nil {
			return id.RequestID{}, sentinel.ErrNotFound
		}
		return id.RequestID{}, err
	}
	return id.ParseRequestID(raw)
}
