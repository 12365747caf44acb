package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCodeTTL outlives any authorization code a provider will accept.
const DefaultCodeTTL = 10 * time.Minute

// CodeLedger remembers authorization codes that have been handed to the
// token endpoint. Claim returns true exactly once per code within the TTL.
type CodeLedger interface {
	Claim(ctx context.Context, code string) (bool, error)
}

// digest keeps raw codes and tokens out of storage and map keys.
func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// InMemoryCodeLedger is a single-instance CodeLedger
type InMemoryCodeLedger struct {
	claimed map[string]time.Time
	ttl     time.Duration
	mu      sync.Mutex
	now     func() time.Time
}

func NewInMemoryCodeLedger(ttl time.Duration) *InMemoryCodeLedger {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &InMemoryCodeLedger{
		claimed: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *InMemoryCodeLedger) Claim(_ context.Context, code string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := digest(code)
	now := l.now()
	if exp, exists := l.claimed[key]; exists && now.Before(exp) {
		return false, nil
	}
	l.claimed[key] = now.Add(l.ttl)
	return true, nil
}

// Cleanup removes expired entries
func (l *InMemoryCodeLedger) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, exp := range l.claimed {
		if !now.Before(exp) {
			delete(l.claimed, key)
		}
	}
}

const codeKeyPrefix = "authsession:code:"

// RedisCodeLedger shares claimed codes between instances behind a load balancer.
type RedisCodeLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCodeLedger(client *redis.Client, ttl time.Duration) *RedisCodeLedger {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &RedisCodeLedger{client: client, ttl: ttl}
}

// Claim uses SET NX so only the first instance to see a code wins.
func (l *RedisCodeLedger) Claim(ctx context.Context, code string) (bool, error) {
	return l.client.SetNX(ctx, codeKeyPrefix+digest(code), "1", l.ttl).Result()
}
