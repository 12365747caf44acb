package sessionrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "authsession:session:"

// RedisRepo shares session records between instances. Keys expire with the
// last token in the record.
type RedisRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRepo wraps an existing client; its lifecycle stays with the caller.
func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *RedisRepo) ttl(rec Record) time.Duration {
	exp := rec.ExpiresAt()
	if exp.IsZero() {
		return 0
	}
	return exp.Sub(r.now())
}

func decodeRecord(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session: %w", err)
	}
	return rec, nil
}

func (r *RedisRepo) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("sessionID is required")
	}
	raw, err := r.client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, autherrors.ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, err
	}
	if rec.Expired(r.now()) {
		return Record{}, autherrors.ErrSessionNotFound
	}
	return rec, nil
}

// CompareAndSwap uses WATCH/MULTI: a concurrent writer touching the key
// between the read and EXEC aborts the transaction.
func (r *RedisRepo) CompareAndSwap(ctx context.Context, id string, expected uint64, next *Record) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}
	key := sessionKey(id)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var gen uint64
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			current, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if !current.Expired(r.now()) {
				gen = current.Generation
			}
		}
		if gen != expected {
			return autherrors.ErrStaleSession
		}

		var (
			payload []byte
			ttl     time.Duration
		)
		if next != nil {
			stored := *next
			stored.Generation = expected + 1
			ttl = r.ttl(stored)
			if payload, err = json.Marshal(stored); err != nil {
				return fmt.Errorf("encoding session: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil || ttl < 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return autherrors.ErrStaleSession
	}
	return err
}

func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("sessionID is required")
	}
	return r.client.Del(ctx, sessionKey(id)).Err()
}
