package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CaDiBob/simple-telegram-store/core/logger"

	"github.com/redis/go-redis/v9"
	"log/slog"
)

const defaultTTL = 24 * time.Hour

// RedisStore persists sessions in Redis as JSON documents with a sliding
// inactivity TTL, so sessions survive restarts and expire on their own.
// Write serialization is enforced with the same in-process striped locks as
// the memory store; running multiple bot instances against one token is not
// supported by Telegram long polling anyway.
type RedisStore struct {
	locks  stripes
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures the Redis session backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix defaults to "shop:session:".
	KeyPrefix string
	// TTL is the inactivity window after which a session is evicted;
	// defaults to 24h.
	TTL time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "shop:session:"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, userID)
}

func (r *RedisStore) load(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: redis get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt document is unrecoverable; start the user over.
		logger.Warn(ctx, "session", "session.corrupt",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return New(), nil
	}
	if sess.State == "" {
		sess.State = StateIdle
	}
	return sess, nil
}

func (r *RedisStore) Update(ctx context.Context, userID int64, fn func(*Session) error) error {
	lock := r.locks.lock(userID)
	defer lock.Unlock()

	sess, err := r.load(ctx, userID)
	if err != nil {
		return err
	}
	sess.EnsureCart()

	fnErr := fn(&sess)

	raw, err := json.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return fnErr
}

func (r *RedisStore) Peek(ctx context.Context, userID int64) (Session, bool) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false
	}
	return sess, true
}

func (r *RedisStore) Reset(ctx context.Context, userID int64) error {
	lock := r.locks.lock(userID)
	defer lock.Unlock()

	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
