package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bellafleur/benly/config"
	"github.com/bellafleur/benly/internal/domain"
	"github.com/redis/go-redis/v9"
)

const lastSeenIndex = "sessions:last_seen"

// RedisStore persists sessions as JSON values plus a sorted-set index on
// last_seen used by the sweeper.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
	}
}

func sessionKey(sid string) string {
	return "session:" + sid
}

func (r *RedisStore) Get(ctx context.Context, sid string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *domain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.SID), payload, 0)
	pipe.ZAdd(ctx, lastSeenIndex, redis.Z{Score: float64(s.LastSeen), Member: s.SID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, sid string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sid))
	pipe.ZRem(ctx, lastSeenIndex, sid)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) List(ctx context.Context) ([]*domain.Session, error) {
	sids, err := r.client.ZRange(ctx, lastSeenIndex, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(sids))
	for _, sid := range sids {
		s, err := r.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *RedisStore) Stale(ctx context.Context, cutoff int64) ([]string, error) {
	return r.client.ZRangeByScore(ctx, lastSeenIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff),
	}).Result()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ SessionStore = (*RedisStore)(nil)
