package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordTTL = 7 * 24 * time.Hour

// Redis stores each game record as one JSON value. Mutations run inside
// an optimistic WATCH transaction so concurrent appends to the same game
// cannot lose moves.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string { return "thud:game:" + strings.TrimSpace(id) }

func (s *Redis) Save(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return ErrNotFound
	}
	cp := rec.Clone()
	cp.UpdatedAt = time.Now()
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, gameKey(cp.GameID), raw, recordTTL).Err()
}

func (s *Redis) FindOne(ctx context.Context, gameID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Redis) AppendMove(ctx context.Context, gameID, move string) error {
	return s.update(ctx, gameID, func(rec *Record) {
		rec.Moves = append(rec.Moves, move)
	})
}

func (s *Redis) MarkComplete(ctx context.Context, gameID string) error {
	return s.update(ctx, gameID, func(rec *Record) {
		rec.Complete = true
	})
}

func (s *Redis) update(ctx context.Context, gameID string, mutate func(*Record)) error {
	key := gameKey(gameID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		mutate(&rec)
		rec.UpdatedAt = time.Now()
		newRaw, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, recordTTL)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
