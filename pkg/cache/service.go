package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error

	// Cache-aside helper: on a miss, fetcher fills dest and the result is stored
	GetOrSet(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetcher func() (interface{}, error)) error

	// TryLock sets key only if absent. Unlock releases it when token still matches.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error

	Ping(ctx context.Context) error
}

// releaseScript deletes the lock only when it still belongs to the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type service struct {
	client *redis.Client
}

func NewService(client *redis.Client) Service {
	return &service{client: client}
}

func (s *service) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (s *service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (s *service) DeletePattern(ctx context.Context, pattern string) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan error: %w", err)
	}

	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete pattern error: %w", err)
		}
	}
	return nil
}

func (s *service) GetOrSet(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetcher func() (interface{}, error)) error {
	return getOrSet(ctx, s, key, ttl, dest, fetcher)
}

func (s *service) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache lock error: %w", err)
	}
	return ok, nil
}

func (s *service) Unlock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache unlock error: %w", err)
	}
	return nil
}

func (s *service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// getOrSet is shared by both implementations. A failed cache read falls
// through to the fetcher and a failed write is ignored.
func getOrSet(ctx context.Context, s Service, key string, ttl time.Duration, dest interface{}, fetcher func() (interface{}, error)) error {
	if err := s.Get(ctx, key, dest); err == nil {
		return nil
	}

	data, err := fetcher()
	if err != nil {
		return err
	}
	_ = s.Set(ctx, key, data, ttl)

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal fetched data error: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

// LocalService is an in-process Service for single-replica runs without Redis
// and for tests. Entries expire after the TTL given at construction.
type LocalService struct {
	mu    sync.Mutex
	items *expirable.LRU[string, []byte]
	locks map[string]localLock
	now   func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalService(size int, ttl time.Duration) *LocalService {
	return &LocalService{
		items: expirable.NewLRU[string, []byte](size, nil, ttl),
		locks: make(map[string]localLock),
		now:   time.Now,
	}
}

func (s *LocalService) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := s.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

// Set ignores ttl: the LRU applies its own expiry
func (s *LocalService) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	s.items.Add(key, raw)
	return nil
}

func (s *LocalService) Delete(_ context.Context, key string) error {
	s.items.Remove(key)
	return nil
}

func (s *LocalService) DeletePattern(_ context.Context, pattern string) error {
	for _, key := range s.items.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			s.items.Remove(key)
		}
	}
	return nil
}

func (s *LocalService) GetOrSet(ctx context.Context, key string, ttl time.Duration, dest interface{}, fetcher func() (interface{}, error)) error {
	return getOrSet(ctx, s, key, ttl, dest, fetcher)
}

func (s *LocalService) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, ok := s.locks[key]; ok && now.Before(l.expires) {
		return false, nil
	}
	s.locks[key] = localLock{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (s *LocalService) Unlock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok && l.token == token {
		delete(s.locks, key)
	}
	return nil
}

func (s *LocalService) Ping(context.Context) error { return nil }
