package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geowidget/tilefetch/pkg/logger"
)

// RedisStore keeps tiles in a shared redis instance. Like the sqlite
// backend it connects lazily on first use; an unreachable server marks
// the store broken and it degrades to always-miss lookups and dropped
// inserts instead of failing the pipeline.
type RedisStore struct {
	mu     sync.Mutex
	cfg    RedisConfig
	client *redis.Client
	broken bool
	logger logger.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisStore(cfg RedisConfig, l logger.Logger) *RedisStore {
	return &RedisStore{
		cfg:    cfg,
		logger: l,
	}
}

var _ Store = (*RedisStore)(nil)

// open establishes the connection on first use. Safe to call
// redundantly; after a failed attempt the store stays broken without
// retrying. Returns the client to use, or nil when degraded.
func (s *RedisStore) open() *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client
	}
	if s.broken {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.broken = true
		client.Close()
		s.logger.Error("redis tile store unreachable, caching disabled", "addr", s.cfg.Addr, "error", err)
		return nil
	}

	s.client = client
	s.logger.Info("redis tile store connected", "addr", s.cfg.Addr)
	return client
}

func (s *RedisStore) keyFor(k Key) string {
	return fmt.Sprintf("tile:%d:%d:%d", k.Zoom, k.X, k.Y)
}

func (s *RedisStore) Get(k Key) ([]byte, bool, error) {
	client := s.open()
	if client == nil {
		return nil, false, nil
	}

	data, err := client.Get(context.Background(), s.keyFor(k)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	return data, true, nil
}

func (s *RedisStore) Put(k Key, data []byte) error {
	client := s.open()
	if client == nil {
		return nil
	}

	// SetNX keeps entries write-once.
	if err := client.SetNX(context.Background(), s.keyFor(k), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis setnx error: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.broken = true
	return err
}
