// Package cache wraps Redis behind a small service with graceful
// degradation: when Redis is down callers get errors and fall back to
// their in-memory paths.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds the Redis connection settings
type Config struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// Service is the shared Redis handle. A simple failure counter marks the
// connection unhealthy after repeated errors; a background ping recovers it.
type Service struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = fmt.Errorf("redis unavailable (circuit breaker open)")

// NewService connects to Redis. A failed initial ping returns the service
// in degraded mode rather than an error.
func NewService(cfg Config, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("cache: redis not enabled in configuration")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		cfg:           cfg,
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Str("addr", cfg.Address).Msg("initial redis connection failed, starting degraded")
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info().Str("addr", cfg.Address).Msg("redis connected")
	return s, nil
}

// Healthy reports whether Redis is currently usable
func (s *Service) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.logger.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info().Msg("redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth kicks off a background ping when the breaker has been open
// long enough
func (s *Service) checkHealth() {
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		}
	}()
}

// Get retrieves a value; redis.Nil passes through as a cache miss
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	s.checkHealth()
	if !s.Healthy() {
		return "", ErrUnavailable
	}
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", err
		}
		s.recordFailure()
		return "", fmt.Errorf("cache: get %s: %w", key, err)
	}
	s.recordSuccess()
	return val, nil
}

// Set stores a value with TTL
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.checkHealth()
	if !s.Healthy() {
		return ErrUnavailable
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("cache: marshal %s: %w", key, err)
		}
		data = string(raw)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a cached value
func (s *Service) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *Service) Delete(ctx context.Context, key string) error {
	s.checkHealth()
	if !s.Healthy() {
		return ErrUnavailable
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	s.recordSuccess()
	return nil
}

// Ping checks connectivity and updates breaker state
func (s *Service) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.recordFailure()
		return err
	}
	s.recordSuccess()
	return nil
}

// Client exposes the underlying connection for components that need raw
// Redis commands, like the risk accumulators
func (s *Service) Client() *redis.Client {
	return s.client
}

// Close closes the connection pool
func (s *Service) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
