//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service is started once per test binary and shared by every
// suite in the package; suites isolate themselves by truncating or flushing.
package containers

import (
	"sync"
	"testing"
)

// shared starts a container on first use. A failed start is retried by the
// next caller rather than cached.
type shared[T any] struct {
	mu sync.Mutex
	v  *T
}

func (s *shared[T]) get(t *testing.T, start func(*testing.T) *T) *T {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v == nil {
		s.v = start(t)
	}
	return s.v
}

// Manager hands out the package-wide containers.
type Manager struct {
	postgres shared[PostgresContainer]
	kafka    shared[KafkaContainer]
	redis    shared[RedisContainer]
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns a migrated Postgres database.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	return m.redis.get(t, NewRedisContainer)
}
