// Пакет cache - кэш ответов админки.
// Первый уровень - in-memory LRU с TTL (hashicorp/golang-lru/v2/expirable),
// второй, необязательный, - Redis, общий для нескольких экземпляров.
// Значения хранятся в JSON. Ошибки Redis не прерывают запрос:
// кэш деградирует до локального уровня.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// keyPrefix - общий префикс ключей в Redis.
const keyPrefix = "dashboard:"

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ca_cache_hits_total",
		Help: "Количество попаданий в кэш.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ca_cache_misses_total",
		Help: "Количество промахов кэша.",
	}, []string{"cache"})
)

// Stats - статистика кэша.
type Stats struct {
	Name    string  `json:"name"`
	Backend string  `json:"backend"`
	Entries int     `json:"entries"`
	MaxSize int     `json:"maxSize"`
	TTL     string  `json:"ttl"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Health - состояние кэша.
type Health struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Cache - двухуровневый кэш с общим TTL.
type Cache struct {
	name    string
	maxSize int
	ttl     time.Duration
	local   *expirable.LRU[string, []byte]
	redis   *redis.Client
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New создаёт кэш. rdb может быть nil - тогда только локальный уровень.
func New(name string, maxSize int, ttl time.Duration, rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{
		name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		local:   expirable.NewLRU[string, []byte](maxSize, nil, ttl),
		redis:   rdb,
		logger:  logger.With(slog.String("component", "cache"), slog.String("cache", name)),
	}
}

// NewRedisClient создаёт клиент Redis. Пустой addr - nil.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func (c *Cache) redisKey(key string) string {
	return keyPrefix + c.name + ":" + key
}

// Get читает значение в dst. Возвращает true при попадании.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if data, ok := c.local.Get(key); ok && json.Unmarshal(data, dst) == nil {
		c.hit()
		return true
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
		switch {
		case err == nil:
			if json.Unmarshal(data, dst) == nil {
				c.local.Add(key, data)
				c.hit()
				return true
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("Ошибка чтения из Redis", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	c.misses.Add(1)
	cacheMissesTotal.WithLabelValues(c.name).Inc()
	return false
}

func (c *Cache) hit() {
	c.hits.Add(1)
	cacheHitsTotal.WithLabelValues(c.name).Inc()
}

// Set сохраняет значение.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Значение не сериализуется в JSON", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	c.local.Add(key, data)

	if c.redis != nil {
		if err := c.redis.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
			c.logger.Warn("Ошибка записи в Redis", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// Delete удаляет ключ.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.local.Remove(key)
	if c.redis != nil {
		if err := c.redis.Del(ctx, c.redisKey(key)).Err(); err != nil {
			c.logger.Warn("Ошибка удаления из Redis", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// Clear очищает кэш и возвращает число удалённых локальных записей.
func (c *Cache) Clear(ctx context.Context) int {
	n := c.local.Len()
	c.local.Purge()

	if c.redis != nil {
		iter := c.redis.Scan(ctx, 0, keyPrefix+c.name+":*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn("Ошибка сканирования ключей Redis", slog.String("error", err.Error()))
		} else if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("Ошибка очистки Redis", slog.String("error", err.Error()))
			}
		}
	}

	c.logger.Info("Кэш очищен", slog.Int("entries", n))
	return n
}

// Keys возвращает ключи локального уровня.
func (c *Cache) Keys() []string {
	return c.local.Keys()
}

// ResetStats обнуляет счётчики попаданий и промахов.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats возвращает статистику.
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	backend := "memory"
	if c.redis != nil {
		backend = "memory+redis"
	}
	return Stats{
		Name:    c.name,
		Backend: backend,
		Entries: c.local.Len(),
		MaxSize: c.maxSize,
		TTL:     c.ttl.String(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// Health проверяет доступность Redis. Без Redis кэш всегда healthy.
func (c *Cache) Health(ctx context.Context) Health {
	if c.redis == nil {
		return Health{Status: "healthy"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return Health{Status: "degraded", Redis: "unavailable", Error: err.Error()}
	}
	return Health{Status: "healthy", Redis: "connected"}
}
