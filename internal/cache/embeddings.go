// File path: internal/cache/embeddings.go
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
)

// EmbeddingCache stores query embeddings keyed by EmbeddingKey.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// EmbeddingKey derives a stable cache key from the embedding model and text.
func EmbeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Size          int
}

func LoadConfig() (Config, error) {
	cfg := Config{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Prefix:        strings.TrimSpace(os.Getenv("EMBED_CACHE_PREFIX")),
	}
	if value := strings.TrimSpace(os.Getenv("REDIS_DB")); value != "" {
		db, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}
	if value := strings.TrimSpace(os.Getenv("EMBED_CACHE_TTL")); value != "" {
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMBED_CACHE_TTL: %w", err)
		}
		cfg.TTL = ttl
	}
	if value := strings.TrimSpace(os.Getenv("EMBED_CACHE_SIZE")); value != "" {
		size, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMBED_CACHE_SIZE: %w", err)
		}
		cfg.Size = size
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "vitaplan:embed:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Size <= 0 {
		c.Size = 512
	}
}

// New returns a Redis backed cache when an address is configured and reachable, and
// an in-memory LRU otherwise. The returned closer is never nil.
func New(ctx context.Context, cfg Config) (EmbeddingCache, func() error) {
	cfg.applyDefaults()
	logger := common.Logger()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 2 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Str("addr", cfg.RedisAddr).Err(err).Msg("cache: redis unreachable, using in-memory embeddings cache")
			_ = client.Close()
		} else {
			logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.TTL).Msg("cache: redis embeddings cache enabled")
			return NewRedisEmbeddings(client, cfg.Prefix, cfg.TTL), client.Close
		}
	}
	return NewMemoryEmbeddings(cfg.Size), func() error { return nil }
}

// MemoryEmbeddings keeps embeddings in a process-local LRU.
type MemoryEmbeddings struct {
	lru *LRU
}

func NewMemoryEmbeddings(size int) *MemoryEmbeddings {
	return &MemoryEmbeddings{lru: NewLRU(size)}
}

func (m *MemoryEmbeddings) Get(_ context.Context, key string) ([]float32, bool) {
	value, ok := m.lru.Get(key)
	telemetry.RecordEmbeddingCache(ok)
	if !ok {
		return nil, false
	}
	vec := value.([]float32)
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (m *MemoryEmbeddings) Set(_ context.Context, key string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	m.lru.Set(key, stored)
}

// RedisEmbeddings shares embeddings between processes. Errors degrade to misses.
type RedisEmbeddings struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisEmbeddings(client redis.Cmdable, prefix string, ttl time.Duration) *RedisEmbeddings {
	return &RedisEmbeddings{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisEmbeddings) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			common.Logger().Debug().Err(err).Msg("cache: redis get failed")
		}
		telemetry.RecordEmbeddingCache(false)
		return nil, false
	}
	vec, err := DecodeVector(data)
	if err != nil {
		telemetry.RecordEmbeddingCache(false)
		return nil, false
	}
	telemetry.RecordEmbeddingCache(true)
	return vec, true
}

func (r *RedisEmbeddings) Set(ctx context.Context, key string, vec []float32) {
	if err := r.client.Set(ctx, r.prefix+key, EncodeVector(vec), r.ttl).Err(); err != nil {
		common.Logger().Debug().Err(err).Msg("cache: redis set failed")
	}
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cache: encoded vector has %d bytes", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
