package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// RedisConfig holds configuration for the report cache
type RedisConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	Password      string        `json:"password" mapstructure:"password"`
	DB            int           `json:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" mapstructure:"pool_size"`
	MinIdleConns  int           `json:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
	IdleTimeout   time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key_prefix" mapstructure:"key_prefix"`
	UseClustering bool          `json:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// DefaultRedisConfig returns settings for a local Redis with a five
// minute report TTL.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
		IdleTimeout:  5 * time.Minute,
		TTL:          constants.DefaultCacheTTL,
		KeyPrefix:    "privacy:audit:",
	}
}

// ReportCache caches audit reports so repeated dashboard requests over the
// same query and thresholds skip recomputation.
type ReportCache struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	stats  cacheStats
	closed bool
}

type cacheStats struct {
	mu     sync.Mutex
	hits   int64
	misses int64
	sets   int64
	errors int64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// NewReportCache creates a new, unconnected cache
func NewReportCache(config *RedisConfig, logger *logrus.Logger) (*ReportCache, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "Redis config cannot be nil")
	}

	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "Redis address or cluster addresses are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	if config.TTL <= 0 {
		config.TTL = constants.DefaultCacheTTL
	}

	return &ReportCache{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to Redis
func (r *ReportCache) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	var client redis.UniversalClient

	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	}

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
		"ttl":        r.config.TTL,
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *ReportCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to close Redis connection")
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Ping tests the Redis connection
func (r *ReportCache) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Redis ping failed")
	}
	return nil
}

// Get returns the cached report for key. A miss is not an error.
func (r *ReportCache) Get(ctx context.Context, key string) (*privacy.AuditReport, bool, error) {
	client, err := r.conn()
	if err != nil {
		return nil, false, err
	}

	data, err := client.Get(ctx, r.prefixed(key)).Bytes()
	if err == redis.Nil {
		r.stats.record(func(s *cacheStats) { s.misses++ })
		return nil, false, nil
	}
	if err != nil {
		r.stats.record(func(s *cacheStats) { s.errors++ })
		return nil, false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read cached report")
	}

	var report privacy.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		r.stats.record(func(s *cacheStats) { s.errors++ })
		return nil, false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decode cached report")
	}

	r.stats.record(func(s *cacheStats) { s.hits++ })
	return &report, true, nil
}

// Set stores report under key for the configured TTL.
func (r *ReportCache) Set(ctx context.Context, key string, report *privacy.AuditReport) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to encode report")
	}

	if err := client.Set(ctx, r.prefixed(key), data, r.config.TTL).Err(); err != nil {
		r.stats.record(func(s *cacheStats) { s.errors++ })
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to cache report")
	}

	r.stats.record(func(s *cacheStats) { s.sets++ })
	r.logger.WithFields(logrus.Fields{
		"key":       key,
		"report_id": report.ID,
		"ttl":       r.config.TTL,
	}).Debug("Cached audit report")

	return nil
}

// TTL returns the remaining lifetime of key.
func (r *ReportCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	client, err := r.conn()
	if err != nil {
		return 0, err
	}

	ttl, err := client.TTL(ctx, r.prefixed(key)).Result()
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read TTL")
	}
	return ttl, nil
}

// Invalidate removes key from the cache.
func (r *ReportCache) Invalidate(ctx context.Context, key string) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, r.prefixed(key)).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to invalidate report")
	}
	return nil
}

// Stats returns hit/miss counters since creation.
func (r *ReportCache) Stats() CacheStats {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()

	out := CacheStats{
		Hits:   r.stats.hits,
		Misses: r.stats.misses,
		Sets:   r.stats.sets,
		Errors: r.stats.errors,
	}
	if lookups := out.Hits + out.Misses; lookups > 0 {
		out.HitRate = float64(out.Hits) / float64(lookups)
	}
	return out
}

func (r *ReportCache) conn() (redis.UniversalClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.client == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Redis not connected")
	}
	return r.client, nil
}

func (r *ReportCache) prefixed(key string) string {
	return r.config.KeyPrefix + key
}

func (s *cacheStats) record(update func(*cacheStats)) {
	s.mu.Lock()
	update(s)
	s.mu.Unlock()
}

// CacheKey derives a stable key from everything that determines an audit
// result: the dataset source, the column lists and the thresholds.
func CacheKey(source string, quasiIdentifiers, sensitiveAttributes []string, cfg privacy.AuditConfig) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}

	write(source)
	write(strings.Join(quasiIdentifiers, "\x00"))
	write(strings.Join(sensitiveAttributes, "\x00"))
	write(strconv.Itoa(cfg.K))
	write(strconv.Itoa(cfg.L))
	write(strconv.FormatFloat(cfg.T, 'g', -1, 64))

	return hex.EncodeToString(h.Sum(nil))
}
