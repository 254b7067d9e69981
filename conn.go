package sessionstore

import (
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/txmesh/sessionstore/model"
)

// NewRedisClient builds the pooled client every Redis store operation borrows
// from. go-redis owns handle borrow/release and exposes the three submission
// modes the engine needs: single command, Pipelined, and Watch/TxPipelined.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	cfg = cfg.WithDefaults()
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

var (
	defaultStoreOnce sync.Once
	defaultStore     *RedisTransactionStore
)

// DefaultRedisStore returns the process-wide store instance, initializing it
// on first use. Later calls ignore their arguments.
func DefaultRedisStore(cfg RedisConfig, metrics *model.Metrics) *RedisTransactionStore {
	defaultStoreOnce.Do(func() {
		cfg = cfg.WithDefaults()
		defaultStore = &RedisTransactionStore{
			Client:     NewRedisClient(cfg),
			QueryLimit: cfg.QueryLimit,
			Metrics:    metrics,
		}
	})
	return defaultStore
}
