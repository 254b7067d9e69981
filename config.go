package sessionstore

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/txmesh/sessionstore/consts"
)

// RedisConfig is the connection and query configuration of the Redis store.
// Zero values fall back to the defaults applied by WithDefaults.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// QueryLimit is the maximum total xids returned by a single
	// multi-status query (store.redis.queryLimit).
	QueryLimit int
}

// WithDefaults returns a copy with unset fields filled in.
func (c RedisConfig) WithDefaults() RedisConfig {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.QueryLimit <= 0 {
		c.QueryLimit = consts.DefaultQueryLimit
	}
	return c
}

// StoreConfig selects the backend and carries its settings.
type StoreConfig struct {
	// Mode is "redis", "db" or "file".
	Mode  string
	Redis RedisConfig
}

// LoadStoreConfig reads the store section from a config file via viper.
// Missing file or missing keys resolve to defaults; a malformed file is an
// error. Recognized keys: store.mode, store.redis.addr, store.redis.username,
// store.redis.password, store.redis.db, store.redis.poolSize,
// store.redis.minIdleConns, store.redis.queryLimit.
func LoadStoreConfig(path string) (StoreConfig, error) {
	v := viper.New()
	v.SetDefault("store.mode", "redis")
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.poolSize", 10)
	v.SetDefault("store.redis.queryLimit", consts.DefaultQueryLimit)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return StoreConfig{}, fmt.Errorf("read store config: %w", err)
		}
	}

	cfg := StoreConfig{
		Mode: v.GetString("store.mode"),
		Redis: RedisConfig{
			Addr:         v.GetString("store.redis.addr"),
			Username:     v.GetString("store.redis.username"),
			Password:     v.GetString("store.redis.password"),
			DB:           v.GetInt("store.redis.db"),
			PoolSize:     v.GetInt("store.redis.poolSize"),
			MinIdleConns: v.GetInt("store.redis.minIdleConns"),
			QueryLimit:   v.GetInt("store.redis.queryLimit"),
		},
	}
	cfg.Redis = cfg.Redis.WithDefaults()
	return cfg, nil
}
