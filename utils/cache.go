// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"tripbot/config"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client (offer snapshots, rate cache).
	CacheClient *redis.Client
	// SessionClient is the dedicated client for conversation sessions.
	SessionClient *redis.Client
)

// InitCache initializes the generic Redis cache client (using DB from AppConfig for general caching).
func InitCache() {
	CacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := CacheClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Cache): %v", err)
	}
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitSessionCache initializes the Redis client for conversation sessions (using DB from AppConfig).
func InitSessionCache() {
	SessionClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisSessionDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := SessionClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Sessions): %v", err)
	}
}

// GetSessionClient returns the Redis client for conversation sessions.
func GetSessionClient() *redis.Client {
	if SessionClient == nil {
		InitSessionCache()
	}
	return SessionClient
}
