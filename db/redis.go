package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"algoArenaServer/config"

	"github.com/redis/go-redis/v9"
)

var (
	// RedisClient is the global Redis client instance
	RedisClient *redis.Client
)

// AccessTokenMirror is the Redis-side view of an issued hire token. The
// in-memory auth store stays authoritative; this exists so ops tooling can
// inspect outstanding tokens and TTLs.
type AccessTokenMirror struct {
	Address   string    `json:"address"`
	AgentType string    `json:"agentType"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// InitRedis initializes the Redis client connection
func InitRedis() error {
	log.Println("🔌 Connecting to Redis...")

	// Get Redis configuration from environment
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	// Create Redis client
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         redisURL,
		Password:     redisPassword,
		DB:           redisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		RedisClient = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("✅ Redis connected successfully - URL: %s", redisURL)
	return nil
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		log.Println("🔌 Closing Redis connection...")
		return RedisClient.Close()
	}
	return nil
}

/* =========================
   ACCESS TOKEN MIRROR
   Redis Key: arena:token:{token} -> JSON, TTL = AccessTokenTTL
========================= */

// StoreAccessToken mirrors an issued hire token with the token TTL.
func StoreAccessToken(ctx context.Context, token, address, agentType string) error {
	if RedisClient == nil {
		return nil
	}

	key := fmt.Sprintf(config.RedisAccessTokenKey, token)
	mirror := AccessTokenMirror{
		Address:   address,
		AgentType: agentType,
		IssuedAt:  time.Now(),
	}

	data, err := json.Marshal(mirror)
	if err != nil {
		return fmt.Errorf("failed to marshal token mirror: %w", err)
	}

	if err := RedisClient.Set(ctx, key, data, config.AccessTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store token mirror: %w", err)
	}
	return nil
}

// DeleteAccessToken removes a redeemed token's mirror entry.
func DeleteAccessToken(ctx context.Context, token string) error {
	if RedisClient == nil {
		return nil
	}

	key := fmt.Sprintf(config.RedisAccessTokenKey, token)
	if err := RedisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete token mirror: %w", err)
	}
	return nil
}

/* =========================
   HEALTH CHECK
========================= */

// HealthCheck performs a Redis health check
func HealthCheck(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("redis not initialized")
	}
	return RedisClient.Ping(ctx).Err()
}
