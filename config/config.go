package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// ShardDatabases maps a country code to the DSN of its localized database.
	ShardDatabases     map[string]string
	JWTSecret          string
	JWTExpiration      time.Duration
	ServerPort         string
	// AdminToken guards the catalog admin endpoints. Empty disables them.
	AdminToken         string
	InviteExpiration   time.Duration
	AssessmentCooldown time.Duration
	// DefaultOpenTopCategoryID is the top category granted by default to
	// athlete assessors within an active connection.
	DefaultOpenTopCategoryID uint
}

func Load() (*Config, error) {
	// Optional .env for local development.
	_ = godotenv.Load()

	shards, err := parseShardDatabases(getEnv("SHARD_DATABASES",
		"ca=postgresql://postgres@localhost:5432/sportrecord_ca,us=postgresql://postgres@localhost:5432/sportrecord_us"))
	if err != nil {
		return nil, err
	}

	return &Config{
		ShardDatabases:           shards,
		JWTSecret:                getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
		JWTExpiration:            24 * time.Hour,
		ServerPort:               getEnv("SERVER_PORT", "8080"),
		AdminToken:               getEnv("ADMIN_TOKEN", ""),
		InviteExpiration:         getDuration("INVITE_EXPIRATION_SECONDS", 7*24*time.Hour),
		AssessmentCooldown:       getDuration("ASSESSMENT_COOLDOWN_SECONDS", 30*24*time.Hour),
		DefaultOpenTopCategoryID: getUint("DEFAULT_OPEN_TOP_CATEGORY_ID", 10001),
	}, nil
}

// parseShardDatabases parses "ca=dsn1,us=dsn2" into a shard-key → DSN map.
func parseShardDatabases(raw string) (map[string]string, error) {
	shards := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, dsn, ok := strings.Cut(pair, "=")
		if !ok || key == "" || dsn == "" {
			return nil, fmt.Errorf("invalid SHARD_DATABASES entry %q", pair)
		}
		shards[key] = dsn
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("SHARD_DATABASES must configure at least one shard")
	}
	return shards, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getUint(key string, defaultValue uint) uint {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 32); err == nil {
			return uint(n)
		}
	}
	return defaultValue
}
