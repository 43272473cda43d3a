package database

import (
	"errors"
	"fmt"
	"sort"

	"sportrecord/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ShardKey identifies one localized database, keyed by country code.
type ShardKey string

// UnknownShardError means the key is not part of the configured shard set.
// There is no default shard to fall back to.
type UnknownShardError struct {
	Key ShardKey
}

func (e *UnknownShardError) Error() string {
	return fmt.Sprintf("unknown shard %q", string(e.Key))
}

// Registry holds the static shard-key → connection mapping, loaded once at
// process start. Every tenant-scoped read or write must resolve its shard
// explicitly through the registry.
type Registry struct {
	shards map[ShardKey]*gorm.DB
	keys   []ShardKey
	log    *zap.Logger
}

// NewRegistry opens and migrates every configured shard.
func NewRegistry(dsns map[string]string, log *zap.Logger) (*Registry, error) {
	shards := make(map[ShardKey]*gorm.DB, len(dsns))
	for key, dsn := range dsns {
		db, err := Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open shard %q: %w", key, err)
		}
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate shard %q: %w", key, err)
		}
		shards[ShardKey(key)] = db
		log.Info("shard connected", zap.String("shard", key))
	}
	return NewRegistryFromDBs(shards, log), nil
}

// NewRegistryFromDBs builds a registry over already-open handles.
func NewRegistryFromDBs(shards map[ShardKey]*gorm.DB, log *zap.Logger) *Registry {
	keys := make([]ShardKey, 0, len(shards))
	for key := range shards {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return &Registry{shards: shards, keys: keys, log: log}
}

// Resolve returns the shard's handle or an UnknownShardError.
func (r *Registry) Resolve(key ShardKey) (*gorm.DB, error) {
	db, ok := r.shards[key]
	if !ok {
		return nil, &UnknownShardError{Key: key}
	}
	return db, nil
}

func (r *Registry) Has(key ShardKey) bool {
	_, ok := r.shards[key]
	return ok
}

// AllShards returns the configured shard keys in stable order.
func (r *Registry) AllShards() []ShardKey {
	keys := make([]ShardKey, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// FindUserByEmail looks the user up across every shard and returns the home
// shard it was found on. Used by the login flow, where the shard is not yet
// known.
func (r *Registry) FindUserByEmail(email string) (*models.User, ShardKey, error) {
	for _, key := range r.keys {
		var user models.User
		err := r.shards[key].Where("email = ?", email).First(&user).Error
		if err == nil {
			return &user, key, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
	}
	return nil, "", gorm.ErrRecordNotFound
}
