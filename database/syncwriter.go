package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncedEntity is a reference entity kept present with matching primary keys
// on every shard (sports, promo codes, the assessment taxonomy).
type SyncedEntity interface {
	PrimaryID() uint
	SetPrimaryID(id uint)
}

// PartialSyncError reports a cross-shard write that committed on some shards
// and failed on others. Committed shards are never rolled back; the caller
// retries the failed subset, which is safe because every step is an upsert by
// id.
type PartialSyncError struct {
	Op        string
	Succeeded []ShardKey
	Failed    []ShardKey
	Errs      map[ShardKey]error
}

func (e *PartialSyncError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, key := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", key, e.Errs[key]))
	}
	return fmt.Sprintf("%s: succeeded on %v, failed on [%s]", e.Op, e.Succeeded, strings.Join(parts, "; "))
}

// SyncWriter performs writes to synced entities across all shards. Each
// shard's write is an independent unit of work; there is no cross-shard
// transaction.
type SyncWriter struct {
	reg *Registry
	log *zap.Logger
}

func NewSyncWriter(reg *Registry, log *zap.Logger) *SyncWriter {
	return &SyncWriter{reg: reg, log: log}
}

// CreateSynced creates the entity on every shard. When no id is pre-assigned,
// each shard allocates max(id)+1 independently; as long as all shards started
// from the same reference snapshot the allocations agree. A divergent
// allocation is logged and must be repaired with PropagateExisting.
func (w *SyncWriter) CreateSynced(entity SyncedEntity) (uint, error) {
	preassigned := entity.PrimaryID()
	firstID := preassigned

	var succeeded, failed []ShardKey
	errs := make(map[ShardKey]error)

	for _, key := range w.reg.AllShards() {
		db, _ := w.reg.Resolve(key)

		id := preassigned
		if id == 0 {
			maxID, err := maxPrimaryID(db, entity)
			if err != nil {
				failed = append(failed, key)
				errs[key] = err
				continue
			}
			id = maxID + 1
		}
		if firstID == 0 {
			firstID = id
		} else if id != firstID {
			w.log.Warn("synced id allocation diverged between shards",
				zap.String("shard", string(key)),
				zap.Uint("id", id),
				zap.Uint("expected", firstID))
		}
		entity.SetPrimaryID(id)

		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(entity).Error; err != nil {
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		succeeded = append(succeeded, key)
	}

	entity.SetPrimaryID(firstID)
	if len(failed) > 0 {
		return firstID, &PartialSyncError{Op: "create synced", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return firstID, nil
}

// PropagateExisting replays a single shard's row onto every shard missing it.
// This is the repair path for rows seeded out of band or left behind by a
// partial sync.
func (w *SyncWriter) PropagateExisting(entity SyncedEntity, id uint, from ShardKey) error {
	src, err := w.reg.Resolve(from)
	if err != nil {
		return err
	}
	if err := src.First(entity, id).Error; err != nil {
		return fmt.Errorf("load %d from shard %q: %w", id, from, err)
	}

	var succeeded, failed []ShardKey
	errs := make(map[ShardKey]error)

	for _, key := range w.reg.AllShards() {
		if key == from {
			continue
		}
		db, _ := w.reg.Resolve(key)
		entity.SetPrimaryID(id)
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(entity).Error; err != nil {
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		succeeded = append(succeeded, key)
	}

	if len(failed) > 0 {
		return &PartialSyncError{Op: "propagate existing", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return nil
}

// DeleteSynced removes the entity from every shard.
func (w *SyncWriter) DeleteSynced(entity SyncedEntity, id uint) error {
	var succeeded, failed []ShardKey
	errs := make(map[ShardKey]error)

	for _, key := range w.reg.AllShards() {
		db, _ := w.reg.Resolve(key)
		if err := db.Delete(entity, id).Error; err != nil {
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		succeeded = append(succeeded, key)
	}

	if len(failed) > 0 {
		return &PartialSyncError{Op: "delete synced", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return nil
}

func maxPrimaryID(db *gorm.DB, entity SyncedEntity) (uint, error) {
	// Clear any id carried over from a previous shard's write: gorm adds a
	// `WHERE id = ?` condition for a model with a non-zero primary key, which
	// would scope the MAX to a single row instead of the whole table.
	saved := entity.PrimaryID()
	entity.SetPrimaryID(0)
	defer entity.SetPrimaryID(saved)

	var maxID uint
	err := db.Model(entity).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	return maxID, err
}
