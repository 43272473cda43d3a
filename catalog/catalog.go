package catalog

import (
	"fmt"

	"sportrecord/assessment"
	"sportrecord/database"
	"sportrecord/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the admin surface of the synced catalog: sports, promo codes and
// the assessment taxonomy. Every write goes through the sync writer so all
// shards stay aligned, then drops the affected tree caches.
type Service struct {
	reg    *database.Registry
	writer *database.SyncWriter
	cache  *assessment.TreeCache
	log    *zap.Logger
}

func NewService(reg *database.Registry, writer *database.SyncWriter, cache *assessment.TreeCache, log *zap.Logger) *Service {
	return &Service{reg: reg, writer: writer, cache: cache, log: log}
}

// CreateSport adds a sport to every shard, mirrors it as an assessment top
// category with the same id, gives every existing user a profile row for it
// and backfills closed permission grants for the new category.
func (s *Service) CreateSport(sport *models.Sport) (uint, error) {
	id, err := s.writer.CreateSynced(sport)
	if err != nil {
		return id, err
	}

	topCat := models.AssessmentTopCategory{
		ID:          id,
		Name:        sport.Name,
		Description: sport.Description,
		SportID:     &sport.ID,
	}
	if _, err := s.writer.CreateSynced(&topCat); err != nil {
		return id, err
	}

	for _, key := range s.reg.AllShards() {
		db, _ := s.reg.Resolve(key)
		if err := seedChosenSport(db, id); err != nil {
			return id, fmt.Errorf("seed chosen sport on shard %q: %w", key, err)
		}
		if err := assessment.BackfillTopCategory(db, topCat.ID); err != nil {
			return id, fmt.Errorf("backfill permissions on shard %q: %w", key, err)
		}
	}

	s.cache.InvalidateAll()
	s.log.Info("sport created", zap.Uint("id", id), zap.String("name", sport.Name))
	return id, nil
}

// seedChosenSport inserts one profile row per user for the sport. Existing
// rows are left alone so a repair re-run is safe.
func seedChosenSport(db *gorm.DB, sportID uint) error {
	var userIDs []uint
	if err := db.Model(&models.User{}).Order("id").Pluck("id", &userIDs).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.ChosenSport, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, models.ChosenSport{UserID: uid, SportID: sportID})
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "sport_id"}},
		DoNothing: true,
	}).CreateInBatches(rows, 200).Error
}

// CreatePromocode creates the code on every shard with a matching id.
func (s *Service) CreatePromocode(p *models.Promocode) (uint, error) {
	return s.writer.CreateSynced(p)
}

// UpdatePromocode rewrites the code's fields on every shard, locating each
// shard's row by its unique code. Going by code rather than id tolerates
// shards whose id allocation diverged before a repair.
func (s *Service) UpdatePromocode(p *models.Promocode) error {
	var succeeded, failed []database.ShardKey
	errs := make(map[database.ShardKey]error)

	for _, key := range s.reg.AllShards() {
		db, _ := s.reg.Resolve(key)
		var existing models.Promocode
		if err := db.Where("code = ?", p.Code).First(&existing).Error; err != nil {
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		existing.Discount = p.Discount
		existing.Name = p.Name
		existing.StartDate = p.StartDate
		existing.EndDate = p.EndDate
		existing.Active = p.Active
		if err := db.Save(&existing).Error; err != nil {
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		succeeded = append(succeeded, key)
	}

	if len(failed) > 0 {
		return &database.PartialSyncError{Op: "update promocode", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return nil
}

// CreateTopCategory adds a standalone top category (one not backing a sport)
// and backfills closed grants for every connected pair.
func (s *Service) CreateTopCategory(tc *models.AssessmentTopCategory) (uint, error) {
	id, err := s.writer.CreateSynced(tc)
	if err != nil {
		return id, err
	}
	for _, key := range s.reg.AllShards() {
		db, _ := s.reg.Resolve(key)
		if err := assessment.BackfillTopCategory(db, id); err != nil {
			return id, fmt.Errorf("backfill permissions on shard %q: %w", key, err)
		}
	}
	s.cache.InvalidateAll()
	return id, nil
}

// CreateSubCategory validates the single-parent rule and checks the parent
// exists before syncing.
func (s *Service) CreateSubCategory(sc *models.AssessmentSubCategory) (uint, error) {
	if err := assessment.ValidateSubCategory(sc); err != nil {
		return 0, err
	}
	if err := s.checkSubCategoryParent(sc); err != nil {
		return 0, err
	}
	id, err := s.writer.CreateSynced(sc)
	if err != nil {
		return id, err
	}
	s.cache.InvalidateAll()
	return id, nil
}

func (s *Service) checkSubCategoryParent(sc *models.AssessmentSubCategory) error {
	keys := s.reg.AllShards()
	if len(keys) == 0 {
		return fmt.Errorf("no shards configured")
	}
	db, _ := s.reg.Resolve(keys[0])
	if sc.ParentTopCategoryID != nil {
		var tc models.AssessmentTopCategory
		if err := db.First(&tc, *sc.ParentTopCategoryID).Error; err != nil {
			return fmt.Errorf("unknown top category %d: %w", *sc.ParentTopCategoryID, err)
		}
		return nil
	}
	var parent models.AssessmentSubCategory
	if err := db.First(&parent, *sc.ParentSubCategoryID).Error; err != nil {
		return fmt.Errorf("unknown sub-category %d: %w", *sc.ParentSubCategoryID, err)
	}
	return nil
}

// CreateFormat syncs a value format.
func (s *Service) CreateFormat(f *models.AssessmentFormat) (uint, error) {
	id, err := s.writer.CreateSynced(f)
	if err != nil {
		return id, err
	}
	s.cache.InvalidateAll()
	return id, nil
}

// CreateRelationshipType syncs a relationship type.
func (s *Service) CreateRelationshipType(rt *models.AssessmentRelationshipType) (uint, error) {
	id, err := s.writer.CreateSynced(rt)
	if err != nil {
		return id, err
	}
	s.cache.InvalidateAll()
	return id, nil
}

// CreateAssessment validates the privacy flags and parent references, then
// syncs the assessment with its relationship-type links.
func (s *Service) CreateAssessment(a *models.Assessment) (uint, error) {
	if err := assessment.ValidateAssessment(a); err != nil {
		return 0, err
	}

	keys := s.reg.AllShards()
	if len(keys) == 0 {
		return 0, fmt.Errorf("no shards configured")
	}
	db, _ := s.reg.Resolve(keys[0])
	var parent models.AssessmentSubCategory
	if err := db.First(&parent, a.ParentSubCategoryID).Error; err != nil {
		return 0, fmt.Errorf("unknown sub-category %d: %w", a.ParentSubCategoryID, err)
	}
	var format models.AssessmentFormat
	if err := db.First(&format, a.FormatID).Error; err != nil {
		return 0, fmt.Errorf("unknown format %d: %w", a.FormatID, err)
	}

	id, err := s.writer.CreateSynced(a)
	if err != nil {
		return id, err
	}
	s.cache.InvalidateAll()
	return id, nil
}

// DeleteAssessment removes the assessment from every shard. Recorded values
// keep their assessment id and survive as orphaned history.
func (s *Service) DeleteAssessment(id uint) error {
	if err := s.writer.DeleteSynced(&models.Assessment{}, id); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

// Repair replays a shard's row onto the shards missing it. This is the
// recovery path after a partial sync or a divergent id allocation.
func (s *Service) Repair(entity database.SyncedEntity, id uint, from database.ShardKey) error {
	if err := s.writer.PropagateExisting(entity, id, from); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

// Sports lists one shard's sports catalog.
func (s *Service) Sports(shard database.ShardKey) ([]models.Sport, error) {
	db, err := s.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	var sports []models.Sport
	err = db.Order("id").Find(&sports).Error
	return sports, err
}

// PromocodeByCode resolves a code on one shard, for checkout validation.
func (s *Service) PromocodeByCode(shard database.ShardKey, code string) (*models.Promocode, error) {
	db, err := s.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	var p models.Promocode
	if err := db.Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
