package assessment

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"sportrecord/database"
	"sportrecord/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service records assessment values after running the validation pipeline:
// cooldown, connectivity, permission, relationship type and value format.
type Service struct {
	reg      *database.Registry
	cache    *TreeCache
	cooldown time.Duration
	log      *zap.Logger
}

func NewService(reg *database.Registry, cache *TreeCache, cooldown time.Duration, log *zap.Logger) *Service {
	return &Service{reg: reg, cache: cache, cooldown: cooldown, log: log}
}

type RecordInput struct {
	AssessedID   uint    `json:"assessed_id"`
	AssessmentID uint    `json:"assessment_id"`
	TeamID       *uint   `json:"team_id"`
	Value        float64 `json:"value"`
}

type RejectedRecord struct {
	Input RecordInput `json:"input"`
	Err   error       `json:"-"`
}

// BatchResult partitions a bulk submission: every item succeeds or is
// rejected independently, never all-or-nothing.
type BatchResult struct {
	Valid    []models.ChosenAssessment
	Rejected []RejectedRecord
}

// Record validates and stores one assessment value. With dryRun set the
// pipeline validates without writing; the cooldown check still applies.
func (s *Service) Record(shard database.ShardKey, assessorUser *models.User, in RecordInput, dryRun bool) (*models.ChosenAssessment, error) {
	db, err := s.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	tree, err := s.cache.Get(shard)
	if err != nil {
		return nil, err
	}

	assessorRow, err := models.AssessorOf(db, assessorUser)
	if err != nil {
		return nil, err
	}

	var assessed models.Assessed
	if err := db.First(&assessed, in.AssessedID).Error; err != nil {
		return nil, fmt.Errorf("unknown assessed %d: %w", in.AssessedID, err)
	}

	// An athlete assessing a coach other than themselves is rate limited:
	// one assessment per cooldown window for that coach.
	if assessorUser.IsAthlete() && assessorRow.UserID() != assessed.UserID() && assessed.IsCoach() {
		if err := s.checkCooldown(db, assessed.ID); err != nil {
			return nil, err
		}
		if dryRun {
			return nil, nil
		}
	}

	a := tree.AssessmentByID(in.AssessmentID)
	if a == nil {
		return nil, fmt.Errorf("unknown assessment %d: %w", in.AssessmentID, gorm.ErrRecordNotFound)
	}

	if in.TeamID != nil {
		var team models.Team
		if err := db.First(&team, *in.TeamID).Error; err != nil {
			return nil, fmt.Errorf("unknown team %d: %w", *in.TeamID, err)
		}
	}

	selfAssessment := assessorRow.UserID() == assessed.UserID()
	if !selfAssessment {
		connected, err := models.IsConnectedTo(db, assessorUser, assessed.UserID())
		if err != nil {
			return nil, err
		}
		if !connected {
			return nil, ErrNotConnected
		}
	}

	topCat := tree.TopCategoryOf(a)
	if topCat == nil {
		return nil, fmt.Errorf("assessment %d has no top category", a.ID)
	}
	hasAccess, err := HasAccess(db, assessorRow.ID, assessed.ID, topCat.ID)
	if err != nil {
		return nil, err
	}
	if !hasAccess {
		return nil, &PermissionDeniedError{
			AssessorID:    assessorRow.ID,
			AssessedID:    assessed.ID,
			TopCategoryID: topCat.ID,
		}
	}

	if !a.AllowsRelationship(assessorUser.UserType, assessed.Role(), selfAssessment) {
		return nil, ErrRelationshipNotAllowed
	}

	if err := validateValueFormat(a, in.Value); err != nil {
		return nil, err
	}

	if dryRun {
		return nil, nil
	}

	chosen := models.ChosenAssessment{
		AssessedID:   assessed.ID,
		AssessorID:   assessorRow.ID,
		AssessmentID: a.ID,
		TeamID:       in.TeamID,
		DateAssessed: time.Now(),
		Value:        in.Value,
	}
	if err := db.Create(&chosen).Error; err != nil {
		return nil, err
	}
	return &chosen, nil
}

// RecordBatch processes each item independently and partitions the outcome.
func (s *Service) RecordBatch(shard database.ShardKey, assessorUser *models.User, inputs []RecordInput, dryRun bool) (*BatchResult, error) {
	result := &BatchResult{}
	for _, in := range inputs {
		chosen, err := s.Record(shard, assessorUser, in, dryRun)
		if err != nil {
			var unknownShard *database.UnknownShardError
			if errors.As(err, &unknownShard) {
				// Misconfiguration aborts the whole batch.
				return nil, err
			}
			result.Rejected = append(result.Rejected, RejectedRecord{Input: in, Err: err})
			continue
		}
		if chosen != nil {
			result.Valid = append(result.Valid, *chosen)
		}
	}
	return result, nil
}

// UpdateValue is the explicit correction endpoint for an existing record.
func (s *Service) UpdateValue(shard database.ShardKey, assessorUser *models.User, chosenID uint, value float64) (*models.ChosenAssessment, error) {
	db, err := s.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	tree, err := s.cache.Get(shard)
	if err != nil {
		return nil, err
	}

	var chosen models.ChosenAssessment
	if err := db.First(&chosen, chosenID).Error; err != nil {
		return nil, err
	}
	assessorRow, err := models.AssessorOf(db, assessorUser)
	if err != nil {
		return nil, err
	}
	var assessed models.Assessed
	if err := db.First(&assessed, chosen.AssessedID).Error; err != nil {
		return nil, err
	}

	a := tree.AssessmentByID(chosen.AssessmentID)
	if a == nil {
		return nil, fmt.Errorf("unknown assessment %d: %w", chosen.AssessmentID, gorm.ErrRecordNotFound)
	}

	selfAssessment := assessorRow.UserID() == assessed.UserID()
	if !selfAssessment {
		connected, err := models.IsConnectedTo(db, assessorUser, assessed.UserID())
		if err != nil {
			return nil, err
		}
		if !connected {
			return nil, ErrNotConnected
		}
	}

	topCat := tree.TopCategoryOf(a)
	if topCat == nil {
		return nil, fmt.Errorf("assessment %d has no top category", a.ID)
	}
	hasAccess, err := HasAccess(db, assessorRow.ID, assessed.ID, topCat.ID)
	if err != nil {
		return nil, err
	}
	if !hasAccess {
		return nil, &PermissionDeniedError{
			AssessorID:    assessorRow.ID,
			AssessedID:    assessed.ID,
			TopCategoryID: topCat.ID,
		}
	}
	if !a.AllowsRelationship(assessorUser.UserType, assessed.Role(), selfAssessment) {
		return nil, ErrRelationshipNotAllowed
	}
	if err := validateValueFormat(a, value); err != nil {
		return nil, err
	}

	chosen.Value = value
	if err := db.Save(&chosen).Error; err != nil {
		return nil, err
	}
	return &chosen, nil
}

// History lists the assessed's recorded values, newest first.
func (s *Service) History(shard database.ShardKey, assessedID uint) ([]models.ChosenAssessment, error) {
	db, err := s.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	var records []models.ChosenAssessment
	err = db.Where("assessed_id = ?", assessedID).
		Order("date_assessed DESC").Find(&records).Error
	return records, err
}

func (s *Service) checkCooldown(db *gorm.DB, assessedID uint) error {
	cutoff := time.Now().Add(-s.cooldown)
	var last models.ChosenAssessment
	err := db.Where("assessed_id = ? AND date_assessed >= ?", assessedID, cutoff).
		Order("date_assessed DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &CooldownActiveError{
		Remaining: time.Until(last.DateAssessed.Add(s.cooldown)),
	}
}

func validateValueFormat(a *models.Assessment, value float64) error {
	if a.Format.ValidationRegex == "" {
		return nil
	}
	text := strconv.FormatFloat(value, 'f', -1, 64)
	matched, err := regexp.MatchString(a.Format.ValidationRegex, text)
	if err != nil {
		return fmt.Errorf("invalid validation regex for format %q: %w", a.Format.Unit, err)
	}
	if !matched {
		return &ValueFormatError{Value: text, Unit: a.Format.Unit, Description: a.Format.Description}
	}
	return nil
}
