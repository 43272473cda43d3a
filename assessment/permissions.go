package assessment

import (
	"errors"
	"fmt"

	"sportrecord/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantPermission creates the (assessed, assessor, top category) row unless
// one already exists. An existing row keeps its access value: re-running a
// fan-out never overwrites a grant set through the explicit update endpoint.
func GrantPermission(db *gorm.DB, assessedID, assessorID, topCategoryID uint, access bool) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "assessed_id"}, {Name: "assessor_id"}, {Name: "assessment_top_category_id"},
		},
		DoNothing: true,
	}).Create(&models.AssessmentTopCategoryPermission{
		AssessedID:              assessedID,
		AssessorID:              assessorID,
		AssessmentTopCategoryID: topCategoryID,
		AssessorHasAccess:       access,
	}).Error
}

// UpdateAccess changes an existing grant. A missing row is an error: the
// explicit permission endpoint never creates rows, the fan-out does.
func UpdateAccess(db *gorm.DB, assessedID, assessorID, topCategoryID uint, access bool) (*models.AssessmentTopCategoryPermission, error) {
	var perm models.AssessmentTopCategoryPermission
	err := db.Where("assessed_id = ? AND assessor_id = ? AND assessment_top_category_id = ?",
		assessedID, assessorID, topCategoryID).
		First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no permission row for assessed %d, assessor %d, top category %d: %w",
				assessedID, assessorID, topCategoryID, err)
		}
		return nil, err
	}
	perm.AssessorHasAccess = access
	if err := db.Save(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

// HasAccess reports whether the assessor may assess in the given top
// category. Self-assessment is always allowed.
func HasAccess(db *gorm.DB, assessorID, assessedID, topCategoryID uint) (bool, error) {
	if assessorID == assessedID {
		return true, nil
	}
	var count int64
	err := db.Model(&models.AssessmentTopCategoryPermission{}).
		Where("assessed_id = ? AND assessor_id = ? AND assessment_top_category_id = ? AND assessor_has_access = ?",
			assessedID, assessorID, topCategoryID, true).
		Count(&count).Error
	return count > 0, err
}

// ListForAssessed returns every grant targeting the assessed.
func ListForAssessed(db *gorm.DB, assessedID uint) ([]models.AssessmentTopCategoryPermission, error) {
	var perms []models.AssessmentTopCategoryPermission
	err := db.Where("assessed_id = ?", assessedID).Order("id").Find(&perms).Error
	return perms, err
}

// BackfillTopCategory creates closed grants for a freshly synced top category
// for every (assessed, assessor) pair that already has rows under any other
// category, so the new category shows up in permission listings.
func BackfillTopCategory(db *gorm.DB, topCategoryID uint) error {
	var sample models.AssessmentTopCategoryPermission
	err := db.First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var existing []models.AssessmentTopCategoryPermission
	if err := db.Where("assessment_top_category_id = ?", sample.AssessmentTopCategoryID).
		Find(&existing).Error; err != nil {
		return err
	}

	for _, perm := range existing {
		if err := GrantPermission(db, perm.AssessedID, perm.AssessorID, topCategoryID, false); err != nil {
			return err
		}
	}
	return nil
}
