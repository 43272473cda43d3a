package assessment

import (
	"sportrecord/models"
)

// ValidateAssessment rejects the mutually exclusive privacy flags at write
// time; the conflict is never resolved at query time.
func ValidateAssessment(a *models.Assessment) error {
	if a.IsPrivate && a.IsPublicEverywhere {
		return &IntegrityConflictError{
			Reason: "assessment cannot be both private and public everywhere",
		}
	}
	return nil
}

// ValidateSubCategory enforces the single-parent rule: a sub-category hangs
// under a top category or under a parent sub-category, never both.
func ValidateSubCategory(sc *models.AssessmentSubCategory) error {
	if sc.ParentTopCategoryID != nil && sc.ParentSubCategoryID != nil {
		return &IntegrityConflictError{
			Reason: "sub-category cannot have both a top category and a parent sub-category",
		}
	}
	if sc.ParentTopCategoryID == nil && sc.ParentSubCategoryID == nil {
		return &IntegrityConflictError{
			Reason: "sub-category needs a top category or a parent sub-category",
		}
	}
	return nil
}
