package models

import (
	"time"
)

const (
	RelationshipSelf         = "self"
	RelationshipAthleteCoach = "athlete_coach"
	RelationshipCoachAthlete = "coach_athlete"
)

type AssessmentTopCategory struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	SportID     *uint  `gorm:"uniqueIndex" json:"sport_id"`
}

func (c *AssessmentTopCategory) PrimaryID() uint      { return c.ID }
func (c *AssessmentTopCategory) SetPrimaryID(id uint) { c.ID = id }

// AssessmentSubCategory hangs either directly under a top category or under a
// parent sub category, never both.
type AssessmentSubCategory struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	Name                string `gorm:"not null;size:255" json:"name"`
	Description         string `gorm:"size:255" json:"description"`
	ParentTopCategoryID *uint  `gorm:"index" json:"parent_top_category_id"`
	ParentSubCategoryID *uint  `gorm:"index" json:"parent_sub_category_id"`
}

func (c *AssessmentSubCategory) PrimaryID() uint      { return c.ID }
func (c *AssessmentSubCategory) SetPrimaryID(id uint) { c.ID = id }

type AssessmentFormat struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Description     string `gorm:"size:255" json:"description"`
	Unit            string `gorm:"not null;size:50" json:"unit"`
	ValidationRegex string `gorm:"size:500" json:"validation_regex"`
}

func (f *AssessmentFormat) PrimaryID() uint      { return f.ID }
func (f *AssessmentFormat) SetPrimaryID(id uint) { f.ID = id }

type AssessmentRelationshipType struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Type        string `gorm:"not null;size:50" json:"type"`
	Description string `gorm:"size:255" json:"description"`
}

func (t *AssessmentRelationshipType) PrimaryID() uint      { return t.ID }
func (t *AssessmentRelationshipType) SetPrimaryID(id uint) { t.ID = id }

type Assessment struct {
	ID                  uint                         `gorm:"primaryKey" json:"id"`
	Name                string                       `gorm:"not null;size:255" json:"name"`
	Description         string                       `gorm:"size:255" json:"description"`
	ParentSubCategoryID uint                         `gorm:"not null;index" json:"parent_sub_category_id"`
	FormatID            uint                         `gorm:"not null" json:"format_id"`
	Format              AssessmentFormat             `gorm:"foreignKey:FormatID" json:"format,omitempty"`
	RelationshipTypes   []AssessmentRelationshipType `gorm:"many2many:assessment_relationship_links" json:"relationship_types,omitempty"`
	IsPrivate           bool                         `gorm:"default:false" json:"is_private"`
	// IsPublicEverywhere marks the assessment public across teams and
	// organisations regardless of privacy scoping.
	IsPublicEverywhere bool `gorm:"default:false" json:"is_public_everywhere"`
}

func (a *Assessment) PrimaryID() uint      { return a.ID }
func (a *Assessment) SetPrimaryID(id uint) { a.ID = id }

// AllowsRelationship reports whether the assessment carries a relationship
// type matching the assessor/assessed role combination. RelationshipTypes
// must be loaded.
func (a *Assessment) AllowsRelationship(assessor, assessed UserType, selfAssessment bool) bool {
	want := ""
	switch {
	case selfAssessment:
		want = RelationshipSelf
	case assessor == UserTypeCoach && assessed == UserTypeAthlete:
		want = RelationshipCoachAthlete
	case assessor == UserTypeAthlete && assessed == UserTypeCoach:
		want = RelationshipAthleteCoach
	default:
		return false
	}
	for _, rt := range a.RelationshipTypes {
		if rt.Type == want {
			return true
		}
	}
	return false
}

// Assessor is the assessing-side role projection of a user. Exactly one of
// AthleteID and CoachID is set.
type Assessor struct {
	ID        uint  `gorm:"primaryKey" json:"id"`
	AthleteID *uint `gorm:"uniqueIndex" json:"athlete_id"`
	CoachID   *uint `gorm:"uniqueIndex" json:"coach_id"`
}

func (a *Assessor) UserID() uint {
	if a.AthleteID != nil {
		return *a.AthleteID
	}
	if a.CoachID != nil {
		return *a.CoachID
	}
	return 0
}

func (a *Assessor) Role() UserType {
	if a.AthleteID != nil {
		return UserTypeAthlete
	}
	return UserTypeCoach
}

// Assessed is the assessed-side role projection of a user.
type Assessed struct {
	ID        uint  `gorm:"primaryKey" json:"id"`
	AthleteID *uint `gorm:"uniqueIndex" json:"athlete_id"`
	CoachID   *uint `gorm:"uniqueIndex" json:"coach_id"`
}

func (a *Assessed) UserID() uint {
	if a.AthleteID != nil {
		return *a.AthleteID
	}
	if a.CoachID != nil {
		return *a.CoachID
	}
	return 0
}

func (a *Assessed) Role() UserType {
	if a.AthleteID != nil {
		return UserTypeAthlete
	}
	return UserTypeCoach
}

func (a *Assessed) IsCoach() bool {
	return a.CoachID != nil
}

// ChosenAssessment is one recorded assessment value. History is append-only;
// values change only through the explicit correction endpoint.
type ChosenAssessment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssessedID   uint      `gorm:"not null;index" json:"assessed_id"`
	AssessorID   uint      `gorm:"not null;index" json:"assessor_id"`
	AssessmentID uint      `gorm:"not null;index" json:"assessment_id"`
	TeamID       *uint     `gorm:"index" json:"team_id"`
	DateAssessed time.Time `gorm:"not null" json:"date_assessed"`
	Value        float64   `gorm:"not null" json:"value"`
}

// AssessmentTopCategoryPermission holds one directional access grant. At most
// one row exists per (assessed, assessor, top category) triple.
type AssessmentTopCategoryPermission struct {
	ID                      uint `gorm:"primaryKey" json:"id"`
	AssessedID              uint `gorm:"not null;uniqueIndex:idx_permission_triple" json:"assessed_id"`
	AssessorID              uint `gorm:"not null;uniqueIndex:idx_permission_triple" json:"assessor_id"`
	AssessmentTopCategoryID uint `gorm:"not null;uniqueIndex:idx_permission_triple" json:"assessment_top_category_id"`
	AssessorHasAccess       bool `gorm:"default:false" json:"assessor_has_access"`
}
