package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeAthlete      UserType = "athlete"
	UserTypeCoach        UserType = "coach"
	UserTypeOrganisation UserType = "organisation"
)

type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Email           string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Country         string    `gorm:"not null;size:7" json:"country"`
	ProvinceOrState string    `gorm:"size:64" json:"province_or_state"`
	City            string    `gorm:"size:64" json:"city"`
	FirstName       string    `gorm:"size:128" json:"first_name"`
	LastName        string    `gorm:"size:128" json:"last_name"`
	PasswordHash    string    `gorm:"not null" json:"-"`
	UserType        UserType  `gorm:"not null;size:50;default:athlete" json:"user_type"`
	MeasuringSystem string    `gorm:"size:30;default:metric" json:"measuring_system"`
	Tagline         string    `gorm:"size:500" json:"tagline"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	DateJoined      time.Time `gorm:"autoCreateTime" json:"date_joined"`
}

func (u *User) FullName() string {
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}

func (u *User) IsAthlete() bool {
	return u.UserType == UserTypeAthlete
}

func (u *User) IsCoach() bool {
	return u.UserType == UserTypeCoach
}

func (u *User) IsOrganisation() bool {
	return u.UserType == UserTypeOrganisation
}

// AthleteUser is the athlete profile extension, sharing its primary key with User.
type AthleteUser struct {
	UserID       uint   `gorm:"primaryKey" json:"user_id"`
	User         User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReferralCode string `gorm:"size:255" json:"referral_code"`
	Promocode    string `gorm:"size:32" json:"promocode"`
}

// CoachUser is the coach profile extension, sharing its primary key with User.
type CoachUser struct {
	UserID uint `gorm:"primaryKey" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Coaching is the direct athlete-coach connection created when an invite
// between the two is confirmed.
type Coaching struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AthleteID  uint      `gorm:"not null;uniqueIndex:idx_coaching_pair" json:"athlete_id"`
	CoachID    uint      `gorm:"not null;uniqueIndex:idx_coaching_pair" json:"coach_id"`
	DateJoined time.Time `gorm:"autoCreateTime" json:"date_joined"`
}

type Organisation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Size        int       `json:"size"`
	Description string    `json:"description"`
	LoginUsers  []User    `gorm:"many2many:organisation_login_users" json:"login_users,omitempty"`
	Members     []User    `gorm:"many2many:organisation_members" json:"members,omitempty"`
	// OwnAssessments are either extra items shown together with other public
	// items, or the only items shown when OwnAssessmentsOnly is set.
	OwnAssessments     []Assessment `gorm:"many2many:organisation_own_assessments" json:"own_assessments,omitempty"`
	OwnAssessmentsOnly bool         `gorm:"default:false" json:"own_assessments_only"`
}

// CreateUserWithProfiles creates the user row together with its typed profile
// and the assessor/assessed projections in one transaction. Organisation
// accounts get no projections because organisations are not assessable.
func CreateUserWithProfiles(db *gorm.DB, user *User) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		switch user.UserType {
		case UserTypeAthlete:
			if err := tx.Create(&AthleteUser{UserID: user.ID}).Error; err != nil {
				return err
			}
			if err := tx.Create(&Assessor{AthleteID: &user.ID}).Error; err != nil {
				return err
			}
			return tx.Create(&Assessed{AthleteID: &user.ID}).Error
		case UserTypeCoach:
			if err := tx.Create(&CoachUser{UserID: user.ID}).Error; err != nil {
				return err
			}
			if err := tx.Create(&Assessor{CoachID: &user.ID}).Error; err != nil {
				return err
			}
			return tx.Create(&Assessed{CoachID: &user.ID}).Error
		}
		return nil
	})
}

// AssessorOf returns the user's assessor projection.
func AssessorOf(db *gorm.DB, user *User) (*Assessor, error) {
	var assessor Assessor
	var err error
	switch user.UserType {
	case UserTypeAthlete:
		err = db.Where("athlete_id = ?", user.ID).First(&assessor).Error
	case UserTypeCoach:
		err = db.Where("coach_id = ?", user.ID).First(&assessor).Error
	default:
		return nil, fmt.Errorf("user %d has no assessor projection", user.ID)
	}
	if err != nil {
		return nil, err
	}
	return &assessor, nil
}

// AssessedOf returns the user's assessed projection.
func AssessedOf(db *gorm.DB, user *User) (*Assessed, error) {
	var assessed Assessed
	var err error
	switch user.UserType {
	case UserTypeAthlete:
		err = db.Where("athlete_id = ?", user.ID).First(&assessed).Error
	case UserTypeCoach:
		err = db.Where("coach_id = ?", user.ID).First(&assessed).Error
	default:
		return nil, fmt.Errorf("user %d has no assessed projection", user.ID)
	}
	if err != nil {
		return nil, err
	}
	return &assessed, nil
}

// EnsureCoaching creates the athlete-coach link unless it already exists.
func EnsureCoaching(db *gorm.DB, athleteUserID, coachUserID uint) error {
	var count int64
	if err := db.Model(&Coaching{}).
		Where("athlete_id = ? AND coach_id = ?", athleteUserID, coachUserID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&Coaching{AthleteID: athleteUserID, CoachID: coachUserID}).Error
}

// MemberOrganisationIDs returns the ids of the organisations the user belongs
// to, either as a member or as an organisation login user.
func MemberOrganisationIDs(db *gorm.DB, user *User) ([]uint, error) {
	var ids []uint
	if err := db.Table("organisation_members").
		Where("user_id = ?", user.ID).
		Pluck("organisation_id", &ids).Error; err != nil {
		return nil, err
	}
	if user.IsOrganisation() {
		var loginIDs []uint
		if err := db.Table("organisation_login_users").
			Where("user_id = ?", user.ID).
			Pluck("organisation_id", &loginIDs).Error; err != nil {
			return nil, err
		}
		ids = append(ids, loginIDs...)
	}
	return ids, nil
}
