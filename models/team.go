package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TeamStatusActive   = "active"
	TeamStatusArchived = "archived"
)

type Team struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Name           string        `gorm:"not null;size:255" json:"name"`
	Status         string        `gorm:"size:30;default:active" json:"status"`
	Tagline        string        `gorm:"size:500" json:"tagline"`
	Location       string        `gorm:"size:255" json:"location"`
	Season         string        `gorm:"size:25" json:"season"`
	OwnerID        uint          `gorm:"not null;index" json:"owner_id"`
	Owner          User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	SportID        *uint         `json:"sport_id"`
	DateCreated    time.Time     `gorm:"autoCreateTime" json:"date_created"`
	IsPrivate      bool          `gorm:"default:false" json:"is_private"`
	OrganisationID *uint         `gorm:"index" json:"organisation_id"`
	Organisation   *Organisation `gorm:"foreignKey:OrganisationID" json:"organisation,omitempty"`
	Athletes       []AthleteUser `gorm:"many2many:team_athletes;joinForeignKey:TeamID;joinReferences:AthleteUserID" json:"athletes,omitempty"`
	Coaches        []CoachUser   `gorm:"many2many:team_coaches;joinForeignKey:TeamID;joinReferences:CoachUserID" json:"coaches,omitempty"`
	// Assessments is the team's private assessment set, visible to members only.
	Assessments []Assessment `gorm:"many2many:team_assessments" json:"assessments,omitempty"`
}

// AddMember appends the user to the role-matching membership set. Re-adding
// a member already present in the loaded associations is a no-op.
func (t *Team) AddMember(db *gorm.DB, user *User) error {
	switch user.UserType {
	case UserTypeAthlete:
		if t.HasAthlete(user.ID) {
			return nil
		}
		return db.Model(t).Association("Athletes").Append(&AthleteUser{UserID: user.ID})
	case UserTypeCoach:
		if t.HasCoach(user.ID) {
			return nil
		}
		return db.Model(t).Association("Coaches").Append(&CoachUser{UserID: user.ID})
	}
	return nil
}

func (t *Team) HasAthlete(userID uint) bool {
	for _, a := range t.Athletes {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

func (t *Team) HasCoach(userID uint) bool {
	for _, c := range t.Coaches {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
