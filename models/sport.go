package models

import (
	"time"
)

type Sport struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null;size:128" json:"name"`
	Description string `gorm:"size:500" json:"description"`
	IsAvailable bool   `gorm:"default:true" json:"is_available"`
}

func (s *Sport) PrimaryID() uint      { return s.ID }
func (s *Sport) SetPrimaryID(id uint) { s.ID = id }

// ChosenSport links a user to a sport on their profile. One row is created
// per user whenever a new sport enters the catalog.
type ChosenSport struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_chosen_sport" json:"user_id"`
	SportID     uint      `gorm:"not null;uniqueIndex:idx_chosen_sport" json:"sport_id"`
	DateJoined  time.Time `gorm:"autoCreateTime" json:"date_joined"`
	IsChosen    bool      `gorm:"default:false" json:"is_chosen"`
	IsDisplayed bool      `gorm:"default:false" json:"is_displayed"`
}
