package models

import (
	"time"
)

type Promocode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;not null;size:32" json:"code"`
	Discount  uint      `gorm:"not null" json:"discount"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	Active    bool      `gorm:"default:true" json:"active"`
}

func (p *Promocode) PrimaryID() uint      { return p.ID }
func (p *Promocode) SetPrimaryID(id uint) { p.ID = id }

func (p *Promocode) IsValidAt(now time.Time) bool {
	return p.Active && !now.Before(p.StartDate) && now.Before(p.EndDate)
}
