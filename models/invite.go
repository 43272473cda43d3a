package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteCanceled = "canceled"
)

type Invite struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequesterID   uint      `gorm:"not null;index" json:"requester_id"`
	Requester     User      `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	TeamID        *uint     `gorm:"index" json:"team_id"`
	Team          *Team     `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Token         string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	DateSent      time.Time `gorm:"autoCreateTime" json:"date_sent"`
	Status        string    `gorm:"not null;size:10" json:"status"`
	Recipient     string    `gorm:"not null;size:255" json:"recipient"`
	RecipientType UserType  `gorm:"size:50" json:"recipient_type"`
}

func NewInviteToken() string {
	return uuid.NewString()
}

func (i *Invite) IsPending() bool {
	return i.Status == InvitePending
}

func (i *Invite) IsExpired(expiration time.Duration, now time.Time) bool {
	return i.DateSent.Add(expiration).Before(now)
}

// PendingInvitesBetween returns non-expired pending invites in either
// direction between the two users.
func PendingInvitesBetween(db *gorm.DB, a, b *User, expiration time.Duration) ([]Invite, error) {
	var invites []Invite
	cutoff := time.Now().Add(-expiration)
	err := db.Where("status = ? AND date_sent > ?", InvitePending, cutoff).
		Where(db.Where("requester_id = ? AND recipient = ?", a.ID, b.Email).
			Or("requester_id = ? AND recipient = ?", b.ID, a.Email)).
		Find(&invites).Error
	return invites, err
}
