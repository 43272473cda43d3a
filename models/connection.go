package models

import (
	"gorm.io/gorm"
)

// IsConnectedTo reports whether user may interact with the other user through
// a direct coaching link, a shared team, or a team/organisation ownership
// edge. Both users live on the same shard; the caller passes that shard's
// handle.
func IsConnectedTo(db *gorm.DB, user *User, otherUserID uint) (bool, error) {
	switch user.UserType {
	case UserTypeAthlete:
		return athleteConnectedTo(db, user.ID, otherUserID)
	case UserTypeCoach:
		return coachConnectedTo(db, user.ID, otherUserID)
	case UserTypeOrganisation:
		return organisationConnectedTo(db, user, otherUserID)
	}
	return false, nil
}

func athleteConnectedTo(db *gorm.DB, athleteID, otherUserID uint) (bool, error) {
	var count int64
	if err := db.Model(&Coaching{}).
		Where("athlete_id = ? AND coach_id = ?", athleteID, otherUserID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Shared team with a coach member.
	if err := db.Table("team_athletes ta").
		Joins("JOIN team_coaches tc ON tc.team_id = ta.team_id").
		Where("ta.athlete_user_id = ? AND tc.coach_user_id = ?", athleteID, otherUserID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Member of a team owned by the other user.
	err := db.Table("team_athletes ta").
		Joins("JOIN teams t ON t.id = ta.team_id").
		Where("ta.athlete_user_id = ? AND t.owner_id = ?", athleteID, otherUserID).
		Count(&count).Error
	return count > 0, err
}

func coachConnectedTo(db *gorm.DB, coachID, otherUserID uint) (bool, error) {
	var count int64
	if err := db.Model(&Coaching{}).
		Where("coach_id = ? AND athlete_id = ?", coachID, otherUserID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Athlete on a team the coach owns.
	if err := db.Table("team_athletes ta").
		Joins("JOIN teams t ON t.id = ta.team_id").
		Where("t.owner_id = ? AND ta.athlete_user_id = ?", coachID, otherUserID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	// Shared team with an athlete member.
	err := db.Table("team_coaches tc").
		Joins("JOIN team_athletes ta ON ta.team_id = tc.team_id").
		Where("tc.coach_user_id = ? AND ta.athlete_user_id = ?", coachID, otherUserID).
		Count(&count).Error
	return count > 0, err
}

func organisationConnectedTo(db *gorm.DB, org *User, otherUserID uint) (bool, error) {
	orgIDs, err := MemberOrganisationIDs(db, org)
	if err != nil {
		return false, err
	}

	teams := db.Model(&Team{}).Select("id").Where("owner_id = ?", org.ID)
	if len(orgIDs) > 0 {
		teams = teams.Or("organisation_id IN ?", orgIDs)
	}

	var count int64
	if err := db.Table("team_athletes ta").
		Where("ta.team_id IN (?) AND ta.athlete_user_id = ?", teams, otherUserID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	err = db.Table("team_coaches tc").
		Where("tc.team_id IN (?) AND tc.coach_user_id = ?", teams, otherUserID).
		Count(&count).Error
	return count > 0, err
}
