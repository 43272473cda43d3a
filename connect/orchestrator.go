package connect

import (
	"fmt"
	"time"

	"sportrecord/assessment"
	"sportrecord/database"
	"sportrecord/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Orchestrator reacts to connection lifecycle events, rewriting the
// permission graph and coaching links on the resolved shard.
type Orchestrator struct {
	reg                   *database.Registry
	cache                 *assessment.TreeCache
	notifier              Notifier
	defaultOpenCategoryID uint
	inviteExpiration      time.Duration
	log                   *zap.Logger
}

func NewOrchestrator(reg *database.Registry, cache *assessment.TreeCache, notifier Notifier,
	defaultOpenCategoryID uint, inviteExpiration time.Duration, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		reg:                   reg,
		cache:                 cache,
		notifier:              notifier,
		defaultOpenCategoryID: defaultOpenCategoryID,
		inviteExpiration:      inviteExpiration,
		log:                   log,
	}
}

// participant bundles a user with its role projections.
type participant struct {
	user     *models.User
	assessor *models.Assessor
	assessed *models.Assessed
}

func loadParticipant(db *gorm.DB, user *models.User) (*participant, error) {
	assessor, err := models.AssessorOf(db, user)
	if err != nil {
		return nil, err
	}
	assessed, err := models.AssessedOf(db, user)
	if err != nil {
		return nil, err
	}
	return &participant{user: user, assessor: assessor, assessed: assessed}, nil
}

// pairing is one relationship edge produced by a connection event. For team
// relations the requester side is the pre-existing member or owner.
type pairing struct {
	kind      RelationKind
	requester *participant
	recipient *participant
}

// coachingPair is a pending coaching-link upsert.
type coachingPair struct {
	athleteUserID uint
	coachUserID   uint
}

// OnConnectionConfirmed handles an accepted invite: the recipient joins the
// team when one is attached, coaching links are ensured, and permission rows
// are fanned out for every top category according to the rule table.
// Re-running the fan-out for an already-connected pair is a no-op.
func (o *Orchestrator) OnConnectionConfirmed(shard database.ShardKey, requesterID, recipientID uint, teamID *uint) error {
	db, err := o.reg.Resolve(shard)
	if err != nil {
		return err
	}

	var requester, recipient models.User
	if err := db.First(&requester, requesterID).Error; err != nil {
		return fmt.Errorf("load requester %d: %w", requesterID, err)
	}
	if err := db.First(&recipient, recipientID).Error; err != nil {
		return fmt.Errorf("load recipient %d: %w", recipientID, err)
	}
	if recipient.IsOrganisation() {
		return fmt.Errorf("organisation accounts cannot be connected")
	}

	recipientP, err := loadParticipant(db, &recipient)
	if err != nil {
		return err
	}

	var pairings []pairing
	var coachings []coachingPair

	if requester.UserType != recipient.UserType && !requester.IsOrganisation() {
		requesterP, err := loadParticipant(db, &requester)
		if err != nil {
			return err
		}
		pairings = append(pairings, pairing{RelationDirect, requesterP, recipientP})
		coachings = append(coachings, orientCoaching(&requester, &recipient))
	}

	if teamID != nil {
		teamPairings, teamCoachings, err := o.teamPairings(db, *teamID, recipientP)
		if err != nil {
			return err
		}
		pairings = append(pairings, teamPairings...)
		coachings = append(coachings, teamCoachings...)
	}

	for _, c := range coachings {
		if err := models.EnsureCoaching(db, c.athleteUserID, c.coachUserID); err != nil {
			return err
		}
	}

	if err := o.fanOut(db, shard, pairings); err != nil {
		return err
	}

	// Fire and forget: a notification failure never rolls back the graph.
	if err := o.notifier.ConnectionConfirmed(&requester, &recipient); err != nil {
		o.log.Warn("connection notification failed", zap.Error(err))
	}
	return nil
}

// teamPairings expands a team join into edges with every opposite-role
// member and, for coach-owned teams, with the owner. Organisation owners get
// no edges: organisations are not assessable.
func (o *Orchestrator) teamPairings(db *gorm.DB, teamID uint, recipientP *participant) ([]pairing, []coachingPair, error) {
	var team models.Team
	if err := db.Preload("Athletes.User").Preload("Coaches.User").Preload("Owner").
		First(&team, teamID).Error; err != nil {
		return nil, nil, fmt.Errorf("load team %d: %w", teamID, err)
	}

	if err := team.AddMember(db, recipientP.user); err != nil {
		return nil, nil, err
	}

	var pairings []pairing
	var coachings []coachingPair

	switch recipientP.user.UserType {
	case models.UserTypeAthlete:
		for i := range team.Coaches {
			member := team.Coaches[i].User
			memberP, err := loadParticipant(db, &member)
			if err != nil {
				return nil, nil, err
			}
			pairings = append(pairings, pairing{RelationTeamMate, memberP, recipientP})
			coachings = append(coachings, coachingPair{recipientP.user.ID, member.ID})
		}
	case models.UserTypeCoach:
		for i := range team.Athletes {
			member := team.Athletes[i].User
			memberP, err := loadParticipant(db, &member)
			if err != nil {
				return nil, nil, err
			}
			pairings = append(pairings, pairing{RelationTeamMate, memberP, recipientP})
			coachings = append(coachings, coachingPair{member.ID, recipientP.user.ID})
		}
	}

	if team.Owner.IsCoach() && team.Owner.ID != recipientP.user.ID {
		ownerP, err := loadParticipant(db, &team.Owner)
		if err != nil {
			return nil, nil, err
		}
		pairings = append(pairings, pairing{RelationTeamOwner, ownerP, recipientP})
	}

	return pairings, coachings, nil
}

// fanOut writes one permission row per grant action and top category,
// keyed get_or_create so existing grants keep their access value.
func (o *Orchestrator) fanOut(db *gorm.DB, shard database.ShardKey, pairings []pairing) error {
	if len(pairings) == 0 {
		return nil
	}
	tree, err := o.cache.Get(shard)
	if err != nil {
		return err
	}

	for _, p := range pairings {
		key := RuleKey{Kind: p.kind, Requester: p.requester.user.UserType, Recipient: p.recipient.user.UserType}
		for _, action := range ConnectionRules[key] {
			assessor, assessed := p.requester, p.recipient
			if action.AssessorIsRecipient {
				assessor, assessed = p.recipient, p.requester
			}
			for i := range tree.TopCategories {
				tc := &tree.TopCategories[i]
				access := action.Level == AccessAll || tc.ID == o.defaultOpenCategoryID
				if err := assessment.GrantPermission(db, assessed.assessed.ID, assessor.assessor.ID, tc.ID, access); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// OnConnectionRevoked unlinks a direct athlete-coach connection: the
// coaching row, pending invites and both directional permission row sets
// between exactly that pair are removed. Team-mediated permissions with
// other members are left untouched and need separate per-pair revocation.
func (o *Orchestrator) OnConnectionRevoked(shard database.ShardKey, aID, bID uint) error {
	db, err := o.reg.Resolve(shard)
	if err != nil {
		return err
	}

	var a, b models.User
	if err := db.First(&a, aID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", aID, err)
	}
	if err := db.First(&b, bID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", bID, err)
	}
	if a.ID == b.ID {
		return fmt.Errorf("cannot unlink a user from themselves")
	}

	var athlete, coach *models.User
	switch {
	case a.IsAthlete() && b.IsCoach():
		athlete, coach = &a, &b
	case a.IsCoach() && b.IsAthlete():
		athlete, coach = &b, &a
	default:
		return fmt.Errorf("only athlete-coach connections can be unlinked")
	}

	if err := db.Where("athlete_id = ? AND coach_id = ?", athlete.ID, coach.ID).
		Delete(&models.Coaching{}).Error; err != nil {
		return err
	}

	pending, err := models.PendingInvitesBetween(db, &a, &b, o.inviteExpiration)
	if err != nil {
		return err
	}
	for i := range pending {
		pending[i].Status = models.InviteCanceled
		if err := db.Save(&pending[i]).Error; err != nil {
			return err
		}
	}

	aP, err := loadParticipant(db, &a)
	if err != nil {
		return err
	}
	bP, err := loadParticipant(db, &b)
	if err != nil {
		return err
	}

	if err := db.Where("assessed_id = ? AND assessor_id = ?", aP.assessed.ID, bP.assessor.ID).
		Delete(&models.AssessmentTopCategoryPermission{}).Error; err != nil {
		return err
	}
	if err := db.Where("assessed_id = ? AND assessor_id = ?", bP.assessed.ID, aP.assessor.ID).
		Delete(&models.AssessmentTopCategoryPermission{}).Error; err != nil {
		return err
	}

	if err := o.notifier.ConnectionRevoked(&a, &b); err != nil {
		o.log.Warn("revocation notification failed", zap.Error(err))
	}
	return nil
}

func orientCoaching(x, y *models.User) coachingPair {
	if x.IsAthlete() {
		return coachingPair{athleteUserID: x.ID, coachUserID: y.ID}
	}
	return coachingPair{athleteUserID: y.ID, coachUserID: x.ID}
}
