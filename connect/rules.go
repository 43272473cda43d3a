package connect

import (
	"sportrecord/models"
)

// RelationKind classifies how two users became connected.
type RelationKind int

const (
	// RelationDirect is a 1:1 invite between an athlete and a coach.
	RelationDirect RelationKind = iota
	// RelationTeamMate links a joining member with an existing
	// opposite-role member of the same team.
	RelationTeamMate
	// RelationTeamOwner links a joining member with the team's owner when
	// the owner is a coach rather than an organisation.
	RelationTeamOwner
)

// AccessLevel is what an assessor is granted across top categories.
type AccessLevel int

const (
	// AccessAll opens every top category.
	AccessAll AccessLevel = iota
	// AccessDefaultOnly opens only the default-open top category; all other
	// categories get a closed row that the assessed can open later.
	AccessDefaultOnly
)

// RuleKey identifies one relationship configuration. For team relations the
// requester is the pre-existing side (member or owner) and the recipient is
// the joining member.
type RuleKey struct {
	Kind      RelationKind
	Requester models.UserType
	Recipient models.UserType
}

// GrantAction is one directional permission grant produced by a rule.
type GrantAction struct {
	AssessorIsRecipient bool
	Level               AccessLevel
}

// ConnectionRules is the declarative fan-out table: every connection event
// expands into the grant actions listed for its configuration. Pairs absent
// from the table (same-role team mates, anything involving an organisation
// account) produce no grants.
var ConnectionRules = map[RuleKey][]GrantAction{
	{RelationDirect, models.UserTypeAthlete, models.UserTypeCoach}: {
		{AssessorIsRecipient: true, Level: AccessAll},
		{AssessorIsRecipient: false, Level: AccessDefaultOnly},
	},
	{RelationDirect, models.UserTypeCoach, models.UserTypeAthlete}: {
		{AssessorIsRecipient: false, Level: AccessAll},
		{AssessorIsRecipient: true, Level: AccessDefaultOnly},
	},
	{RelationTeamMate, models.UserTypeCoach, models.UserTypeAthlete}: {
		{AssessorIsRecipient: false, Level: AccessAll},
		{AssessorIsRecipient: true, Level: AccessDefaultOnly},
	},
	{RelationTeamMate, models.UserTypeAthlete, models.UserTypeCoach}: {
		{AssessorIsRecipient: true, Level: AccessAll},
		{AssessorIsRecipient: false, Level: AccessDefaultOnly},
	},
	{RelationTeamOwner, models.UserTypeCoach, models.UserTypeAthlete}: {
		{AssessorIsRecipient: false, Level: AccessAll},
		{AssessorIsRecipient: true, Level: AccessDefaultOnly},
	},
	// A coach joining a team owned by a coach assesses the owner fully;
	// the owner gets only the default-open category on the new coach.
	{RelationTeamOwner, models.UserTypeCoach, models.UserTypeCoach}: {
		{AssessorIsRecipient: true, Level: AccessAll},
		{AssessorIsRecipient: false, Level: AccessDefaultOnly},
	},
}
