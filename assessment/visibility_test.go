package assessment_test

import (
	"testing"

	"sportrecord/assessment"
	"sportrecord/database"
	"sportrecord/models"
	"sportrecord/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type catalogFixture struct {
	reg      *database.Registry
	db       *gorm.DB
	cache    *assessment.TreeCache
	resolver *assessment.VisibilityResolver
	format   *models.AssessmentFormat
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	reg := testutil.NewRegistry(t, "ca")
	db, err := reg.Resolve("ca")
	require.NoError(t, err)
	cache := assessment.NewTreeCache(reg)
	return &catalogFixture{
		reg:      reg,
		db:       db,
		cache:    cache,
		resolver: assessment.NewVisibilityResolver(reg, cache),
		format:   testutil.CreateFormat(t, db, "cm", ""),
	}
}

func (f *catalogFixture) render(t *testing.T, user *models.User) *assessment.RenderedTree {
	t.Helper()
	f.cache.Invalidate("ca")
	viewer, err := assessment.NewViewerContext(f.db, user)
	require.NoError(t, err)
	tree, err := f.resolver.Render("ca", viewer)
	require.NoError(t, err)
	return tree
}

func TestPublicAssessmentVisibleToEveryone(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	sub := testutil.CreateSubCategory(t, f.db, "Speed", top.ID)
	testutil.CreateAssessment(t, f.db, "Sprint 40m", sub.ID, f.format.ID, testutil.AssessmentOpts{})

	viewer := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	tree := f.render(t, viewer)

	require.Len(t, tree.TopCategories, 1)
	require.Len(t, tree.TopCategories[0].SubCategories, 1)
	sc := tree.TopCategories[0].SubCategories[0]
	require.Len(t, sc.Assessments, 1)
	assert.Equal(t, "Sprint 40m", sc.Assessments[0].Name)
	assert.True(t, sc.IsFlat)
}

func TestPrivateAssessmentHiddenWithoutScope(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	sub := testutil.CreateSubCategory(t, f.db, "Strength", top.ID)
	private := testutil.CreateAssessment(t, f.db, "Club Lift", sub.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})

	viewer := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	tree := f.render(t, viewer)
	assert.Empty(t, tree.TopCategories, "private assessment must not leak; empty branches are pruned")

	// Scoping the assessment to the viewer's team makes it visible.
	coach := testutil.CreateUser(t, f.db, "coach@example.com", "ca", models.UserTypeCoach)
	team := testutil.CreateTeam(t, f.db, "Lifters", coach, true)
	require.NoError(t, team.AddMember(f.db, viewer))
	require.NoError(t, f.db.Model(team).Association("Assessments").Append(private))

	tree = f.render(t, viewer)
	require.Len(t, tree.TopCategories, 1)
	assert.Equal(t, []uint{private.ID}, tree.AssessmentIDs())
}

func TestAlienOrganisationHidesWholeGroup(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	sub := testutil.CreateSubCategory(t, f.db, "Endurance", top.ID)
	alienItem := testutil.CreateAssessment(t, f.db, "Club Run", sub.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})

	orgUser := testutil.CreateUser(t, f.db, "org@example.com", "ca", models.UserTypeOrganisation)
	org := testutil.CreateOrganisation(t, f.db, "Alien Club", false, orgUser)
	require.NoError(t, f.db.Model(org).Association("OwnAssessments").Append(alienItem))

	viewer := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	tree := f.render(t, viewer)
	assert.Empty(t, tree.TopCategories)

	// A public sibling readmits the sub-category, but the alien private item
	// itself stays hidden.
	public := testutil.CreateAssessment(t, f.db, "Open Run", sub.ID, f.format.ID, testutil.AssessmentOpts{})
	tree = f.render(t, viewer)
	assert.Equal(t, []uint{public.ID}, tree.AssessmentIDs())

	// Members of the owning organisation see both.
	member := testutil.CreateUser(t, f.db, "member@example.com", "ca", models.UserTypeAthlete)
	require.NoError(t, f.db.Model(org).Association("Members").Append(member))
	tree = f.render(t, member)
	assert.ElementsMatch(t, []uint{alienItem.ID, public.ID}, tree.AssessmentIDs())
}

func TestOwnAssessmentsOnlyMode(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	curatedSub := testutil.CreateSubCategory(t, f.db, "Curated", top.ID)
	openSub := testutil.CreateSubCategory(t, f.db, "Open", top.ID)

	curated := testutil.CreateAssessment(t, f.db, "Org Drill", curatedSub.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})
	testutil.CreateAssessment(t, f.db, "Plain Public", openSub.ID, f.format.ID, testutil.AssessmentOpts{})
	everywhere := testutil.CreateAssessment(t, f.db, "Universal", openSub.ID, f.format.ID,
		testutil.AssessmentOpts{IsPublicEverywhere: true})

	member := testutil.CreateUser(t, f.db, "member@example.com", "ca", models.UserTypeAthlete)
	org := testutil.CreateOrganisation(t, f.db, "Strict Club", true, member)
	require.NoError(t, f.db.Model(org).Association("OwnAssessments").Append(curated))

	// Own-only membership narrows the tree to curated plus universally
	// public items; plain public items disappear.
	tree := f.render(t, member)
	assert.ElementsMatch(t, []uint{curated.ID, everywhere.ID}, tree.AssessmentIDs())

	// An unaffiliated viewer is unaffected by the strict organisation, and
	// never sees its curated private item.
	outsider := testutil.CreateUser(t, f.db, "outsider@example.com", "ca", models.UserTypeAthlete)
	tree = f.render(t, outsider)
	for _, id := range tree.AssessmentIDs() {
		assert.NotEqual(t, curated.ID, id)
	}
}

func TestIsFlatIgnoresViewerFiltering(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	parent := testutil.CreateSubCategory(t, f.db, "Parent", top.ID)
	child := testutil.CreateNestedSubCategory(t, f.db, "Child", parent.ID)

	testutil.CreateAssessment(t, f.db, "Members Only", parent.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})
	public := testutil.CreateAssessment(t, f.db, "Child Open", child.ID, f.format.ID,
		testutil.AssessmentOpts{})

	viewer := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	tree := f.render(t, viewer)

	require.Len(t, tree.TopCategories, 1)
	require.Len(t, tree.TopCategories[0].SubCategories, 1)
	node := tree.TopCategories[0].SubCategories[0]
	assert.Empty(t, node.Assessments, "the private item stays hidden")
	assert.True(t, node.IsFlat, "the hint reflects the full catalog, not the filtered view")
	assert.Equal(t, []uint{public.ID}, tree.AssessmentIDs())
}

func TestTeamMembershipExtendsToOwningOrganisation(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	curatedSub := testutil.CreateSubCategory(t, f.db, "Curated", top.ID)
	openSub := testutil.CreateSubCategory(t, f.db, "Open", top.ID)
	curated := testutil.CreateAssessment(t, f.db, "Org Drill", curatedSub.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})
	plain := testutil.CreateAssessment(t, f.db, "Plain Public", openSub.ID, f.format.ID,
		testutil.AssessmentOpts{})

	orgUser := testutil.CreateUser(t, f.db, "org@example.com", "ca", models.UserTypeOrganisation)
	org := testutil.CreateOrganisation(t, f.db, "Strict Club", true)
	require.NoError(t, f.db.Model(org).Association("OwnAssessments").Append(curated))

	team := testutil.CreateTeam(t, f.db, "Org Squad", orgUser, true)
	require.NoError(t, f.db.Model(team).Update("organisation_id", org.ID).Error)

	// The athlete's only link to the organisation is membership of its team;
	// that still puts them inside the organisation's scope.
	athlete := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	require.NoError(t, team.AddMember(f.db, athlete))

	tree := f.render(t, athlete)
	assert.Contains(t, tree.AssessmentIDs(), curated.ID)
	assert.NotContains(t, tree.AssessmentIDs(), plain.ID,
		"the strict organisation's own-only mode applies through the team")
}

func TestGroupStatsSpanNestedSubCategories(t *testing.T) {
	f := newCatalogFixture(t)
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	parent := testutil.CreateSubCategory(t, f.db, "Parent", top.ID)
	child := testutil.CreateNestedSubCategory(t, f.db, "Child", parent.ID)

	// An alien private item under the child taints the whole group.
	alienItem := testutil.CreateAssessment(t, f.db, "Nested Club Item", child.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})
	orgUser := testutil.CreateUser(t, f.db, "org@example.com", "ca", models.UserTypeOrganisation)
	org := testutil.CreateOrganisation(t, f.db, "Alien Club", false, orgUser)
	require.NoError(t, f.db.Model(org).Association("OwnAssessments").Append(alienItem))

	testutil.CreateAssessment(t, f.db, "Parent Private", parent.ID, f.format.ID,
		testutil.AssessmentOpts{IsPrivate: true})

	viewer := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	tree := f.render(t, viewer)
	assert.Empty(t, tree.TopCategories)

	// A public item under the parent lifts the group back in. The nested
	// private items stay hidden at the assessment level.
	public := testutil.CreateAssessment(t, f.db, "Parent Public", parent.ID, f.format.ID,
		testutil.AssessmentOpts{})
	tree = f.render(t, viewer)
	assert.Equal(t, []uint{public.ID}, tree.AssessmentIDs())
	require.Len(t, tree.TopCategories, 1)
	require.Len(t, tree.TopCategories[0].SubCategories, 1)
	assert.Empty(t, tree.TopCategories[0].SubCategories[0].SubCategories,
		"child sub-category with nothing visible is pruned")
}
