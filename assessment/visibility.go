package assessment

import (
	"sportrecord/database"
	"sportrecord/models"

	"gorm.io/gorm"
)

// ViewerContext carries everything about a viewer that affects catalog
// visibility: organisation memberships and the privately scoped assessment
// ids reachable through those organisations and the viewer's teams.
type ViewerContext struct {
	UserID        uint
	OrgIDs        []uint
	OwnOnlyOrgIDs []uint

	orgSet            map[uint]bool
	OrgAssessmentIDs  map[uint]bool
	TeamAssessmentIDs map[uint]bool
}

// NewViewerContext gathers the viewer's organisation and team scope from the
// shard the viewer lives on.
func NewViewerContext(db *gorm.DB, user *models.User) (*ViewerContext, error) {
	vc := &ViewerContext{
		UserID:            user.ID,
		orgSet:            make(map[uint]bool),
		OrgAssessmentIDs:  make(map[uint]bool),
		TeamAssessmentIDs: make(map[uint]bool),
	}

	orgIDs, err := models.MemberOrganisationIDs(db, user)
	if err != nil {
		return nil, err
	}

	teamIDs, err := viewerTeamIDs(db, user)
	if err != nil {
		return nil, err
	}

	// Belonging to an organisation's team counts as belonging to the
	// organisation.
	if len(teamIDs) > 0 {
		var teamOrgIDs []uint
		if err := db.Model(&models.Team{}).
			Where("id IN ? AND organisation_id IS NOT NULL", teamIDs).
			Pluck("organisation_id", &teamOrgIDs).Error; err != nil {
			return nil, err
		}
		orgIDs = append(orgIDs, teamOrgIDs...)
	}

	for _, id := range orgIDs {
		if !vc.orgSet[id] {
			vc.orgSet[id] = true
			vc.OrgIDs = append(vc.OrgIDs, id)
		}
	}

	if len(vc.OrgIDs) > 0 {
		var orgs []models.Organisation
		if err := db.Where("id IN ?", vc.OrgIDs).Find(&orgs).Error; err != nil {
			return nil, err
		}
		for _, org := range orgs {
			if org.OwnAssessmentsOnly {
				vc.OwnOnlyOrgIDs = append(vc.OwnOnlyOrgIDs, org.ID)
			}
		}

		var ownIDs []uint
		if err := db.Table("organisation_own_assessments").
			Where("organisation_id IN ?", vc.OrgIDs).
			Pluck("assessment_id", &ownIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range ownIDs {
			vc.OrgAssessmentIDs[id] = true
		}
	}
	if len(teamIDs) > 0 {
		var teamAssessmentIDs []uint
		if err := db.Table("team_assessments").
			Where("team_id IN ?", teamIDs).
			Pluck("assessment_id", &teamAssessmentIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range teamAssessmentIDs {
			vc.TeamAssessmentIDs[id] = true
		}
	}

	return vc, nil
}

func (vc *ViewerContext) ownOnlyMode() bool {
	return len(vc.OwnOnlyOrgIDs) > 0
}

func viewerTeamIDs(db *gorm.DB, user *models.User) ([]uint, error) {
	var ids []uint
	switch user.UserType {
	case models.UserTypeAthlete:
		err := db.Table("team_athletes").Where("athlete_user_id = ?", user.ID).
			Pluck("team_id", &ids).Error
		return ids, err
	case models.UserTypeCoach:
		err := db.Table("team_coaches").Where("coach_user_id = ?", user.ID).
			Pluck("team_id", &ids).Error
		return ids, err
	}
	return nil, nil
}

type RenderedAssessment struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	IsPrivate   bool   `json:"is_private"`
}

type RenderedSubCategory struct {
	ID            uint                  `json:"id"`
	Name          string                `json:"name"`
	IsFlat        bool                  `json:"is_flat"`
	Assessments   []RenderedAssessment  `json:"assessments,omitempty"`
	SubCategories []RenderedSubCategory `json:"sub_categories,omitempty"`
}

type RenderedTopCategory struct {
	ID            uint                  `json:"id"`
	Name          string                `json:"name"`
	SubCategories []RenderedSubCategory `json:"sub_categories,omitempty"`
}

type RenderedTree struct {
	TopCategories []RenderedTopCategory `json:"top_categories"`
}

// AssessmentIDs flattens the rendered tree into the set of visible
// assessment ids.
func (t *RenderedTree) AssessmentIDs() []uint {
	var ids []uint
	var walk func(subs []RenderedSubCategory)
	walk = func(subs []RenderedSubCategory) {
		for _, sc := range subs {
			for _, a := range sc.Assessments {
				ids = append(ids, a.ID)
			}
			walk(sc.SubCategories)
		}
	}
	for _, tc := range t.TopCategories {
		walk(tc.SubCategories)
	}
	return ids
}

// orgEdge is one (assessment, organisation) ownership link.
type orgEdge struct {
	OrgID        uint `gorm:"column:org_id"`
	OwnOnly      bool `gorm:"column:own_only"`
	AssessmentID uint `gorm:"column:assessment_id"`
}

// subCategoryStats aggregates visibility inputs the way the original
// recursive query did: organisation counts are computed over the whole
// top-level group a sub-category belongs to, public counts over the
// sub-category's own assessments.
type subCategoryStats struct {
	groupOurOwnOnly     bool
	groupOurPrivate     bool
	groupAlien          bool
	hasPublicEverywhere bool
	hasPublic           bool
}

// VisibilityResolver computes, per viewer, the visible subset of a shard's
// assessment tree.
type VisibilityResolver struct {
	reg   *database.Registry
	cache *TreeCache
}

func NewVisibilityResolver(reg *database.Registry, cache *TreeCache) *VisibilityResolver {
	return &VisibilityResolver{reg: reg, cache: cache}
}

// Render returns the viewer's tree: visible assessments plus the minimal set
// of ancestor categories needed to present them, in id order.
func (r *VisibilityResolver) Render(shard database.ShardKey, viewer *ViewerContext) (*RenderedTree, error) {
	db, err := r.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	tree, err := r.cache.Get(shard)
	if err != nil {
		return nil, err
	}

	var edges []orgEdge
	if err := db.Table("organisation_own_assessments oa").
		Joins("JOIN organisations o ON o.id = oa.organisation_id").
		Select("oa.organisation_id AS org_id, o.own_assessments_only AS own_only, oa.assessment_id AS assessment_id").
		Scan(&edges).Error; err != nil {
		return nil, err
	}
	edgesByAssessment := make(map[uint][]orgEdge)
	for _, e := range edges {
		edgesByAssessment[e.AssessmentID] = append(edgesByAssessment[e.AssessmentID], e)
	}

	included := r.includedSubCategories(tree, viewer, edgesByAssessment)

	rendered := &RenderedTree{}
	for i := range tree.TopCategories {
		tc := &tree.TopCategories[i]
		node := RenderedTopCategory{ID: tc.ID, Name: tc.Name}
		for _, sc := range tree.TopLevelSubCategories(tc) {
			if child, ok := r.renderSubCategory(tree, sc, viewer, included, true); ok {
				node.SubCategories = append(node.SubCategories, child)
			}
		}
		if len(node.SubCategories) > 0 {
			rendered.TopCategories = append(rendered.TopCategories, node)
		}
	}
	return rendered, nil
}

// includedSubCategories evaluates the two decision rules over the transitive
// closure of every top-level sub-category group.
func (r *VisibilityResolver) includedSubCategories(tree *Tree, viewer *ViewerContext,
	edgesByAssessment map[uint][]orgEdge) map[uint]bool {

	ownOnlySet := make(map[uint]bool, len(viewer.OwnOnlyOrgIDs))
	for _, id := range viewer.OwnOnlyOrgIDs {
		ownOnlySet[id] = true
	}

	included := make(map[uint]bool)
	for i := range tree.SubCategories {
		top := &tree.SubCategories[i]
		if top.ParentTopCategoryID == nil {
			continue
		}

		// Collect the whole group below this top-level sub-category.
		group := []*models.AssessmentSubCategory{top}
		for cursor := 0; cursor < len(group); cursor++ {
			group = append(group, tree.ChildSubCategories(group[cursor])...)
		}

		stats := make(map[uint]*subCategoryStats, len(group))
		var groupOurOwnOnly, groupOurPrivate, groupAlien bool
		for _, sc := range group {
			st := &subCategoryStats{}
			stats[sc.ID] = st
			for _, a := range tree.AssessmentsUnder(sc) {
				if a.IsPublicEverywhere {
					st.hasPublicEverywhere = true
				}
				if !a.IsPrivate {
					st.hasPublic = true
				}
				for _, e := range edgesByAssessment[a.ID] {
					if ownOnlySet[e.OrgID] && e.OwnOnly {
						groupOurOwnOnly = true
					}
					if viewer.orgSet[e.OrgID] {
						groupOurPrivate = true
					} else {
						groupAlien = true
					}
				}
			}
		}

		for _, sc := range group {
			st := stats[sc.ID]
			st.groupOurOwnOnly = groupOurOwnOnly
			st.groupOurPrivate = groupOurPrivate
			st.groupAlien = groupAlien

			if viewer.ownOnlyMode() {
				// Strict allow-list: only org-curated plus universally
				// public items.
				included[sc.ID] = st.groupOurOwnOnly || st.hasPublicEverywhere
			} else {
				included[sc.ID] = !st.groupAlien || st.groupOurPrivate ||
					st.hasPublicEverywhere || st.hasPublic
			}
		}
	}
	return included
}

func (r *VisibilityResolver) renderSubCategory(tree *Tree, sc *models.AssessmentSubCategory,
	viewer *ViewerContext, included map[uint]bool, underTop bool) (RenderedSubCategory, bool) {

	node := RenderedSubCategory{ID: sc.ID, Name: sc.Name}

	if included[sc.ID] {
		for _, a := range tree.AssessmentsUnder(sc) {
			if !r.assessmentVisible(a, viewer) {
				continue
			}
			node.Assessments = append(node.Assessments, RenderedAssessment{
				ID:          a.ID,
				Name:        a.Name,
				Description: a.Description,
				Unit:        a.Format.Unit,
				IsPrivate:   a.IsPrivate,
			})
		}
	}
	for _, child := range tree.ChildSubCategories(sc) {
		if childNode, ok := r.renderSubCategory(tree, child, viewer, included, false); ok {
			node.SubCategories = append(node.SubCategories, childNode)
		}
	}

	// Rendering hint: a sub-category directly under a top category holding
	// leaf assessments. Keyed off the full catalog, not the filtered view,
	// so the hint is stable across viewers.
	node.IsFlat = underTop && len(tree.AssessmentsUnder(sc)) > 0

	if len(node.Assessments) == 0 && len(node.SubCategories) == 0 {
		return node, false
	}
	return node, true
}

func (r *VisibilityResolver) assessmentVisible(a *models.Assessment, viewer *ViewerContext) bool {
	if viewer.ownOnlyMode() {
		return a.IsPublicEverywhere ||
			viewer.OrgAssessmentIDs[a.ID] ||
			viewer.TeamAssessmentIDs[a.ID]
	}
	return !a.IsPrivate ||
		a.IsPublicEverywhere ||
		viewer.OrgAssessmentIDs[a.ID] ||
		viewer.TeamAssessmentIDs[a.ID]
}
