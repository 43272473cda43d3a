package assessment

import (
	"sync"

	"sportrecord/database"
	"sportrecord/models"

	"gorm.io/gorm"
)

// Tree is the immutable top-category → sub-category → assessment catalog of
// one shard, indexed with parent pointers for closure walks.
type Tree struct {
	TopCategories []models.AssessmentTopCategory
	SubCategories []models.AssessmentSubCategory
	Assessments   []models.Assessment

	topByID          map[uint]*models.AssessmentTopCategory
	subByID          map[uint]*models.AssessmentSubCategory
	assessmentByID   map[uint]*models.Assessment
	subsByTop        map[uint][]*models.AssessmentSubCategory
	subsBySub        map[uint][]*models.AssessmentSubCategory
	assessmentsBySub map[uint][]*models.Assessment
}

// LoadTree reads the full catalog of one shard, ordered by id so rendering
// preserves insertion order.
func LoadTree(db *gorm.DB) (*Tree, error) {
	t := &Tree{
		topByID:          make(map[uint]*models.AssessmentTopCategory),
		subByID:          make(map[uint]*models.AssessmentSubCategory),
		assessmentByID:   make(map[uint]*models.Assessment),
		subsByTop:        make(map[uint][]*models.AssessmentSubCategory),
		subsBySub:        make(map[uint][]*models.AssessmentSubCategory),
		assessmentsBySub: make(map[uint][]*models.Assessment),
	}

	if err := db.Order("id").Find(&t.TopCategories).Error; err != nil {
		return nil, err
	}
	if err := db.Order("id").Find(&t.SubCategories).Error; err != nil {
		return nil, err
	}
	if err := db.Preload("Format").Preload("RelationshipTypes").
		Order("id").Find(&t.Assessments).Error; err != nil {
		return nil, err
	}

	for i := range t.TopCategories {
		tc := &t.TopCategories[i]
		t.topByID[tc.ID] = tc
	}
	for i := range t.SubCategories {
		sc := &t.SubCategories[i]
		t.subByID[sc.ID] = sc
		if sc.ParentTopCategoryID != nil {
			t.subsByTop[*sc.ParentTopCategoryID] = append(t.subsByTop[*sc.ParentTopCategoryID], sc)
		} else if sc.ParentSubCategoryID != nil {
			t.subsBySub[*sc.ParentSubCategoryID] = append(t.subsBySub[*sc.ParentSubCategoryID], sc)
		}
	}
	for i := range t.Assessments {
		a := &t.Assessments[i]
		t.assessmentByID[a.ID] = a
		t.assessmentsBySub[a.ParentSubCategoryID] = append(t.assessmentsBySub[a.ParentSubCategoryID], a)
	}
	return t, nil
}

func (t *Tree) SubCategory(id uint) *models.AssessmentSubCategory {
	return t.subByID[id]
}

func (t *Tree) AssessmentByID(id uint) *models.Assessment {
	return t.assessmentByID[id]
}

func (t *Tree) ChildSubCategories(sc *models.AssessmentSubCategory) []*models.AssessmentSubCategory {
	return t.subsBySub[sc.ID]
}

func (t *Tree) TopLevelSubCategories(tc *models.AssessmentTopCategory) []*models.AssessmentSubCategory {
	return t.subsByTop[tc.ID]
}

func (t *Tree) AssessmentsUnder(sc *models.AssessmentSubCategory) []*models.Assessment {
	return t.assessmentsBySub[sc.ID]
}

// TopLevelAncestor walks the parent pointers up to the sub-category sitting
// directly under a top category.
func (t *Tree) TopLevelAncestor(subID uint) *models.AssessmentSubCategory {
	sc := t.subByID[subID]
	for sc != nil && sc.ParentSubCategoryID != nil {
		sc = t.subByID[*sc.ParentSubCategoryID]
	}
	return sc
}

// TopCategoryOf resolves an assessment's top category through its
// sub-category chain.
func (t *Tree) TopCategoryOf(a *models.Assessment) *models.AssessmentTopCategory {
	top := t.TopLevelAncestor(a.ParentSubCategoryID)
	if top == nil || top.ParentTopCategoryID == nil {
		return nil
	}
	return t.topByID[*top.ParentTopCategoryID]
}

// TreeCache keeps one read-mostly tree per shard. Trees are never shared
// across shards even though their content is nominally identical: each
// shard's copy may diverge after creation.
type TreeCache struct {
	reg *database.Registry

	mu    sync.RWMutex
	trees map[database.ShardKey]*Tree
}

func NewTreeCache(reg *database.Registry) *TreeCache {
	return &TreeCache{reg: reg, trees: make(map[database.ShardKey]*Tree)}
}

// Get returns the shard's cached tree, loading it on first use.
func (c *TreeCache) Get(shard database.ShardKey) (*Tree, error) {
	c.mu.RLock()
	tree, ok := c.trees[shard]
	c.mu.RUnlock()
	if ok {
		return tree, nil
	}

	db, err := c.reg.Resolve(shard)
	if err != nil {
		return nil, err
	}
	tree, err = LoadTree(db)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.trees[shard] = tree
	c.mu.Unlock()
	return tree, nil
}

// Invalidate drops the shard's cached tree after an admin write.
func (c *TreeCache) Invalidate(shard database.ShardKey) {
	c.mu.Lock()
	delete(c.trees, shard)
	c.mu.Unlock()
}

func (c *TreeCache) InvalidateAll() {
	c.mu.Lock()
	c.trees = make(map[database.ShardKey]*Tree)
	c.mu.Unlock()
}
