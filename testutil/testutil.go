package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"sportrecord/database"
	"sportrecord/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var shardCounter atomic.Uint64

// OpenShard opens a uniquely named in-memory database with the full schema.
// Each call is an isolated shard; the shared cache keeps it alive for the
// lifetime of the connection pool.
func OpenShard(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testshard_%d?mode=memory&cache=shared", shardCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// NewRegistry builds a registry over fresh in-memory shards, one per key.
func NewRegistry(t *testing.T, keys ...string) *database.Registry {
	t.Helper()

	shards := make(map[database.ShardKey]*gorm.DB, len(keys))
	for _, key := range keys {
		shards[database.ShardKey(key)] = OpenShard(t)
	}
	return database.NewRegistryFromDBs(shards, zap.NewNop())
}

// Logger returns a no-op logger for wiring services under test.
func Logger() *zap.Logger {
	return zap.NewNop()
}

// CreateUser creates a user with its profile and role projections.
func CreateUser(t *testing.T, db *gorm.DB, email, country string, userType models.UserType) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{
		Email:        email,
		Country:      country,
		PasswordHash: string(hash),
		UserType:     userType,
	}
	if err := models.CreateUserWithProfiles(db, user); err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// SeedRelationshipTypes creates the three standard relationship types and
// returns them keyed by type name.
func SeedRelationshipTypes(t *testing.T, db *gorm.DB) map[string]models.AssessmentRelationshipType {
	t.Helper()

	out := make(map[string]models.AssessmentRelationshipType)
	for _, name := range []string{
		models.RelationshipSelf, models.RelationshipAthleteCoach, models.RelationshipCoachAthlete,
	} {
		rt := models.AssessmentRelationshipType{Type: name}
		if err := db.Create(&rt).Error; err != nil {
			t.Fatalf("Failed to create relationship type %s: %v", name, err)
		}
		out[name] = rt
	}
	return out
}

// CreateFormat creates a value format.
func CreateFormat(t *testing.T, db *gorm.DB, unit, regex string) *models.AssessmentFormat {
	t.Helper()

	f := &models.AssessmentFormat{Unit: unit, ValidationRegex: regex}
	if err := db.Create(f).Error; err != nil {
		t.Fatalf("Failed to create format: %v", err)
	}
	return f
}

// CreateTopCategory creates a top category with an explicit id.
func CreateTopCategory(t *testing.T, db *gorm.DB, id uint, name string) *models.AssessmentTopCategory {
	t.Helper()

	tc := &models.AssessmentTopCategory{ID: id, Name: name}
	if err := db.Create(tc).Error; err != nil {
		t.Fatalf("Failed to create top category %s: %v", name, err)
	}
	return tc
}

// CreateSubCategory creates a sub-category directly under a top category.
func CreateSubCategory(t *testing.T, db *gorm.DB, name string, topID uint) *models.AssessmentSubCategory {
	t.Helper()

	sc := &models.AssessmentSubCategory{Name: name, ParentTopCategoryID: &topID}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("Failed to create sub-category %s: %v", name, err)
	}
	return sc
}

// CreateNestedSubCategory creates a sub-category under another sub-category.
func CreateNestedSubCategory(t *testing.T, db *gorm.DB, name string, parentSubID uint) *models.AssessmentSubCategory {
	t.Helper()

	sc := &models.AssessmentSubCategory{Name: name, ParentSubCategoryID: &parentSubID}
	if err := db.Create(sc).Error; err != nil {
		t.Fatalf("Failed to create sub-category %s: %v", name, err)
	}
	return sc
}

// AssessmentOpts tweaks CreateAssessment.
type AssessmentOpts struct {
	IsPrivate          bool
	IsPublicEverywhere bool
	RelationshipTypes  []models.AssessmentRelationshipType
}

// CreateAssessment creates an assessment under a sub-category.
func CreateAssessment(t *testing.T, db *gorm.DB, name string, subID, formatID uint, opts AssessmentOpts) *models.Assessment {
	t.Helper()

	a := &models.Assessment{
		Name:                name,
		ParentSubCategoryID: subID,
		FormatID:            formatID,
		IsPrivate:           opts.IsPrivate,
		IsPublicEverywhere:  opts.IsPublicEverywhere,
		RelationshipTypes:   opts.RelationshipTypes,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("Failed to create assessment %s: %v", name, err)
	}
	return a
}

// CreateTeam creates a team owned by the given user.
func CreateTeam(t *testing.T, db *gorm.DB, name string, owner *models.User, isPrivate bool) *models.Team {
	t.Helper()

	team := &models.Team{Name: name, OwnerID: owner.ID, IsPrivate: isPrivate}
	if err := db.Create(team).Error; err != nil {
		t.Fatalf("Failed to create team %s: %v", name, err)
	}
	return team
}

// CreateOrganisation creates an organisation with the given members.
func CreateOrganisation(t *testing.T, db *gorm.DB, name string, ownOnly bool, members ...*models.User) *models.Organisation {
	t.Helper()

	org := &models.Organisation{Name: name, OwnAssessmentsOnly: ownOnly}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("Failed to create organisation %s: %v", name, err)
	}
	for _, m := range members {
		if err := db.Model(org).Association("Members").Append(m); err != nil {
			t.Fatalf("Failed to add member to %s: %v", name, err)
		}
	}
	return org
}

// RecordValue inserts a chosen assessment dated at the given time, bypassing
// the service pipeline.
func RecordValue(t *testing.T, db *gorm.DB, assessedID, assessorID, assessmentID uint, value float64, at time.Time) *models.ChosenAssessment {
	t.Helper()

	chosen := &models.ChosenAssessment{
		AssessedID:   assessedID,
		AssessorID:   assessorID,
		AssessmentID: assessmentID,
		DateAssessed: at,
		Value:        value,
	}
	if err := db.Create(chosen).Error; err != nil {
		t.Fatalf("Failed to record value: %v", err)
	}
	return chosen
}
