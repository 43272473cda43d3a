package database

import (
	"sportrecord/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to one shard's database.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// Migrate applies the schema to a single shard. Every shard carries the full
// schema; reference tables are kept aligned by the SyncWriter.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AthleteUser{},
		&models.CoachUser{},
		&models.Coaching{},
		&models.Organisation{},
		&models.Sport{},
		&models.ChosenSport{},
		&models.AssessmentTopCategory{},
		&models.AssessmentSubCategory{},
		&models.AssessmentFormat{},
		&models.AssessmentRelationshipType{},
		&models.Assessment{},
		&models.Assessor{},
		&models.Assessed{},
		&models.ChosenAssessment{},
		&models.AssessmentTopCategoryPermission{},
		&models.Team{},
		&models.Invite{},
		&models.Promocode{},
	)
}
