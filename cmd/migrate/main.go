// Migration script for the dataset catalog schema.
package main

import (
	"fmt"

	"datasearch/config"
	"datasearch/dao/model"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectPostgres() *gorm.DB {
	conf := config.GetConfig()
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		conf.Postgres.Host, conf.Postgres.User, conf.Postgres.Password,
		conf.Postgres.DBName, conf.Postgres.Port, conf.Postgres.SSLMode, conf.Postgres.TimeZone)
	db, err := gorm.Open(postgres.Open(dsn))
	if err != nil {
		panic(fmt.Errorf("connect to postgres: %w", err))
	}
	return db
}

func main() {
	db := ConnectPostgres()

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			// add enrichment bookkeeping columns for catalogs created before
			// the state machine existed
			ID: "2026052701",
			Migrate: func(tx *gorm.DB) error {
				type Dataset struct {
					SourceName          string `gorm:"type:varchar(50);not null;uniqueIndex:idx_unique_external_dataset"`
					ExternalID          string `gorm:"type:varchar(255);not null;uniqueIndex:idx_unique_external_dataset"`
					EnrichmentStatus    string `gorm:"type:varchar(32);default:minimal;index"`
					EnrichmentAttempts  int
					LastEnrichmentError string `gorm:"type:text"`
				}
				return tx.AutoMigrate(&Dataset{})
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Migrator().DropIndex("datasets", "idx_unique_external_dataset"); err != nil {
					return err
				}
				for _, col := range []string{"enrichment_status", "enrichment_attempts", "last_enrichment_error"} {
					if err := tx.Migrator().DropColumn("datasets", col); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// per-attempt audit log table
			ID: "2026052702",
			Migrate: func(tx *gorm.DB) error {
				type EnrichmentLog struct {
					gorm.Model
					DatasetID     uint   `gorm:"index;index:idx_enrichment_logs_dataset_stage"`
					Stage         string `gorm:"type:varchar(32);index:idx_enrichment_logs_dataset_stage"`
					Result        string `gorm:"type:varchar(32);index"`
					AttemptNumber int
					DurationMS    int64
					ErrorType     string `gorm:"type:varchar(128)"`
					ErrorMessage  string `gorm:"type:text"`
					WorkerID      string `gorm:"type:varchar(64)"`
					TaskID        string `gorm:"type:varchar(64)"`
				}
				return tx.Migrator().CreateTable(&EnrichmentLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("enrichment_logs")
			},
		},
	})

	m.InitSchema(func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&model.Dataset{},
			&model.EnrichmentLog{},
		)
	})

	if err := m.Migrate(); err != nil {
		panic(fmt.Errorf("could not migrate: %w", err))
	}
}
