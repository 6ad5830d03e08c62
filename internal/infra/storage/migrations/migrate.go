// Package migrations applies the additive schema for the tracking and
// history tables. Migrate is idempotent and safe to re-run on startup
// against an existing store.
package migrations

import (
	"github.com/dynrelay/dynrelay/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createTrackedProblemsTable(),
		createDeliveryHistoryTable(),
	})

	return m.Migrate()
}

func createTrackedProblemsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_tracked_problems",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TrackedProblemModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_tracked_problems_status ON tracked_problems (status)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TrackedProblemModel{})
		},
	}
}

func createDeliveryHistoryTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_history",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryRecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_history_connector ON delivery_history (connector_name)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_history_outcome ON delivery_history (outcome)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryRecordModel{})
		},
	}
}
