package migrations

import (
	"github.com/ABHIRAMSHIBU/internetradio/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//   - 001: session history and source selection tables
//   - 002: index for pruning session history by end time
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002SessionEndedIndex(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create session_records and source_selections",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.SessionRecord{},
				&models.SourceSelection{},
			)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.SourceSelection{},
				&models.SessionRecord{},
			)
		},
	}
}

const sessionEndedIndex = "idx_session_records_ended_at"

func migration002SessionEndedIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index session_records.ended_at",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.SessionRecord{}, sessionEndedIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + sessionEndedIndex + " ON session_records (ended_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropIndex(&models.SessionRecord{}, sessionEndedIndex)
		},
	}
}
