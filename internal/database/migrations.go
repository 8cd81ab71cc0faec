package database

import "gorm.io/gorm"

// createIndexes creates database indexes beyond what AutoMigrate derives
func createIndexes(db *gorm.DB) error {
	// Skip-set query: cases that already have a persisted event history
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_docket_seq
		ON events(docket, seq)
	`).Error; err != nil {
		return err
	}

	// Representation backfill candidates
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cases_represented_side
		ON cases(represented_side)
	`).Error; err != nil {
		return err
	}

	// Run history browsing
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_started_at
		ON runs(started_at)
	`).Error; err != nil {
		return err
	}

	return nil
}
