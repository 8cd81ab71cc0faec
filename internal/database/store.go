package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listColumns are the columns the list-extraction upsert is allowed to
// refresh. The represented_* columns are set once by the backfill step and
// must never be overwritten here.
var listColumns = []string{
	"court_code",
	"plaintiff_name", "plaintiff_tax_id",
	"defendant_name", "defendant_tax_id",
	"case_class", "subject",
	"deadline_event", "deadline_days",
	"notice_sent_at", "deadline_start_at", "deadline_end_at",
	"raw_capture", "updated_at",
}

// Store provides typed access to the monitor's records
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListCases returns all currently stored cases
func (s *Store) ListCases() ([]Case, error) {
	var cases []Case
	if err := s.db.Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

// CaseByDocket returns one case or nil if absent
func (s *Store) CaseByDocket(docket string) (*Case, error) {
	var c Case
	err := s.db.Where("docket = ?", docket).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", docket, err)
	}
	return &c, nil
}

// UpsertCases inserts or refreshes the given cases keyed by docket number,
// touching list-derived columns only
func (s *Store) UpsertCases(cases []Case) error {
	if len(cases) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "docket"}},
		DoUpdates: clause.AssignmentColumns(listColumns),
	}).Create(&cases).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cases: %w", err)
	}
	return nil
}

// DeleteCases removes the given dockets along with their events and document
// rows in one transaction. Deletes are hard: the docket and storage_path
// unique indexes must be free again for a case that later reappears on the
// open-deadline list.
func (s *Store) DeleteCases(dockets []string) error {
	if len(dockets) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("docket IN ?", dockets).Delete(&Event{}).Error; err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		if err := tx.Unscoped().Where("docket IN ?", dockets).Delete(&Document{}).Error; err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		if err := tx.Unscoped().Where("docket IN ?", dockets).Delete(&Case{}).Error; err != nil {
			return fmt.Errorf("failed to delete cases: %w", err)
		}
		return nil
	})
}

// SetRepresentation durably records which side the advocate represents.
// A side already set is left untouched, making the backfill idempotent.
func (s *Store) SetRepresentation(docket, side, partyName, partyTaxID string) error {
	res := s.db.Model(&Case{}).
		Where("docket = ? AND (represented_side IS NULL OR represented_side = '')", docket).
		Updates(map[string]interface{}{
			"represented_side": side,
			"represented_name": partyName,
			"represented_tax":  partyTaxID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set representation for %s: %w", docket, res.Error)
	}
	return nil
}

// ReplaceEvents deletes all events of a case and inserts the fresh set
// atomically, avoiding duplication across repeated partial runs. The delete
// is hard so replaced rows do not accumulate.
func (s *Store) ReplaceEvents(docket string, events []Event) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("docket = ?", docket).Delete(&Event{}).Error; err != nil {
			return fmt.Errorf("failed to clear events for %s: %w", docket, err)
		}
		if len(events) == 0 {
			return nil
		}
		if err := tx.Create(&events).Error; err != nil {
			return fmt.Errorf("failed to insert events for %s: %w", docket, err)
		}
		return nil
	})
}

// EventsByDocket returns the stored events of one case
func (s *Store) EventsByDocket(docket string) ([]Event, error) {
	var events []Event
	if err := s.db.Where("docket = ?", docket).Order("seq").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", docket, err)
	}
	return events, nil
}

// DocketsWithEvents returns the skip-set: dockets that already have a
// persisted event history
func (s *Store) DocketsWithEvents() (map[string]bool, error) {
	var dockets []string
	err := s.db.Model(&Event{}).Distinct("docket").Pluck("docket", &dockets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load skip-set: %w", err)
	}
	set := make(map[string]bool, len(dockets))
	for _, d := range dockets {
		set[d] = true
	}
	return set, nil
}

// CasesMissingRepresentation returns cases whose represented side is unknown
func (s *Store) CasesMissingRepresentation() ([]Case, error) {
	var cases []Case
	err := s.db.Where("represented_side IS NULL OR represented_side = ''").Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load backfill candidates: %w", err)
	}
	return cases, nil
}

// DocumentExists reports whether a storage path is already recorded
func (s *Store) DocumentExists(storagePath string) (bool, error) {
	var count int64
	err := s.db.Model(&Document{}).Where("storage_path = ?", storagePath).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", storagePath, err)
	}
	return count > 0, nil
}

// DocumentPaths returns all recorded storage paths, used to warm the
// de-duplication cache at cycle start
func (s *Store) DocumentPaths() ([]string, error) {
	var paths []string
	if err := s.db.Model(&Document{}).Pluck("storage_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to list document paths: %w", err)
	}
	return paths, nil
}

// InsertDocument records a successfully stored document
func (s *Store) InsertDocument(doc *Document) error {
	if err := s.db.Create(doc).Error; err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.StoragePath, err)
	}
	return nil
}

// CreateRun opens a new run record in "running" state
func (s *Store) CreateRun() (*Run, error) {
	run := &Run{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return run, nil
}

// FinalizeRun closes a run record exactly once
func (s *Store) FinalizeRun(run *Run, status string, found, added, removed int, errMsg string) error {
	if run.FinishedAt != nil {
		return nil
	}
	now := time.Now()
	run.FinishedAt = &now
	run.DurationMS = now.Sub(run.StartedAt).Milliseconds()
	run.Status = status
	run.CasesFound = found
	run.CasesNew = added
	run.CasesRemoved = removed
	run.ErrorMessage = errMsg
	if err := s.db.Save(run).Error; err != nil {
		return fmt.Errorf("failed to finalize run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns the most recent run records
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	if err := s.db.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// PruneRuns deletes run records older than the retention window
func (s *Store) PruneRuns(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := s.db.Unscoped().Where("started_at < ?", cutoff).Delete(&Run{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountCases returns the number of stored cases
func (s *Store) CountCases() (int64, error) {
	var count int64
	if err := s.db.Model(&Case{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return count, nil
}
