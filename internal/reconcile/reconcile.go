package reconcile

import (
	"fmt"

	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// Diff is the outcome of comparing an extraction against the store
type Diff struct {
	New     []string
	Removed []string
}

// Collapse removes duplicate dockets from an extraction, keeping the
// last-seen record for each. Re-extraction within a cycle can legitimately
// produce duplicates.
func Collapse(cases []database.Case) ([]database.Case, int) {
	index := make(map[string]int, len(cases))
	var collapsed []database.Case
	dropped := 0
	for _, c := range cases {
		if pos, seen := index[c.Docket]; seen {
			collapsed[pos] = c
			dropped++
			continue
		}
		index[c.Docket] = len(collapsed)
		collapsed = append(collapsed, c)
	}
	return collapsed, dropped
}

// ComputeDiff returns the dockets to insert and the dockets to remove:
// new = extracted \ stored, removed = stored \ extracted
func ComputeDiff(extracted, stored []string) Diff {
	extractedSet := make(map[string]bool, len(extracted))
	for _, d := range extracted {
		extractedSet[d] = true
	}
	storedSet := make(map[string]bool, len(stored))
	for _, d := range stored {
		storedSet[d] = true
	}

	var diff Diff
	for _, d := range extracted {
		if !storedSet[d] {
			diff.New = append(diff.New, d)
		}
	}
	for _, d := range stored {
		if !extractedSet[d] {
			diff.Removed = append(diff.Removed, d)
		}
	}
	return diff
}

// Reconciler applies an extracted case set to the store
type Reconciler struct {
	store  *database.Store
	logger *logger.Logger
}

func NewReconciler(store *database.Store, log *logger.Logger) *Reconciler {
	return &Reconciler{store: store, logger: log}
}

// Apply upserts the full extracted set (list-derived columns only) and
// deletes cases that left the portal's open-deadline list, cascading to
// their events and document rows
func (r *Reconciler) Apply(extracted []database.Case) (Diff, error) {
	collapsed, dropped := Collapse(extracted)
	if dropped > 0 {
		r.logger.Info("Collapsed duplicate dockets in extraction", "dropped", dropped)
	}

	stored, err := r.store.ListCases()
	if err != nil {
		return Diff{}, fmt.Errorf("failed to load stored cases: %w", err)
	}

	extractedKeys := make([]string, len(collapsed))
	for i, c := range collapsed {
		extractedKeys[i] = c.Docket
	}
	storedKeys := make([]string, len(stored))
	for i, c := range stored {
		storedKeys[i] = c.Docket
	}

	diff := ComputeDiff(extractedKeys, storedKeys)

	if err := r.store.UpsertCases(collapsed); err != nil {
		return diff, err
	}
	if err := r.store.DeleteCases(diff.Removed); err != nil {
		return diff, err
	}

	r.logger.Info("Reconciliation applied",
		"extracted", len(collapsed), "new", len(diff.New), "removed", len(diff.Removed))
	return diff, nil
}
