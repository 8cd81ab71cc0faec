package monitor

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/lgfreitas/eproc-monitor/internal/cache"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/internal/reconcile"
	"github.com/lgfreitas/eproc-monitor/internal/scraper"
	"github.com/lgfreitas/eproc-monitor/internal/storage"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// CycleResult is what one cycle reports back to the scheduler
type CycleResult struct {
	Drained      bool
	CasesFound   int
	CasesNew     int
	CasesRemoved int
	Err          error
}

// Orchestrator sequences one full extraction cycle: authenticate, extract
// the deadline list, reconcile, then run the bounded detail and
// representation-backfill passes. Each cycle launches a fresh browser and
// tears it down regardless of outcome.
type Orchestrator struct {
	cfg    *config.Config
	store  *database.Store
	blobs  *storage.BlobStore
	paths  *cache.PathCache
	recon  *reconcile.Reconciler
	parser *scraper.Parser
	logger *logger.Logger
}

func NewOrchestrator(cfg *config.Config, store *database.Store, blobs *storage.BlobStore, paths *cache.PathCache, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		paths:  paths,
		recon:  reconcile.NewReconciler(store, log),
		parser: scraper.NewParser(log),
		logger: log,
	}
}

// RunCycle executes one cycle and finalizes its run record exactly once
func (o *Orchestrator) RunCycle(ctx context.Context) (result CycleResult) {
	run, err := o.store.CreateRun()
	if err != nil {
		o.logger.Error("Failed to create run record", "error", err)
		return CycleResult{Err: err}
	}
	o.logger.Info("Cycle started", "runID", run.RunID)

	perCaseFailures := 0
	var runErr error

	defer func() {
		status := database.RunStatusSuccess
		msg := ""
		if runErr != nil {
			status = database.RunStatusError
			msg = runErr.Error()
			result.Err = runErr
		} else if perCaseFailures > 0 {
			status = database.RunStatusPartial
		}
		if err := o.store.FinalizeRun(run, status, result.CasesFound, result.CasesNew, result.CasesRemoved, msg); err != nil {
			o.logger.Error("Failed to finalize run record", "runID", run.RunID, "error", err)
		}
		o.logger.Info("Cycle finished", "runID", run.RunID, "status", status,
			"found", result.CasesFound, "new", result.CasesNew, "removed", result.CasesRemoved,
			"drained", result.Drained)
	}()

	o.housekeeping()

	sess, err := scraper.NewSession(o.cfg, o.logger)
	if err != nil {
		runErr = err
		return result
	}
	// The browser is torn down at cycle end no matter what; the next cycle
	// starts from a fresh session
	defer func() {
		if err := sess.Close(); err != nil {
			o.logger.Warn("Failed to close browser", "error", err)
		}
	}()

	auth := scraper.NewAuthenticator(o.cfg, o.logger)
	panel, err := auth.Login(ctx, sess)
	if err != nil {
		runErr = err
		return result
	}

	listEx := scraper.NewListExtractor(o.cfg, o.parser, o.logger)
	cases, listPage, err := listEx.Extract(ctx, sess, panel)
	if err != nil {
		runErr = err
		return result
	}
	result.CasesFound = len(cases)

	diff, err := o.recon.Apply(toDBCases(cases))
	if err != nil {
		runErr = err
		return result
	}
	result.CasesNew = len(diff.New)
	result.CasesRemoved = len(diff.Removed)

	skipSet, err := o.store.DocketsWithEvents()
	if err != nil {
		runErr = err
		return result
	}

	detailEx := scraper.NewDetailExtractor(o.cfg, o.parser, o.logger)
	fetcher := scraper.NewFetcher(o.cfg, o.store, o.blobs, o.paths, o.logger)

	// Bounded detail pass over cases with no persisted event history yet
	var pending []scraper.ParsedCase
	seen := make(map[string]bool)
	for _, pc := range cases {
		if skipSet[pc.Docket] || seen[pc.Docket] {
			continue
		}
		seen[pc.Docket] = true
		pending = append(pending, pc)
	}

	processed := 0
	detailFailures := 0
	for _, pc := range pending {
		if processed >= o.cfg.DetailBatchSize {
			break
		}
		if !o.processCase(ctx, sess, listPage, pc, detailEx, fetcher) {
			detailFailures++
		}
		processed++
	}
	perCaseFailures += detailFailures
	drainedDetail := passDrained(len(pending), o.cfg.DetailBatchSize, detailFailures)
	o.logger.Info("Detail pass done", "pending", len(pending), "processed", processed,
		"failed", detailFailures, "drained", drainedDetail)

	// Bounded representation-backfill pass
	missing, err := o.store.CasesMissingRepresentation()
	if err != nil {
		// Stale knowledge of the backlog is tolerable; the pass just
		// reports undrained and the next cycle retries
		o.logger.Error("Failed to load backfill candidates", "error", err)
		result.Drained = false
		return result
	}

	processedRep := 0
	repFailures := 0
	for _, c := range missing {
		if processedRep >= o.cfg.DetailBatchSize {
			break
		}
		if !o.backfillRepresentation(ctx, sess, listPage, c, detailEx) {
			repFailures++
		}
		processedRep++
	}
	perCaseFailures += repFailures
	drainedRep := passDrained(len(missing), o.cfg.DetailBatchSize, repFailures)
	o.logger.Info("Backfill pass done", "missing", len(missing), "processed", processedRep,
		"failed", repFailures, "drained", drainedRep)

	// The cycle only counts as drained when both passes had no candidates
	// left beyond what they processed
	result.Drained = drainedDetail && drainedRep
	return result
}

// processCase runs detail extraction, event persistence, representation and
// document download for one case. Returns false when the case failed; a
// single case's failure never aborts the batch.
func (o *Orchestrator) processCase(ctx context.Context, sess *scraper.Session, listPage *rod.Page, pc scraper.ParsedCase, detailEx *scraper.DetailExtractor, fetcher *scraper.Fetcher) bool {
	needRep := true
	if stored, err := o.store.CaseByDocket(pc.Docket); err == nil && stored != nil && stored.RepresentedSide != "" {
		needRep = false
	}

	res, err := detailEx.Extract(ctx, sess, listPage, pc.Docket, needRep)
	if err != nil {
		o.logger.Warn("Detail extraction failed, case stays pending", "docket", pc.Docket, "error", err)
		return false
	}
	if len(res.Events) == 0 {
		// Nothing persisted: the case stays outside the skip set and is
		// retried next cycle
		o.logger.Warn("No events parsed, case stays pending", "docket", pc.Docket)
		return false
	}

	if err := o.store.ReplaceEvents(pc.Docket, toDBEvents(pc.Docket, res.Events)); err != nil {
		o.logger.Error("Failed to persist events", "docket", pc.Docket, "error", err)
		return false
	}

	if needRep && res.RepresentedSide != "" {
		o.applyRepresentation(pc.Docket, res.RepresentedSide)
	}

	fetcher.FetchCaseDocuments(ctx, sess, pc.Docket, res.Events)
	sess.HumanDelay()
	return true
}

// backfillRepresentation retries side resolution for a case whose detail pass
// could not determine it
func (o *Orchestrator) backfillRepresentation(ctx context.Context, sess *scraper.Session, listPage *rod.Page, c database.Case, detailEx *scraper.DetailExtractor) bool {
	res, err := detailEx.Extract(ctx, sess, listPage, c.Docket, true)
	if err != nil {
		o.logger.Warn("Representation backfill failed", "docket", c.Docket, "error", err)
		return false
	}
	if res.RepresentedSide == "" {
		// Not an error: the advocate may genuinely not appear on this case's
		// representative list yet
		return true
	}
	o.applyRepresentation(c.Docket, res.RepresentedSide)
	sess.HumanDelay()
	return true
}

// applyRepresentation persists the resolved side together with the matching
// party's identity, taken from the stored list-derived columns
func (o *Orchestrator) applyRepresentation(docket, side string) {
	stored, err := o.store.CaseByDocket(docket)
	if err != nil || stored == nil {
		o.logger.Warn("Cannot apply representation, case not found", "docket", docket, "error", err)
		return
	}

	name, tax := stored.PlaintiffName, stored.PlaintiffTaxID
	if side == database.SideDefendant {
		name, tax = stored.DefendantName, stored.DefendantTaxID
	}
	if err := o.store.SetRepresentation(docket, side, name, tax); err != nil {
		o.logger.Error("Failed to persist representation", "docket", docket, "error", err)
		return
	}
	o.logger.Info("Representation resolved", "docket", docket, "side", side)
}

// passDrained reports whether a bounded pass finished its backlog: no
// candidates beyond the batch bound, and none of the attempted ones failed.
// A failed case stays a candidate for the next cycle and must keep the
// scheduler on the active cadence.
func passDrained(candidates, batch, failures int) bool {
	return candidates <= batch && failures == 0
}

func (o *Orchestrator) housekeeping() {
	if pruned, err := o.store.PruneRuns(o.cfg.RunRetentionDays); err != nil {
		o.logger.Warn("Run pruning failed", "error", err)
	} else if pruned > 0 {
		o.logger.Info("Pruned old run records", "count", pruned)
	}

	paths, err := o.store.DocumentPaths()
	if err != nil {
		o.logger.Warn("Failed to warm document path cache", "error", err)
		return
	}
	o.paths.Warm(paths)
}

func toDBCases(cases []scraper.ParsedCase) []database.Case {
	out := make([]database.Case, len(cases))
	for i, pc := range cases {
		out[i] = toDBCase(pc)
	}
	return out
}

func toDBCase(pc scraper.ParsedCase) database.Case {
	c := database.Case{
		Docket:          pc.Docket,
		CourtCode:       pc.CourtCode,
		PlaintiffName:   pc.PlaintiffName,
		PlaintiffTaxID:  pc.PlaintiffTaxID,
		DefendantName:   pc.DefendantName,
		DefendantTaxID:  pc.DefendantTaxID,
		CaseClass:       pc.CaseClass,
		Subject:         pc.Subject,
		DeadlineEvent:   pc.DeadlineEvent,
		DeadlineDays:    pc.DeadlineDays,
		NoticeSentAt:    pc.NoticeSentAt,
		DeadlineStartAt: pc.DeadlineStartAt,
		DeadlineEndAt:   pc.DeadlineEndAt,
		RawCapture:      pc.RawCapture,
	}
	// Side inferred straight from the list; only new rows carry it into the
	// store, the upsert never touches represented columns on conflict
	switch pc.RepresentedSide {
	case database.SidePlaintiff:
		c.RepresentedSide = database.SidePlaintiff
		c.RepresentedName = pc.PlaintiffName
		c.RepresentedTax = pc.PlaintiffTaxID
	case database.SideDefendant:
		c.RepresentedSide = database.SideDefendant
		c.RepresentedName = pc.DefendantName
		c.RepresentedTax = pc.DefendantTaxID
	}
	return c
}

func toDBEvents(docket string, events []scraper.ParsedEvent) []database.Event {
	out := make([]database.Event, len(events))
	for i, ev := range events {
		out[i] = database.Event{
			Docket:          docket,
			Seq:             ev.Seq,
			Actor:           ev.Actor,
			OccurredAt:      ev.OccurredAt,
			Description:     ev.Description,
			AttachmentsJSON: scraper.MarshalAttachments(ev.Attachments),
			IsDeadlineEvent: ev.IsDeadlineEvent,
			RefEvent:        ev.RefEvent,
		}
	}
	return out
}
