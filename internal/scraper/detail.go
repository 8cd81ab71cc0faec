package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// DetailResult is everything one case's detail extraction produced. A failed
// extraction yields the zero value; one case's failure never aborts the
// batch.
type DetailResult struct {
	// Events holds the correlation-filtered procedural history to persist
	Events []ParsedEvent
	// RepresentedSide is "plaintiff"/"defendant" when the backfill resolved
	// it this pass, "" otherwise
	RepresentedSide string
}

// DetailExtractor opens one case's event history, applies the
// deadline-correlation rule, and resolves the represented side when still
// unknown
type DetailExtractor struct {
	cfg    *config.Config
	parser *Parser
	logger *logger.Logger
}

func NewDetailExtractor(cfg *config.Config, parser *Parser, log *logger.Logger) *DetailExtractor {
	return &DetailExtractor{cfg: cfg, parser: parser, logger: log}
}

// Extract processes one case from the list page. needRepresentation is false
// once the represented side is already persisted; the backfill must not
// re-scan a side that is set.
func (d *DetailExtractor) Extract(ctx context.Context, sess *Session, listPage *rod.Page, docket string, needRepresentation bool) (res DetailResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = DetailResult{}
			err = fmt.Errorf("detail extraction panicked for %s: %v", docket, r)
		}
	}()

	detail, opened, err := d.openDetail(ctx, sess, listPage, docket)
	if err != nil {
		return DetailResult{}, err
	}
	if opened {
		defer func() { _ = detail.Close() }()
	} else {
		// The click navigated the list page in place; drive it back so the
		// next case's link lookup still runs against the list
		defer d.restoreListPage(listPage, docket)
	}
	sess.HumanDelay()

	events, err := d.parseEvents(detail)
	if err != nil {
		return DetailResult{}, err
	}

	base := DeadlineBase(events)
	res.Events = FilterFromBase(events, base)
	if base != nil {
		d.logger.Debug("Event correlation applied", "docket", docket, "base", *base,
			"parsed", len(events), "kept", len(res.Events))
	}

	if needRepresentation {
		res.RepresentedSide = d.resolveRepresentation(detail, docket)
	}

	return res, nil
}

// openDetail navigates to the case's event history, handling the
// new-tab-or-same-tab race the same way the list extraction does. The
// returned bool reports whether a new tab was opened and must be closed.
func (d *DetailExtractor) openDetail(ctx context.Context, sess *Session, listPage *rod.Page, docket string) (*rod.Page, bool, error) {
	link, err := listPage.Timeout(d.cfg.StepTimeout).ElementR("a", "/"+regexp.QuoteMeta(docket)+"/")
	if err != nil {
		return nil, false, fmt.Errorf("%w: detail link for %s", ErrFieldNotFound, docket)
	}

	wait := listPage.Timeout(d.cfg.TabWaitTimeout).WaitOpen()
	if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, false, fmt.Errorf("failed to click detail link for %s: %w", docket, err)
	}

	detail, err := wait()
	if err == nil {
		sess.AcceptDialogs(detail)
		if err := detail.Context(ctx).Timeout(d.cfg.NavigationTimeout).WaitLoad(); err != nil {
			d.logger.Warn("Detail tab load timed out, continuing", "docket", docket, "error", err)
		}
		return detail.Context(ctx), true, nil
	}

	// No new tab: the click may have navigated the list page in place
	if info, err := listPage.Info(); err == nil && strings.Contains(info.URL, "processo") {
		return listPage, false, nil
	}

	pages, err := sess.Browser.Pages()
	if err != nil {
		return nil, false, fmt.Errorf("failed to enumerate tabs: %w", err)
	}
	found, err := pages.FindByURL(`acao=processo_selecionar|acao=processo_consultar`)
	if err != nil {
		return nil, false, fmt.Errorf("detail page for %s not found in any tab", docket)
	}
	return found.Context(ctx), true, nil
}

// restoreListPage navigates the shared list page back after it was consumed
// by an in-place detail navigation
func (d *DetailExtractor) restoreListPage(listPage *rod.Page, docket string) {
	if err := listPage.NavigateBack(); err != nil {
		d.logger.Warn("Failed to return to deadline list", "docket", docket, "error", err)
		return
	}
	if err := listPage.Timeout(d.cfg.NavigationTimeout).WaitLoad(); err != nil {
		d.logger.Debug("Deadline list reload timed out", "docket", docket, "error", err)
	}
}

func (d *DetailExtractor) parseEvents(detail *rod.Page) ([]ParsedEvent, error) {
	if _, err := firstElement(detail, d.cfg.StepTimeout, []string{"table"}); err != nil {
		return nil, fmt.Errorf("detail page has no tables: %w", err)
	}

	tbl, err := findEventsTable(detail)
	if err != nil {
		return nil, fmt.Errorf("events table not found: %w", err)
	}

	rows, err := CollectTableRows(tbl)
	if err != nil {
		return nil, fmt.Errorf("failed to collect event rows: %w", err)
	}

	return d.parser.ParseEventRows(rows), nil
}

// resolveRepresentation determines which side the configured advocate
// represents: first from the parties-and-representatives table, then from a
// full-page line scan when the table strategy finds nothing
func (d *DetailExtractor) resolveRepresentation(detail *rod.Page, docket string) string {
	var rep Representation

	headers, columns, err := collectRepresentativeTable(detail)
	if err == nil {
		rep = d.parser.ParseRepresentatives(headers, columns)
	}

	if len(rep.PlaintiffReps) == 0 && len(rep.DefendantReps) == 0 {
		body, err := detail.Timeout(d.cfg.StepTimeout).Element("body")
		if err != nil {
			d.logger.Warn("Could not read detail page body", "docket", docket, "error", err)
			return ""
		}
		text, err := body.Text()
		if err != nil {
			return ""
		}
		rep = d.parser.ScanRepresentatives(text)
	}

	side := MatchSide(rep, d.cfg.AdvocateName)
	if side == "" {
		d.logger.Debug("Advocate not found among representatives", "docket", docket,
			"plaintiffReps", len(rep.PlaintiffReps), "defendantReps", len(rep.DefendantReps))
	}
	return side
}
