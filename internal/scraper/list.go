package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// deadlineLinkSelectors locate the open-deadline count link on the advocate
// panel
var deadlineLinkSelectors = []string{
	"a[href*='prazo']",
	"a[href*='acao=atualizar_prazo']",
}

// listURLPattern matches the URL of the open-deadline list page, used when
// scanning tabs for where the portal actually opened it
const listURLPattern = `acao=(?:prazo|atualizar_prazo|processo_prazo)`

// ListExtractor navigates from the advocate panel to the open-deadline list
// and parses it
type ListExtractor struct {
	cfg    *config.Config
	parser *Parser
	logger *logger.Logger
}

func NewListExtractor(cfg *config.Config, parser *Parser, log *logger.Logger) *ListExtractor {
	return &ListExtractor{cfg: cfg, parser: parser, logger: log}
}

// Extract returns all open-deadline cases plus the page showing the list,
// which later phases reuse for detail navigation. The caller owns closing
// the returned page.
func (e *ListExtractor) Extract(ctx context.Context, sess *Session, panel *rod.Page) ([]ParsedCase, *rod.Page, error) {
	panel = panel.Context(ctx)

	if err := panel.Timeout(e.cfg.NavigationTimeout).Navigate(e.cfg.PanelURL); err != nil {
		return nil, nil, fmt.Errorf("failed to open advocate panel: %w", err)
	}
	if err := panel.Timeout(e.cfg.NavigationTimeout).WaitLoad(); err != nil {
		e.logger.Warn("Advocate panel load timed out, continuing", "error", err)
	}
	sess.HumanDelay()

	link, err := e.findDeadlineLink(panel)
	if err != nil {
		return nil, nil, err
	}

	// The portal opens the list in a new tab. The listener must be armed
	// strictly before the click or the created-target event can be missed.
	wait := panel.Timeout(e.cfg.TabWaitTimeout).WaitOpen()
	if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, nil, fmt.Errorf("failed to click deadline link: %w", err)
	}

	listPage, err := e.resolveListPage(sess, panel, wait)
	if err != nil {
		return nil, nil, err
	}
	listPage = listPage.Context(ctx)

	tbl, err := firstElement(listPage, e.cfg.StepTimeout, listTableSelectors)
	if err != nil {
		return nil, listPage, fmt.Errorf("deadline table never populated: %w", err)
	}

	rows, err := CollectTableRows(tbl)
	if err != nil {
		return nil, listPage, fmt.Errorf("failed to collect deadline rows: %w", err)
	}

	cases := e.parser.ParseListRows(rows, e.cfg.AdvocateName)
	e.logger.Info("Deadline list extracted", "rows", len(rows), "cases", len(cases))
	return cases, listPage, nil
}

func (e *ListExtractor) findDeadlineLink(panel *rod.Page) (*rod.Element, error) {
	if link, ok := quickElement(panel, deadlineLinkSelectors); ok {
		return link, nil
	}
	link, err := panel.Timeout(e.cfg.StepTimeout).ElementR("a", "/prazo/i")
	if err != nil {
		return nil, fmt.Errorf("%w: deadline count link", ErrFieldNotFound)
	}
	return link, nil
}

// resolveListPage finds where the list actually landed: the awaited new tab,
// the panel itself when navigation happened in place, or any open tab whose
// URL matches the list pattern
func (e *ListExtractor) resolveListPage(sess *Session, panel *rod.Page, wait func() (*rod.Page, error)) (*rod.Page, error) {
	newPage, err := wait()
	if err == nil {
		sess.AcceptDialogs(newPage)
		if err := newPage.Timeout(e.cfg.NavigationTimeout).WaitLoad(); err != nil {
			e.logger.Warn("List tab load timed out, continuing", "error", err)
		}
		return newPage, nil
	}
	e.logger.Debug("No new tab appeared, checking in-place navigation", "error", err)

	if info, err := panel.Info(); err == nil && strings.Contains(info.URL, "prazo") {
		return panel, nil
	}

	pages, err := sess.Browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tabs: %w", err)
	}
	found, err := pages.FindByURL(listURLPattern)
	if err != nil {
		return nil, ErrListPageNotFound
	}
	return found, nil
}
