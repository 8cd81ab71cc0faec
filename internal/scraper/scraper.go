package scraper

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

// Session owns one browser instance for the duration of a single cycle.
// The orchestrator opens it at cycle start and closes it at cycle end
// regardless of outcome; no session state survives across cycles.
type Session struct {
	cfg     *config.Config
	Browser *rod.Browser
	logger  *logger.Logger
}

// NewSession launches a fresh browser
func NewSession(cfg *config.Config, log *logger.Logger) (*Session, error) {
	l := launcher.New().
		Headless(cfg.HeadlessMode).
		Set("user-agent", cfg.UserAgent).
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}
	if cfg.LogLevel == "debug" {
		l = l.Devtools(true)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &Session{cfg: cfg, Browser: browser, logger: log}
	s.armProxyAuth()
	return s, nil
}

// Close tears the browser down, closing every tab with it
func (s *Session) Close() error {
	return s.Browser.Close()
}

// NewPage opens a page, applies the standard viewport and headers, and
// registers the dialog auto-acceptor so native dialogs never block navigation
func (s *Session) NewPage(url string) (*rod.Page, error) {
	page, err := s.Browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	page.MustSetViewport(1920, 1080, 1, false)
	page.MustSetExtraHeaders("Accept-Language", "pt-BR,pt;q=0.9")
	s.AcceptDialogs(page)

	return page, nil
}

// AcceptDialogs auto-accepts any native dialog the page opens
func (s *Session) AcceptDialogs(page *rod.Page) {
	go page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		s.logger.Debug("Auto-accepting dialog", "message", e.Message)
		_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(page)
	})()
}

// armProxyAuth answers the next proxy authentication challenge, re-armed
// before every download navigation
func (s *Session) armProxyAuth() {
	if s.cfg.ProxyUser == "" {
		return
	}
	go func() {
		_ = s.Browser.HandleAuth(s.cfg.ProxyUser, s.cfg.ProxyPass)()
	}()
}

// HumanDelay sleeps a randomized interval between page steps
func (s *Session) HumanDelay() {
	span := s.cfg.DelayMax - s.cfg.DelayMin
	d := s.cfg.DelayMin
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	time.Sleep(d)
}

// firstElement tries an ordered list of selector candidates and returns the
// first match. Site markup is unstable across deployments, so every lookup
// that matters goes through a candidate list instead of one hard-coded
// selector.
func firstElement(page *rod.Page, perTry time.Duration, selectors []string) (*rod.Element, error) {
	for _, sel := range selectors {
		el, err := page.Timeout(perTry).Element(sel)
		if err == nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: tried %v", ErrFieldNotFound, selectors)
}

// quickElement is firstElement with a short per-candidate wait, for fields
// that may legitimately be absent
func quickElement(page *rod.Page, selectors []string) (*rod.Element, bool) {
	el, err := firstElement(page, 2*time.Second, selectors)
	return el, err == nil
}
