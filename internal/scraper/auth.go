package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
	"github.com/pquerna/otp/totp"
)

// Login screen selector candidates. The portal may redirect through an
// identity-provider screen whose markup differs from the primary site's, so
// both variants are listed.
var (
	usernameSelectors = []string{
		"#txtUsuario",
		"input[name='txtUsuario']",
		"#username",
		"input[name='username']",
		"input[name='login']",
	}
	passwordSelectors = []string{
		"#pwdSenha",
		"input[name='pwdSenha']",
		"#password",
		"input[name='password']",
		"input[type='password']",
	}
	otpSelectors = []string{
		"#txtCodigo",
		"input[name='txtCodigo']",
		"#otp",
		"input[name='otp']",
		"input[name='totp']",
		"input[autocomplete='one-time-code']",
	}
	submitSelectors = []string{
		"#sbmEntrar",
		"button[type='submit']",
		"input[type='submit']",
		"#kc-login",
	}
	loginErrorSelectors = []string{
		"#divInfraExcecao",
		"div.alert-danger",
		"span.error-message",
		"#input-error",
		"div.error",
	}
)

// Login flow states, advanced in order and logged for diagnosis
const (
	authNotStarted         = "not_started"
	authCredentialsEntered = "credentials_entered"
	authSecondFactor       = "second_factor_screen"
	authSubmitted          = "submitted"
	authAuthenticated      = "authenticated"
	authFailed             = "failed"
)

// Authenticator drives the multi-screen login state machine
type Authenticator struct {
	cfg    *config.Config
	logger *logger.Logger
}

func NewAuthenticator(cfg *config.Config, log *logger.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, logger: log}
}

// Login authenticates the session and returns the landing page. One extra
// attempt is made after a fixed delay; repeated bad attempts risk account
// lockout, so failures are not retried aggressively.
func (a *Authenticator) Login(ctx context.Context, sess *Session) (*rod.Page, error) {
	page, err := a.attempt(ctx, sess)
	if err == nil {
		return page, nil
	}

	a.logger.Warn("Login attempt failed, retrying once", "error", err)
	if page != nil {
		_ = page.Close()
	}
	time.Sleep(5 * time.Second)

	page, err = a.attempt(ctx, sess)
	if err != nil {
		if page != nil {
			_ = page.Close()
		}
		return nil, err
	}
	return page, nil
}

func (a *Authenticator) attempt(ctx context.Context, sess *Session) (*rod.Page, error) {
	state := authNotStarted
	a.logger.Info("Starting login", "url", a.cfg.LoginURL, "state", state)

	page, err := sess.NewPage(a.cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.Timeout(a.cfg.NavigationTimeout).WaitLoad(); err != nil {
		a.logger.Warn("Login page load timed out, continuing", "error", err)
	}
	sess.HumanDelay()

	userField, err := firstElement(page, a.cfg.StepTimeout, usernameSelectors)
	if err != nil {
		return page, &AuthFailure{Reason: "username field not found"}
	}
	if err := userField.Input(a.cfg.PortalUser); err != nil {
		return page, fmt.Errorf("failed to fill username: %w", err)
	}

	passField, err := firstElement(page, a.cfg.StepTimeout, passwordSelectors)
	if err != nil {
		return page, &AuthFailure{Reason: "password field not found"}
	}
	if err := passField.Input(a.cfg.PortalPass); err != nil {
		return page, fmt.Errorf("failed to fill password: %w", err)
	}
	state = authCredentialsEntered
	a.logger.Debug("Credentials entered", "state", state)

	// The one-time-code field may be on this screen, on a dedicated second
	// screen after the first submit, or not exist at all
	a.fillCodeIfPresent(page)

	if err := a.submit(page); err != nil {
		return page, err
	}
	state = authSubmitted
	a.settleNavigation(page)
	sess.HumanDelay()

	if a.onLoginScreen(page) {
		if a.fillCodeIfPresent(page) {
			state = authSecondFactor
			a.logger.Debug("Second-factor screen handled", "state", state)
			if err := a.submit(page); err != nil {
				return page, err
			}
			a.settleNavigation(page)
		}
	}

	if reason := a.classify(page); reason != "" {
		state = authFailed
		a.logger.Warn("Login failed", "state", state, "reason", reason)
		return page, &AuthFailure{Reason: reason}
	}

	state = authAuthenticated
	a.logger.Info("Login succeeded", "state", state)
	return page, nil
}

// fillCodeIfPresent generates a time-based code and fills it only when a
// code field exists on the current screen
func (a *Authenticator) fillCodeIfPresent(page *rod.Page) bool {
	field, ok := quickElement(page, otpSelectors)
	if !ok {
		return false
	}
	if a.cfg.TOTPSecret == "" {
		a.logger.Warn("Portal asked for a one-time code but no TOTP secret is configured")
		return false
	}
	code, err := a.generateCode()
	if err != nil {
		a.logger.Error("Failed to generate one-time code", "error", err)
		return false
	}
	if err := field.Input(code); err != nil {
		a.logger.Error("Failed to fill one-time code", "error", err)
		return false
	}
	a.logger.Debug("One-time code entered")
	return true
}

// generateCode produces a TOTP from the shared secret, sanitized first to
// the base32 alphabet the algorithm requires
func (a *Authenticator) generateCode() (string, error) {
	secret := sanitizeSecret(a.cfg.TOTPSecret)
	if secret == "" {
		return "", fmt.Errorf("TOTP secret is empty after sanitization")
	}
	return totp.GenerateCode(secret, time.Now())
}

// sanitizeSecret keeps only the base32 alphabet (A-Z, 2-7), uppercased
func sanitizeSecret(secret string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(secret) {
		if (r >= 'A' && r <= 'Z') || (r >= '2' && r <= '7') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// submit clicks the login button, falling back to a text-content search and
// finally a keyboard submit when no actionable element is found
func (a *Authenticator) submit(page *rod.Page) error {
	if btn, ok := quickElement(page, submitSelectors); ok {
		return btn.Click(proto.InputMouseButtonLeft, 1)
	}

	btn, err := page.Timeout(2 * time.Second).ElementR("button, input[type='submit'], a", "/entrar|acessar|login|avan[çc]ar/i")
	if err == nil {
		return btn.Click(proto.InputMouseButtonLeft, 1)
	}

	a.logger.Debug("No submit element found, falling back to keyboard submit")
	return page.Keyboard.Press(input.Enter)
}

// settleNavigation waits for the page to finish whatever the submit kicked off
func (a *Authenticator) settleNavigation(page *rod.Page) {
	if err := page.Timeout(a.cfg.NavigationTimeout).WaitLoad(); err != nil {
		a.logger.Debug("Navigation settle timed out", "error", err)
	}
}

// classify inspects the post-submit page and returns a failure reason, or ""
// when authenticated
func (a *Authenticator) classify(page *rod.Page) string {
	for _, sel := range loginErrorSelectors {
		el, err := page.Timeout(time.Second).Element(sel)
		if err != nil {
			continue
		}
		if text, err := el.Text(); err == nil {
			if msg := strings.TrimSpace(text); msg != "" {
				return msg
			}
		}
	}
	if a.onLoginScreen(page) {
		return ErrStillOnLogin.Error()
	}
	return ""
}

// onLoginScreen reports whether the current URL still points at the login
// entry point or the identity-provider domain
func (a *Authenticator) onLoginScreen(page *rod.Page) bool {
	info, err := page.Info()
	if err != nil {
		return false
	}
	return looksLikeLogin(info.URL, a.cfg.LoginURL, a.cfg.IdPHost)
}

func looksLikeLogin(url, loginURL, idpHost string) bool {
	if idpHost != "" && strings.Contains(url, idpHost) {
		return true
	}
	if strings.Contains(strings.ToLower(url), "login") {
		return true
	}
	return strings.HasPrefix(url, loginURL)
}
