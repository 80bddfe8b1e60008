package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"teklif/internal/browser"
	"teklif/internal/driver"
	"teklif/internal/logger"
	"teklif/internal/types"
)

const (
	// markerWait bounds a single indicator probe (authenticated marker,
	// entry marker); dialogWait bounds each best-effort popup probe.
	markerWait = 5 * time.Second
	probeWait  = 3 * time.Second
	dialogWait = 1500 * time.Millisecond
)

func (s *Session) authenticate(ctx context.Context, page browser.Page) error {
	drv := s.cfg.Driver
	provider := drv.Provider()
	login := drv.Login()

	if err := page.Navigate(ctx, drv.BaseURL()); err != nil {
		return &types.AuthenticationError{Provider: provider, Cause: err}
	}

	// Cache-aside: replay a persisted cookie set and probe before touching
	// the credential form. Not correctness-critical, so every failure here
	// just falls through to a fresh login.
	if s.cfg.Tokens != nil {
		if cookies, ok := s.cfg.Tokens.Get(provider); ok {
			if err := page.SetCookies(ctx, cookies); err == nil {
				if err := page.Navigate(ctx, drv.BaseURL()); err == nil && s.isAuthenticated(ctx, page, login) {
					logger.Debugf("[%s] reused persisted session", provider)
					return nil
				}
			}
			s.cfg.Tokens.Drop(provider)
		}
	}

	if err := s.fillCredentials(ctx, page, login); err != nil {
		return &types.AuthenticationError{Provider: provider, Cause: err}
	}

	if drv.RequiresTOTP() {
		if err := s.submitTOTP(ctx, page, login); err != nil {
			return &types.AuthenticationError{Provider: provider, Cause: err}
		}
	}

	if !s.isAuthenticated(ctx, page, login) {
		return &types.AuthenticationError{
			Provider: provider,
			Cause:    errors.New("no authenticated indicator after credential submit"),
		}
	}

	if s.cfg.Tokens != nil {
		if cookies, err := page.Cookies(ctx); err == nil && len(cookies) > 0 {
			s.cfg.Tokens.Put(provider, cookies)
		}
	}
	return nil
}

func (s *Session) fillCredentials(ctx context.Context, page browser.Page, login driver.LoginSpec) error {
	userField, err := browser.Resolve(ctx, page, login.UsernameField, markerWait)
	if err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := page.Fill(ctx, userField, s.cfg.Credentials.Username); err != nil {
		return fmt.Errorf("username field: %w", err)
	}

	passField, err := browser.Resolve(ctx, page, login.PasswordField, markerWait)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := page.Fill(ctx, passField, s.cfg.Credentials.Password); err != nil {
		return fmt.Errorf("password field: %w", err)
	}

	submit, err := browser.Resolve(ctx, page, login.SubmitButton, markerWait)
	if err != nil {
		return fmt.Errorf("login submit: %w", err)
	}
	return page.Click(ctx, submit)
}

func (s *Session) submitTOTP(ctx context.Context, page browser.Page, login driver.LoginSpec) error {
	code, err := s.cfg.TOTP(s.cfg.Credentials.TOTPSecret)
	if err != nil {
		return fmt.Errorf("totp generation: %w", err)
	}
	field, err := browser.Resolve(ctx, page, login.TOTPField, markerWait)
	if err != nil {
		return fmt.Errorf("totp field: %w", err)
	}
	if err := page.Fill(ctx, field, code); err != nil {
		return fmt.Errorf("totp field: %w", err)
	}
	if len(login.TOTPSubmit) > 0 {
		submit, err := browser.Resolve(ctx, page, login.TOTPSubmit, markerWait)
		if err != nil {
			return fmt.Errorf("totp submit: %w", err)
		}
		return page.Click(ctx, submit)
	}
	return nil
}

// isAuthenticated probes for the authenticated indicator and, when the
// profile defines one, rejects pages still showing the login form.
func (s *Session) isAuthenticated(ctx context.Context, page browser.Page, login driver.LoginSpec) bool {
	if _, err := browser.Resolve(ctx, page, login.AuthenticatedMarker, markerWait); err != nil {
		return false
	}
	if len(login.LoginMarker) > 0 {
		if _, err := browser.Resolve(ctx, page, login.LoginMarker, dialogWait); err == nil {
			return false
		}
	}
	return true
}

func (s *Session) clearTransientDialogs(ctx context.Context, page browser.Page) error {
	for _, dialog := range s.cfg.Driver.TransientDialogs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := browser.Resolve(ctx, page, []browser.Descriptor{dialog}, dialogWait)
		if err != nil {
			continue // this popup did not show on this run
		}
		if err := page.Click(ctx, found); err != nil {
			logger.Debugf("[%s] dialog dismiss click failed: %v", s.cfg.Driver.Provider(), err)
			continue
		}
		logger.Debugf("[%s] dismissed dialog %s", s.cfg.Driver.Provider(), found)
	}
	return nil
}

func (s *Session) branchSpec() (driver.BranchSpec, error) {
	spec, ok := s.cfg.Driver.Branch(s.cfg.Branch)
	if !ok {
		return driver.BranchSpec{}, &types.NavigationError{
			Marker: string(s.cfg.Branch),
			Cause:  fmt.Errorf("branch not offered by %s", s.cfg.Driver.Provider()),
		}
	}
	return spec, nil
}

func (s *Session) navigate(ctx context.Context, page browser.Page) error {
	spec, err := s.branchSpec()
	if err != nil {
		return err
	}
	for i, stepCandidates := range spec.MenuPath {
		item, err := browser.Resolve(ctx, page, stepCandidates, probeWait)
		if err != nil {
			return &types.NavigationError{Marker: fmt.Sprintf("menu step %d", i+1), Cause: err}
		}
		if err := page.Click(ctx, item); err != nil {
			return &types.NavigationError{Marker: fmt.Sprintf("menu step %d", i+1), Cause: err}
		}
	}
	if _, err := browser.Resolve(ctx, page, spec.EntryMarker, markerWait); err != nil {
		return &types.NavigationError{Marker: "quote entry surface", Cause: err}
	}
	return nil
}

func (s *Session) fillForm(ctx context.Context, page browser.Page) error {
	spec, err := s.branchSpec()
	if err != nil {
		return err
	}
	for _, field := range spec.Fields {
		value, err := s.fieldValue(field)
		if err != nil {
			if field.Optional {
				continue
			}
			return &types.FormFillError{Field: field.Name, Cause: err}
		}
		located, err := browser.Resolve(ctx, page, field.Candidates, probeWait)
		if err != nil {
			if field.Optional {
				logger.Debugf("[%s] optional field %s not present", s.cfg.Driver.Provider(), field.Name)
				continue
			}
			return &types.FormFillError{Field: field.Name, Cause: err}
		}
		if err := page.Fill(ctx, located, value); err != nil {
			return &types.FormFillError{Field: field.Name, Cause: err}
		}
	}
	return nil
}

func (s *Session) fieldValue(field driver.Field) (string, error) {
	source := field.Source
	if source == "" {
		source = field.Name
	}
	raw, ok := s.cfg.Customer[source]
	if !ok {
		return "", fmt.Errorf("customer data has no %q", source)
	}
	value := strings.TrimSpace(fmt.Sprintf("%v", raw))
	if value == "" {
		return "", fmt.Errorf("customer data %q is empty", source)
	}
	if field.Derive != "" {
		return driver.Derive(field.Derive, value)
	}
	return value, nil
}

func (s *Session) submit(ctx context.Context, page browser.Page) error {
	spec, err := s.branchSpec()
	if err != nil {
		return err
	}
	button, err := browser.Resolve(ctx, page, spec.Submit, markerWait)
	if err != nil {
		return err
	}
	if err := page.Click(ctx, button); err != nil {
		return err
	}
	// Some portals interpose a confirmation ("apply default upgrade?").
	// Optional sub-step: absence is normal.
	if len(spec.ConfirmDialog) > 0 {
		if confirm, err := browser.Resolve(ctx, page, spec.ConfirmDialog, dialogWait); err == nil {
			if err := page.Click(ctx, confirm); err != nil {
				logger.Debugf("[%s] confirm dialog click failed: %v", s.cfg.Driver.Provider(), err)
			}
		}
	}
	return nil
}

func (s *Session) awaitResult(ctx context.Context, page browser.Page) error {
	spec, err := s.branchSpec()
	if err != nil {
		return err
	}
	wait := s.cfg.Timeouts.AwaitResult
	if spec.AwaitTimeout > 0 {
		wait = time.Duration(spec.AwaitTimeout)
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if _, err := browser.Resolve(waitCtx, page, spec.ResultMarker, wait); err != nil {
		return &types.ResultTimeoutError{Waited: wait}
	}
	return nil
}

// extract reads every declared result field into a provider-shaped map.
// It succeeds structurally even when values are missing; interpretation
// is deferred to the normalizer.
func (s *Session) extract(ctx context.Context, page browser.Page) map[string]any {
	raw := map[string]any{
		"provider":     string(s.cfg.Driver.Provider()),
		"branch":       string(s.cfg.Branch),
		"extracted_at": time.Now().UTC().Format(time.RFC3339),
	}
	spec, err := s.branchSpec()
	if err != nil {
		return raw
	}
	for name, candidates := range spec.ResultFields {
		located, err := browser.Resolve(ctx, page, candidates, probeWait)
		if err != nil {
			raw[name] = ""
			continue
		}
		text, err := page.Text(ctx, located)
		if err != nil {
			raw[name] = ""
			continue
		}
		raw[name] = strings.TrimSpace(text)
	}
	return raw
}
