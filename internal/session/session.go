// Package session runs the provider automation state machine: one run
// drives one portal end-to-end for one request and reports a single
// SessionOutcome. Sessions are single-use and share nothing with each
// other; cross-session policy (concurrency, deadlines, retries) belongs to
// the orchestrator.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"teklif/internal/browser"
	"teklif/internal/driver"
	"teklif/internal/logger"
	"teklif/internal/totp"
	"teklif/internal/types"
)

// State names the machine's positions. Transitions go strictly forward or
// to Failed.
type State string

const (
	StateInit         State = "Init"
	StateAuthenticate State = "Authenticate"
	StateClearDialogs State = "ClearTransientDialogs"
	StateNavigate     State = "Navigate"
	StateFillForm     State = "FillForm"
	StateSubmit       State = "Submit"
	StateAwaitResult  State = "AwaitResult"
	StateExtract      State = "Extract"
	StateCompleted    State = "Completed"
	StateFailed       State = "Failed"
)

// Lease is one acquired browser context; satisfied by *browser.Handle.
type Lease interface {
	Page() browser.Page
	Release()
}

// AcquireFunc allocates an isolated automation context for Init.
type AcquireFunc func(ctx context.Context) (Lease, error)

// Credentials hold one portal's operator login.
type Credentials struct {
	Username   string
	Password   string
	TOTPSecret string
}

// Timeouts bound each state transition individually.
type Timeouts struct {
	Init         time.Duration
	Authenticate time.Duration
	ClearDialogs time.Duration
	Navigate     time.Duration
	FillForm     time.Duration
	Submit       time.Duration
	AwaitResult  time.Duration
	Extract      time.Duration
}

// DefaultTimeouts reflect observed portal behavior; quote pricing alone
// takes 10-25s on the slower portals.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Init:         10 * time.Second,
		Authenticate: 45 * time.Second,
		ClearDialogs: 5 * time.Second,
		Navigate:     30 * time.Second,
		FillForm:     60 * time.Second,
		Submit:       15 * time.Second,
		AwaitResult:  30 * time.Second,
		Extract:      15 * time.Second,
	}
}

// applyProfile fills unset states from the portal's profile budgets.
// Explicit caller values always win over the profile.
func (t *Timeouts) applyProfile(p driver.TimeoutSpec) {
	if t.Init <= 0 {
		t.Init = time.Duration(p.Init)
	}
	if t.Authenticate <= 0 {
		t.Authenticate = time.Duration(p.Authenticate)
	}
	if t.ClearDialogs <= 0 {
		t.ClearDialogs = time.Duration(p.ClearDialogs)
	}
	if t.Navigate <= 0 {
		t.Navigate = time.Duration(p.Navigate)
	}
	if t.FillForm <= 0 {
		t.FillForm = time.Duration(p.FillForm)
	}
	if t.Submit <= 0 {
		t.Submit = time.Duration(p.Submit)
	}
	if t.AwaitResult <= 0 {
		t.AwaitResult = time.Duration(p.AwaitResult)
	}
	if t.Extract <= 0 {
		t.Extract = time.Duration(p.Extract)
	}
}

func (t *Timeouts) applyDefaults() {
	def := DefaultTimeouts()
	if t.Init <= 0 {
		t.Init = def.Init
	}
	if t.Authenticate <= 0 {
		t.Authenticate = def.Authenticate
	}
	if t.ClearDialogs <= 0 {
		t.ClearDialogs = def.ClearDialogs
	}
	if t.Navigate <= 0 {
		t.Navigate = def.Navigate
	}
	if t.FillForm <= 0 {
		t.FillForm = def.FillForm
	}
	if t.Submit <= 0 {
		t.Submit = def.Submit
	}
	if t.AwaitResult <= 0 {
		t.AwaitResult = def.AwaitResult
	}
	if t.Extract <= 0 {
		t.Extract = def.Extract
	}
}

// Config assembles one session run.
type Config struct {
	Driver      driver.Driver
	Branch      types.Branch
	Customer    map[string]any
	Credentials Credentials
	Acquire     AcquireFunc
	Timeouts    Timeouts
	Tokens      *TokenCache
	// TOTP generates the second-factor code; defaults to totp.Now.
	TOTP func(secret string) (string, error)
}

// Session is one run of the state machine. Run may be called once.
type Session struct {
	cfg   Config
	state State
	used  atomic.Bool
}

// New validates the wiring and returns a fresh session.
func New(cfg Config) (*Session, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("session requires a driver")
	}
	if cfg.Acquire == nil {
		return nil, fmt.Errorf("session requires an acquire func")
	}
	if cfg.TOTP == nil {
		cfg.TOTP = totp.Now
	}
	// Budget precedence: caller override, then the portal's profile, then
	// the defaults.
	cfg.Timeouts.applyProfile(cfg.Driver.Timeouts())
	cfg.Timeouts.applyDefaults()
	return &Session{cfg: cfg, state: StateInit}, nil
}

// State reports the machine's current position.
func (s *Session) State() State { return s.state }

// Run drives the portal end-to-end and always returns an outcome. The
// browser context acquired in Init is released on every exit path.
func (s *Session) Run(ctx context.Context) types.SessionOutcome {
	provider := s.cfg.Driver.Provider()
	start := time.Now()

	if !s.used.CompareAndSwap(false, true) {
		return s.failed(provider, start, StateFailed,
			fmt.Errorf("session for %s already consumed", provider))
	}

	// Init
	s.state = StateInit
	initCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Init)
	lease, err := s.cfg.Acquire(initCtx)
	cancel()
	if err != nil {
		return s.failed(provider, start, StateInit, err)
	}
	defer lease.Release()
	page := lease.Page()

	type step struct {
		state   State
		timeout time.Duration
		fn      func(context.Context, browser.Page) error
	}
	steps := []step{
		{StateAuthenticate, s.cfg.Timeouts.Authenticate, s.authenticate},
		{StateClearDialogs, s.cfg.Timeouts.ClearDialogs, s.clearTransientDialogs},
		{StateNavigate, s.cfg.Timeouts.Navigate, s.navigate},
		{StateFillForm, s.cfg.Timeouts.FillForm, s.fillForm},
		{StateSubmit, s.cfg.Timeouts.Submit, s.submit},
		{StateAwaitResult, s.cfg.Timeouts.AwaitResult, s.awaitResult},
	}
	for _, st := range steps {
		s.state = st.state
		stepCtx, cancel := context.WithTimeout(ctx, st.timeout)
		err := st.fn(stepCtx, page)
		cancel()
		if err != nil {
			if st.state == StateClearDialogs {
				// Popups are non-deterministic; absence is the common case.
				logger.Warnf("[%s] transient dialog pass failed: %v", provider, err)
				continue
			}
			return s.failed(provider, start, st.state, err)
		}
		logger.Debugf("[%s] %s ok", provider, st.state)
	}

	// Extract always succeeds structurally; empty values are the
	// normalizer's problem.
	s.state = StateExtract
	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Extract)
	raw := s.extract(extractCtx, page)
	cancel()

	s.state = StateCompleted
	logger.Infof("[%s] session completed in %s", provider, time.Since(start).Truncate(time.Millisecond))
	return types.SessionOutcome{
		Provider:   provider,
		State:      types.OutcomeCompleted,
		RawPayload: raw,
		Duration:   time.Since(start),
	}
}

func (s *Session) failed(provider types.ProviderID, start time.Time, state State, err error) types.SessionOutcome {
	s.state = StateFailed
	code := types.ErrorCode(err)
	if code == "" {
		code = "SessionError"
	}
	logger.Warnf("[%s] session failed at %s: %v", provider, state, err)
	return types.SessionOutcome{
		Provider: provider,
		State:    types.OutcomeFailed,
		Err: &types.ErrorInfo{
			Code:    code,
			State:   string(state),
			Message: err.Error(),
		},
		Duration: time.Since(start),
	}
}
