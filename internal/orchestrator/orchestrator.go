// Package orchestrator fans one quote request out to every requested
// portal, bounds the number of concurrently held browser contexts,
// isolates per-provider failures and aggregates normalized offers into a
// pollable QuoteResult.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"teklif/internal/driver"
	"teklif/internal/logger"
	"teklif/internal/normalize"
	"teklif/internal/types"
)

// SessionRunner is one ready-to-run provider automation session.
type SessionRunner interface {
	Run(ctx context.Context) types.SessionOutcome
}

// Providers supplies per-provider sessions and result shapes. Implemented
// by the app wiring (driver registry + browser pool + credentials) and by
// test fakes.
type Providers interface {
	Enabled() []types.ProviderID
	NewSession(provider types.ProviderID, req types.QuoteRequest) (SessionRunner, error)
	Shape(provider types.ProviderID, branch types.Branch) driver.ResultShape
}

// OfferSink persists offers for audit. Failures are logged, never
// surfaced as quote failures.
type OfferSink interface {
	Save(ctx context.Context, requestID string, offer types.Offer) error
}

// Config bounds the orchestrator's resource usage.
type Config struct {
	// MaxConcurrentSessions caps simultaneously running sessions; each
	// one holds a full browser context.
	MaxConcurrentSessions int
	// SessionTimeout is the hard per-provider deadline.
	SessionTimeout time.Duration
	// ResultTTL bounds how long terminal results stay pollable.
	ResultTTL time.Duration
	// SweepInterval paces the TTL sweep.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = 3
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 3 * time.Minute
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Orchestrator owns the request-status store. The store is process-local
// and ephemeral: a restart forgets every in-flight and finished request.
type Orchestrator struct {
	cfg       Config
	providers Providers
	sink      OfferSink

	store *resultStore

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New wires an orchestrator. sink may be nil (in-memory tracking only).
func New(cfg Config, providers Providers, sink OfferSink) *Orchestrator {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		providers: providers,
		sink:      sink,
		store:     newResultStore(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Submit validates the request, records a Running result and schedules one
// session per provider. It returns the request id immediately; scraping
// happens in the background.
func (o *Orchestrator) Submit(req types.QuoteRequest) (string, error) {
	if _, err := types.ParseBranch(string(req.Branch)); err != nil {
		return "", err
	}
	if err := ValidateCustomerData(req.Branch, req.CustomerData); err != nil {
		return "", err
	}

	enabled := o.providers.Enabled()
	if len(enabled) == 0 {
		return "", fmt.Errorf("no providers enabled")
	}
	providers := req.Providers
	if len(providers) == 0 {
		providers = enabled
	} else {
		enabledSet := make(map[types.ProviderID]bool, len(enabled))
		for _, p := range enabled {
			enabledSet[p] = true
		}
		seen := make(map[types.ProviderID]bool, len(providers))
		for _, p := range providers {
			if !enabledSet[p] {
				return "", fmt.Errorf("provider %q is not enabled", p)
			}
			if seen[p] {
				return "", fmt.Errorf("provider %q listed twice", p)
			}
			seen[p] = true
		}
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Providers = providers

	// Idempotency: a key that already dispatched keeps its original
	// request and spawns nothing new.
	existing, err := o.store.create(req)
	if err != nil {
		return "", err
	}
	if existing != "" {
		logger.Infof("request with idempotency key %q already dispatched as %s", req.IdempotencyKey, existing)
		return existing, nil
	}
	go o.dispatch(req)
	return req.RequestID, nil
}

// GetStatus returns a point-in-time snapshot; a terminal status never
// reverts. Unknown ids fail with NotFound.
func (o *Orchestrator) GetStatus(requestID string) (types.QuoteResult, error) {
	return o.store.snapshot(requestID)
}

// ListRecent returns snapshots of the most recently created requests.
func (o *Orchestrator) ListRecent(limit int) []types.QuoteResult {
	return o.store.listRecent(limit)
}

// Run keeps the TTL sweep going until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := o.store.sweep(time.Now(), o.cfg.ResultTTL); n > 0 {
				logger.Debugf("swept %d expired quote results", n)
			}
		}
	}
}

// Close cancels every in-flight session.
func (o *Orchestrator) Close() {
	o.cancel()
}

// dispatch is the coordinating task for one request: it fans out under
// the session limit and is the only writer of this request's QuoteResult.
func (o *Orchestrator) dispatch(req types.QuoteRequest) {
	results := make(chan providerResult, len(req.Providers))

	group := new(errgroup.Group)
	group.SetLimit(o.cfg.MaxConcurrentSessions)
	go func() {
		for _, provider := range req.Providers {
			provider := provider
			group.Go(func() error {
				results <- o.runProvider(provider, req)
				return nil
			})
		}
		group.Wait() //nolint:errcheck // session errors travel inside providerResult
		close(results)
	}()

	for res := range results {
		done, err := o.store.append(req.RequestID, res.offer, res.reason)
		if err != nil {
			// result swept mid-flight; nothing left to aggregate into
			logger.Warnf("dropping outcome for %s/%s: %v", req.RequestID, res.offer.Provider, err)
			continue
		}
		o.persist(req.RequestID, res.offer)
		if done {
			snap, _ := o.store.snapshot(req.RequestID)
			logger.Infof("request %s terminal: %s (%d offers, %d failed)",
				req.RequestID, snap.Status, len(snap.Offers), len(snap.FailedProviders))
		}
	}
}

// providerResult pairs the normalized offer with the failure reason used
// in QuoteResult.FailedProviders.
type providerResult struct {
	offer  types.Offer
	reason string
}

func (o *Orchestrator) runProvider(provider types.ProviderID, req types.QuoteRequest) providerResult {
	ctx, cancel := context.WithTimeout(o.baseCtx, o.cfg.SessionTimeout)
	defer cancel()

	runner, err := o.providers.NewSession(provider, req)
	if err != nil {
		outcome := types.SessionOutcome{
			Provider: provider,
			State:    types.OutcomeFailed,
			Err: &types.ErrorInfo{
				Code:    types.CodeResourceUnavailable,
				Message: err.Error(),
			},
		}
		offer := normalize.Normalize(outcome, req.Branch, customerRef(req), driver.ResultShape{})
		return providerResult{offer: offer, reason: types.CodeResourceUnavailable}
	}

	outcome := runner.Run(ctx)
	shape := o.providers.Shape(provider, req.Branch)
	offer := normalize.Normalize(outcome, req.Branch, customerRef(req), shape)

	reason := ""
	if offer.Status == types.OfferFailed {
		switch {
		case outcome.Err != nil:
			reason = outcome.Err.Code
		default:
			reason = types.CodePriceParseError
		}
	}
	return providerResult{offer: offer, reason: reason}
}

// persist is best-effort: StoreUnavailable degrades to in-memory tracking.
func (o *Orchestrator) persist(requestID string, offer types.Offer) {
	if o.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.sink.Save(ctx, requestID, offer); err != nil {
		logger.Errorf("offer persistence failed for %s/%s: %v",
			requestID, offer.Provider, &types.StoreUnavailableError{Cause: err})
	}
}

func customerRef(req types.QuoteRequest) string {
	if v, ok := req.CustomerData["national_id"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
