package app

import (
	"context"
	"fmt"
	"sort"

	"teklif/internal/browser"
	"teklif/internal/config"
	"teklif/internal/driver"
	"teklif/internal/orchestrator"
	"teklif/internal/session"
	"teklif/internal/types"
)

// providerHub glues the driver registry, browser pool and configured
// accounts into the surface the orchestrator consumes. A provider is
// usable only when it has both a loaded profile and an enabled account.
type providerHub struct {
	registry *driver.Registry
	pool     *browser.Pool
	tokens   *session.TokenCache
	accounts map[types.ProviderID]config.ProviderConfig
}

func newProviderHub(registry *driver.Registry, pool *browser.Pool, accounts map[string]config.ProviderConfig) *providerHub {
	byID := make(map[types.ProviderID]config.ProviderConfig, len(accounts))
	for name, acc := range accounts {
		byID[types.ProviderID(name)] = acc
	}
	return &providerHub{
		registry: registry,
		pool:     pool,
		tokens:   session.NewTokenCache(),
		accounts: byID,
	}
}

func (h *providerHub) Enabled() []types.ProviderID {
	var out []types.ProviderID
	for _, id := range h.registry.Providers() {
		if acc, ok := h.accounts[id]; ok && acc.Enabled {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *providerHub) NewSession(provider types.ProviderID, req types.QuoteRequest) (orchestrator.SessionRunner, error) {
	drv, ok := h.registry.Driver(provider)
	if !ok {
		return nil, fmt.Errorf("no driver profile for provider %q", provider)
	}
	acc, ok := h.accounts[provider]
	if !ok || !acc.Enabled {
		return nil, fmt.Errorf("provider %q has no enabled account", provider)
	}
	return session.New(session.Config{
		Driver:   drv,
		Branch:   req.Branch,
		Customer: req.CustomerData,
		Credentials: session.Credentials{
			Username:   acc.Username,
			Password:   acc.Password,
			TOTPSecret: acc.TOTPSecret,
		},
		Acquire: h.acquire,
		Tokens:  h.tokens,
	})
}

func (h *providerHub) Shape(provider types.ProviderID, branch types.Branch) driver.ResultShape {
	drv, ok := h.registry.Driver(provider)
	if !ok {
		return driver.ResultShape{}
	}
	spec, ok := drv.Branch(branch)
	if !ok {
		return driver.ResultShape{}
	}
	return spec.Shape
}

func (h *providerHub) acquire(ctx context.Context) (session.Lease, error) {
	handle, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
