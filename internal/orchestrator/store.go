package orchestrator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"teklif/internal/types"
)

// entry tracks one request. Only the dispatch goroutine that created the
// entry appends outcomes to it; the mutex exists for concurrent readers
// and the sweeper.
type entry struct {
	result         types.QuoteResult
	expected       int
	idempotencyKey string
}

type resultStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// idempotency key -> request id, kept for the lifetime of the entry
	idem map[string]string
}

func newResultStore() *resultStore {
	return &resultStore{
		entries: make(map[string]*entry),
		idem:    make(map[string]string),
	}
}

// create registers a new entry. When the idempotency key is already
// bound, it returns the original request id instead; the check and the
// registration share one critical section so concurrent submits with the
// same key cannot both dispatch.
func (s *resultStore) create(req types.QuoteRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.IdempotencyKey != "" {
		if existing, ok := s.idem[req.IdempotencyKey]; ok {
			return existing, nil
		}
	}
	if _, exists := s.entries[req.RequestID]; exists {
		return "", fmt.Errorf("request %s already exists", req.RequestID)
	}
	s.entries[req.RequestID] = &entry{
		result: types.QuoteResult{
			RequestID: req.RequestID,
			Status:    types.StatusRunning,
			CreatedAt: time.Now(),
		},
		expected:       len(req.Providers),
		idempotencyKey: req.IdempotencyKey,
	}
	if req.IdempotencyKey != "" {
		s.idem[req.IdempotencyKey] = req.RequestID
	}
	return "", nil
}

func (s *resultStore) byIdempotencyKey(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idem[key]
	return id, ok
}

// append records one provider outcome and flips the request terminal once
// every expected provider has reported. It returns whether this append
// completed the request.
func (s *resultStore) append(requestID string, offer types.Offer, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return false, &types.NotFoundError{RequestID: requestID}
	}

	if offer.Status == types.OfferCompleted {
		e.result.Offers = append(e.result.Offers, offer)
	} else {
		e.result.FailedProviders = append(e.result.FailedProviders, types.FailedProvider{
			Provider: offer.Provider,
			Reason:   reason,
		})
	}

	if len(e.result.Offers)+len(e.result.FailedProviders) < e.expected {
		return false, nil
	}
	switch {
	case len(e.result.FailedProviders) == 0:
		e.result.Status = types.StatusCompleted
	case len(e.result.Offers) == 0:
		e.result.Status = types.StatusFailed
	default:
		e.result.Status = types.StatusPartiallyFailed
	}
	now := time.Now()
	e.result.CompletedAt = &now
	return true, nil
}

func (s *resultStore) snapshot(requestID string) (types.QuoteResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[requestID]
	if !ok {
		return types.QuoteResult{}, &types.NotFoundError{RequestID: requestID}
	}
	return e.result.Clone(), nil
}

func (s *resultStore) listRecent(limit int) []types.QuoteResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.QuoteResult, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.result.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sweep evicts terminal results older than ttl. Running requests are
// never evicted, no matter how old.
func (s *resultStore) sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for id, e := range s.entries {
		if !e.result.Terminal() || e.result.CompletedAt == nil {
			continue
		}
		if now.Sub(*e.result.CompletedAt) < ttl {
			continue
		}
		delete(s.entries, id)
		if e.idempotencyKey != "" {
			delete(s.idem, e.idempotencyKey)
		}
		swept++
	}
	return swept
}
