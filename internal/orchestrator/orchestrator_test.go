package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teklif/internal/driver"
	"teklif/internal/types"
)

type runnerFunc func(ctx context.Context) types.SessionOutcome

func (f runnerFunc) Run(ctx context.Context) types.SessionOutcome { return f(ctx) }

type fakeProviders struct {
	mu        sync.Mutex
	enabled   []types.ProviderID
	runners   map[types.ProviderID]runnerFunc
	newErr    map[types.ProviderID]error
	shapes    map[types.ProviderID]driver.ResultShape
	runs      map[types.ProviderID]int
	active    int
	maxActive int
}

func newFakeProviders(ids ...types.ProviderID) *fakeProviders {
	f := &fakeProviders{
		enabled: ids,
		runners: make(map[types.ProviderID]runnerFunc),
		newErr:  make(map[types.ProviderID]error),
		shapes:  make(map[types.ProviderID]driver.ResultShape),
		runs:    make(map[types.ProviderID]int),
	}
	for _, id := range ids {
		id := id
		f.runners[id] = func(context.Context) types.SessionOutcome { return completedOutcome(id, "1.000,00 TL", "Q-1") }
		f.shapes[id] = driver.ResultShape{PricePath: "price", QuoteNumberPath: "quote_number"}
	}
	return f
}

func (f *fakeProviders) Enabled() []types.ProviderID { return f.enabled }

func (f *fakeProviders) NewSession(provider types.ProviderID, _ types.QuoteRequest) (SessionRunner, error) {
	f.mu.Lock()
	f.runs[provider]++
	err := f.newErr[provider]
	runner := f.runners[provider]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return runnerFunc(func(ctx context.Context) types.SessionOutcome {
		f.mu.Lock()
		f.active++
		if f.active > f.maxActive {
			f.maxActive = f.active
		}
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.active--
			f.mu.Unlock()
		}()
		return runner(ctx)
	}), nil
}

func (f *fakeProviders) Shape(provider types.ProviderID, _ types.Branch) driver.ResultShape {
	return f.shapes[provider]
}

func (f *fakeProviders) runCount(provider types.ProviderID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[provider]
}

func completedOutcome(provider types.ProviderID, price, quoteNumber string) types.SessionOutcome {
	return types.SessionOutcome{
		Provider: provider,
		State:    types.OutcomeCompleted,
		RawPayload: map[string]any{
			"price":        price,
			"quote_number": quoteNumber,
		},
	}
}

func failedOutcome(provider types.ProviderID, code string) types.SessionOutcome {
	return types.SessionOutcome{
		Provider: provider,
		State:    types.OutcomeFailed,
		Err:      &types.ErrorInfo{Code: code, State: "AwaitResult", Message: "gave up"},
	}
}

func trafikRequest() types.QuoteRequest {
	return types.QuoteRequest{
		Branch: types.BranchTrafik,
		CustomerData: map[string]any{
			"national_id":       "12345678901",
			"birth_date":        "1990-04-02",
			"plate":             "34ABC123",
			"registration_code": "AB123456",
		},
	}
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) types.QuoteResult {
	t.Helper()
	var res types.QuoteResult
	require.Eventually(t, func() bool {
		var err error
		res, err = o.GetStatus(id)
		require.NoError(t, err)
		return res.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return res
}

func TestSubmit_AllProvidersSucceed(t *testing.T) {
	providers := newFakeProviders("sompo", "koru")
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Len(t, res.Offers, 2)
	assert.Empty(t, res.FailedProviders)
	require.NotNil(t, res.CompletedAt)
}

func TestSubmit_CompletenessWithOneFailure(t *testing.T) {
	providers := newFakeProviders("sompo", "koru", "ray")
	providers.runners["koru"] = func(context.Context) types.SessionOutcome {
		return failedOutcome("koru", types.CodeResultTimeout)
	}
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusPartiallyFailed, res.Status)
	assert.Len(t, res.Offers, 2)
	require.Len(t, res.FailedProviders, 1)
	assert.Equal(t, types.ProviderID("koru"), res.FailedProviders[0].Provider)
	assert.Equal(t, types.CodeResultTimeout, res.FailedProviders[0].Reason)
	// every requested provider is accounted for exactly once
	assert.Equal(t, 3, len(res.Offers)+len(res.FailedProviders))
}

func TestSubmit_AllProvidersFail(t *testing.T) {
	providers := newFakeProviders("sompo", "koru")
	providers.runners["sompo"] = func(context.Context) types.SessionOutcome {
		return failedOutcome("sompo", types.CodeAuthenticationFailed)
	}
	providers.runners["koru"] = func(context.Context) types.SessionOutcome {
		return failedOutcome("koru", types.CodeNavigationFailed)
	}
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Empty(t, res.Offers)
	assert.Len(t, res.FailedProviders, 2)
}

func TestSubmit_TurkishPriceEndToEnd(t *testing.T) {
	providers := newFakeProviders("sompo", "koru")
	providers.runners["sompo"] = func(context.Context) types.SessionOutcome {
		return completedOutcome("sompo", "2.500,00 TL", "TRF-2024-001")
	}
	providers.runners["koru"] = func(context.Context) types.SessionOutcome {
		return failedOutcome("koru", types.CodeResultTimeout)
	}
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	require.Len(t, res.Offers, 1)
	offer := res.Offers[0]
	assert.Equal(t, types.ProviderID("sompo"), offer.Provider)
	require.NotNil(t, offer.Price)
	assert.True(t, decimal.RequireFromString("2500").Equal(*offer.Price))
	assert.Equal(t, "TRY", offer.Currency)
	assert.Equal(t, "TRF-2024-001", offer.QuoteNumber)
	assert.Equal(t, "12345678901", offer.CustomerRef)
	require.Len(t, res.FailedProviders, 1)
	assert.Equal(t, types.CodeResultTimeout, res.FailedProviders[0].Reason)
}

func TestSubmit_SlowProviderDoesNotBlockOthers(t *testing.T) {
	providers := newFakeProviders("sompo", "koru")
	providers.runners["koru"] = func(ctx context.Context) types.SessionOutcome {
		<-ctx.Done()
		return failedOutcome("koru", types.CodeResultTimeout)
	}
	o := New(Config{SessionTimeout: 150 * time.Millisecond}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	// the fast provider's offer is visible while the slow one still runs
	require.Eventually(t, func() bool {
		res, err := o.GetStatus(id)
		require.NoError(t, err)
		return len(res.Offers) == 1
	}, 5*time.Second, 5*time.Millisecond)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusPartiallyFailed, res.Status)
	assert.Equal(t, 2, len(res.Offers)+len(res.FailedProviders))
}

func TestSubmit_SessionConstructionFailure(t *testing.T) {
	providers := newFakeProviders("sompo")
	providers.newErr["sompo"] = errors.New("browser pool exhausted")
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusFailed, res.Status)
	require.Len(t, res.FailedProviders, 1)
	assert.Equal(t, types.CodeResourceUnavailable, res.FailedProviders[0].Reason)
}

func TestSubmit_BoundsConcurrentSessions(t *testing.T) {
	ids := []types.ProviderID{"p1", "p2", "p3", "p4", "p5", "p6"}
	providers := newFakeProviders(ids...)
	for _, id := range ids {
		id := id
		providers.runners[id] = func(context.Context) types.SessionOutcome {
			time.Sleep(40 * time.Millisecond)
			return completedOutcome(id, "100,00 TL", "Q")
		}
	}
	o := New(Config{MaxConcurrentSessions: 2}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)
	waitTerminal(t, o, id)

	providers.mu.Lock()
	defer providers.mu.Unlock()
	assert.LessOrEqual(t, providers.maxActive, 2)
}

func TestSubmit_IdempotencyKeyReturnsSameRequest(t *testing.T) {
	providers := newFakeProviders("sompo")
	o := New(Config{}, providers, nil)
	defer o.Close()

	req := trafikRequest()
	req.IdempotencyKey = "order-42"

	first, err := o.Submit(req)
	require.NoError(t, err)
	second, err := o.Submit(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	waitTerminal(t, o, first)
	assert.Equal(t, 1, providers.runCount("sompo"))
}

func TestSubmit_Validation(t *testing.T) {
	providers := newFakeProviders("sompo")
	o := New(Config{}, providers, nil)
	defer o.Close()

	t.Run("unknown branch", func(t *testing.T) {
		req := trafikRequest()
		req.Branch = "LIFE"
		_, err := o.Submit(req)
		assert.Error(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		req := trafikRequest()
		delete(req.CustomerData, "plate")
		_, err := o.Submit(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "customer data invalid")
	})

	t.Run("malformed national id", func(t *testing.T) {
		req := trafikRequest()
		req.CustomerData["national_id"] = "123"
		_, err := o.Submit(req)
		assert.Error(t, err)
	})

	t.Run("malformed email", func(t *testing.T) {
		req := trafikRequest()
		req.CustomerData["email"] = "not-an-address"
		_, err := o.Submit(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "customer data invalid")
	})

	t.Run("unknown provider", func(t *testing.T) {
		req := trafikRequest()
		req.Providers = []types.ProviderID{"nonexistent"}
		_, err := o.Submit(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not enabled")
	})

	t.Run("duplicate provider", func(t *testing.T) {
		req := trafikRequest()
		req.Providers = []types.ProviderID{"sompo", "sompo"}
		_, err := o.Submit(req)
		assert.Error(t, err)
	})
}

func TestSubmit_ExplicitSubsetOfProviders(t *testing.T) {
	providers := newFakeProviders("sompo", "koru", "ray")
	o := New(Config{}, providers, nil)
	defer o.Close()

	req := trafikRequest()
	req.Providers = []types.ProviderID{"koru"}
	id, err := o.Submit(req)
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, types.ProviderID("koru"), res.Offers[0].Provider)
	assert.Equal(t, 0, providers.runCount("sompo"))
}

func TestGetStatus_UnknownRequest(t *testing.T) {
	o := New(Config{}, newFakeProviders("sompo"), nil)
	defer o.Close()

	_, err := o.GetStatus("no-such-id")
	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-id", notFound.RequestID)
}

func TestGetStatus_SnapshotIsIsolated(t *testing.T) {
	providers := newFakeProviders("sompo")
	o := New(Config{}, providers, nil)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)
	res := waitTerminal(t, o, id)

	res.Offers[0].QuoteNumber = "mutated"
	again, err := o.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, "Q-1", again.Offers[0].QuoteNumber)
}

type recordingSink struct {
	mu    sync.Mutex
	saved []types.Offer
	err   error
}

func (s *recordingSink) Save(_ context.Context, _ string, offer types.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, offer)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestDispatch_PersistsEveryOffer(t *testing.T) {
	providers := newFakeProviders("sompo", "koru")
	providers.runners["koru"] = func(context.Context) types.SessionOutcome {
		return failedOutcome("koru", types.CodeResultTimeout)
	}
	sink := &recordingSink{}
	o := New(Config{}, providers, sink)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)
	waitTerminal(t, o, id)

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatch_SinkFailureDoesNotFailRequest(t *testing.T) {
	providers := newFakeProviders("sompo")
	sink := &recordingSink{err: errors.New("disk full")}
	o := New(Config{}, providers, sink)
	defer o.Close()

	id, err := o.Submit(trafikRequest())
	require.NoError(t, err)

	res := waitTerminal(t, o, id)
	assert.Equal(t, types.StatusCompleted, res.Status)
}

func TestResultStore_SweepEvictsOnlyExpiredTerminal(t *testing.T) {
	s := newResultStore()
	_, err := s.create(types.QuoteRequest{
		RequestID: "done", Providers: []types.ProviderID{"sompo"}, IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	done, err := s.append("done", types.Offer{Provider: "sompo", Status: types.OfferCompleted}, "")
	require.NoError(t, err)
	require.True(t, done)

	_, err = s.create(types.QuoteRequest{
		RequestID: "running", Providers: []types.ProviderID{"sompo", "koru"},
	})
	require.NoError(t, err)
	_, err = s.append("running", types.Offer{Provider: "sompo", Status: types.OfferCompleted}, "")
	require.NoError(t, err)

	swept := s.sweep(time.Now().Add(2*time.Hour), time.Hour)
	assert.Equal(t, 1, swept)

	_, err = s.snapshot("done")
	assert.Error(t, err)
	_, ok := s.byIdempotencyKey("k1")
	assert.False(t, ok)

	running, err := s.snapshot("running")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, running.Status)
}

func TestListRecent(t *testing.T) {
	providers := newFakeProviders("sompo")
	o := New(Config{}, providers, nil)
	defer o.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		req := trafikRequest()
		req.RequestID = fmt.Sprintf("req-%d", i)
		id, err := o.Submit(req)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitTerminal(t, o, id)
	}

	recent := o.ListRecent(2)
	assert.Len(t, recent, 2)
}
