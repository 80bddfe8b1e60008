package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"teklif/internal/logger"
	"teklif/internal/types"
)

// PoolConfig sizes the shared browser allocator. Each handle is a full
// browser tab, the scarce resource that bounds session concurrency.
type PoolConfig struct {
	Size           int
	Headless       bool
	AcquireTimeout time.Duration
	UserAgent      string
}

// Pool hands out isolated browser contexts. Handles from different
// acquisitions share nothing above the browser process itself.
type Pool struct {
	cfg    PoolConfig
	alloc  context.Context
	cancel context.CancelFunc
	slots  chan struct{}
}

// NewPool builds the exec allocator and fills the slot channel. The
// browser process itself starts lazily on the first acquire.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 2
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	alloc, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	slots := make(chan struct{}, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		slots <- struct{}{}
	}
	return &Pool{cfg: cfg, alloc: alloc, cancel: cancel, slots: slots}, nil
}

// Acquire blocks up to the configured acquire timeout for a free slot and
// returns a fresh tab. Exhaustion surfaces as ResourceUnavailable so the
// session's Init state can fail cleanly.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
	case <-ctx.Done():
		return nil, &types.ResourceUnavailableError{Reason: ctx.Err().Error()}
	case <-timer.C:
		return nil, &types.ResourceUnavailableError{Reason: "browser pool exhausted"}
	}

	tab, tabCancel := chromedp.NewContext(p.alloc)
	h := &Handle{
		page:   &chromePage{tab: tab},
		cancel: tabCancel,
		pool:   p,
	}
	return h, nil
}

// Close tears down the allocator and every tab created from it.
func (p *Pool) Close() {
	p.cancel()
}

// Handle is one acquired browser context. Release is safe to call more
// than once and must run on every session exit path.
type Handle struct {
	page    Page
	cancel  context.CancelFunc
	pool    *Pool
	release sync.Once
}

// Page returns the automation surface for this tab.
func (h *Handle) Page() Page { return h.page }

// Release closes the tab and returns its slot to the pool.
func (h *Handle) Release() {
	h.release.Do(func() {
		h.cancel()
		select {
		case h.pool.slots <- struct{}{}:
		default:
			logger.ForComponent("browser").Warnf("pool slot overflow on release")
		}
	})
}
