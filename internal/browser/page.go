package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Cookie is the portable subset of a browser cookie the auth cache keeps.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

// Page is the read/write surface a session needs from one browser tab.
// Implemented by the chromedp-backed handle below and by test fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, d Descriptor) error
	Click(ctx context.Context, d Descriptor) error
	Fill(ctx context.Context, d Descriptor, value string) error
	Text(ctx context.Context, d Descriptor) (string, error)
	Location(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
}

// chromePage drives one chromedp tab. All methods honor the caller's
// context for cancellation and deadline while running against the tab's
// own context.
type chromePage struct {
	tab context.Context
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, dl)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func queryOption(d Descriptor) chromedp.QueryOption {
	if d.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromePage) WaitVisible(ctx context.Context, d Descriptor) error {
	return p.run(ctx, chromedp.WaitVisible(d.Value, queryOption(d)))
}

func (p *chromePage) Click(ctx context.Context, d Descriptor) error {
	return p.run(ctx, chromedp.Click(d.Value, queryOption(d)))
}

func (p *chromePage) Fill(ctx context.Context, d Descriptor, value string) error {
	return p.run(ctx,
		chromedp.Clear(d.Value, queryOption(d)),
		chromedp.SendKeys(d.Value, value, queryOption(d)),
	)
}

func (p *chromePage) Text(ctx context.Context, d Descriptor) (string, error) {
	var out string
	err := p.run(ctx, chromedp.Text(d.Value, &out, queryOption(d)))
	return out, err
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var out string
	err := p.run(ctx, chromedp.Location(&out))
	return out, err
}

func (p *chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &t
		}
		params = append(params, param)
	}
	return p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	}))
}
