package driver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/obs"
	"github.com/kuitang/machreg-e2e/internal/urlutil"
)

// DefaultTimeout mirrors the dashboard suite's default command timeout.
const DefaultTimeout = 4 * time.Second

// LaunchOptions selects and configures the browser engine.
type LaunchOptions struct {
	Browser  string // chromium, firefox or webkit
	Headless bool
}

// Browser owns a playwright process and one launched browser.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts playwright and the requested browser engine.
func Launch(opts LaunchOptions) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright", err)
	}

	var bt playwright.BrowserType
	switch strings.ToLower(strings.TrimSpace(opts.Browser)) {
	case "", "chromium", "chrome":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser %q", opts.Browser))
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch browser", err)
	}
	return &Browser{pw: pw, browser: browser}, nil
}

// NewSession opens an isolated browser context with one page.
func (b *Browser) NewSession(opts PlaywrightOptions) (*Playwright, error) {
	copts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreHTTPSErrors),
	}
	if opts.RunID != "" {
		copts.ExtraHttpHeaders = map[string]string{obs.RunIDHeader: opts.RunID}
	}
	bctx, err := b.browser.NewContext(copts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "new browser context", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Unavailable, "new page", err)
	}
	return NewPlaywright(page, opts), nil
}

// Close stops the browser and the playwright process.
func (b *Browser) Close() error {
	var closeErr error
	if b.browser != nil {
		closeErr = b.browser.Close()
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// PlaywrightOptions configures a page-backed Driver.
type PlaywrightOptions struct {
	BaseURL           string
	DefaultTimeout    time.Duration
	IgnoreHTTPSErrors bool
	// RunID, when set, is sent with every request of the session.
	RunID string
}

// Playwright is a Driver backed by one playwright-go page.
type Playwright struct {
	page    playwright.Page
	baseURL string
	timeout time.Duration

	mu           sync.Mutex
	interceptors []*interceptor
}

var _ Driver = (*Playwright)(nil)

// NewPlaywright wraps an existing page.
func NewPlaywright(page playwright.Page, opts PlaywrightOptions) *Playwright {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	page.SetDefaultTimeout(ms(timeout))
	page.SetDefaultNavigationTimeout(ms(timeout))

	d := &Playwright{
		page:    page,
		baseURL: opts.BaseURL,
		timeout: timeout,
	}
	page.OnResponse(d.dispatchResponse)
	return d
}

// Page exposes the underlying page for test diagnostics.
func (d *Playwright) Page() playwright.Page {
	return d.page
}

// Close closes the page's browser context.
func (d *Playwright) Close() error {
	return d.page.Context().Close()
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

func classify(action string, q Query, err error) error {
	if err == nil {
		return nil
	}
	msg := action
	if !q.IsZero() {
		msg += " " + q.String()
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.Timeout, msg, err)
	}
	return errs.Wrap(errs.Internal, msg, err)
}

func (d *Playwright) resolve(q Query) (playwright.Locator, error) {
	if err := q.Validate(); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "query "+q.String(), err)
	}
	var loc playwright.Locator
	for _, s := range q.steps {
		var text interface{}
		switch {
		case s.re != nil:
			text = s.re
		case s.kind == stepText || s.kind == stepHasText:
			text = literalText(s.text)
		}
		switch s.kind {
		case stepFind:
			if loc == nil {
				loc = d.page.Locator(s.selector)
			} else {
				loc = loc.Locator(s.selector)
			}
		case stepText:
			if loc == nil {
				loc = d.page.GetByText(text)
			} else {
				loc = loc.GetByText(text)
			}
		case stepHasText:
			loc = loc.Filter(playwright.LocatorFilterOptions{HasText: text})
		case stepNth:
			loc = loc.Nth(s.index)
		case stepLast:
			loc = loc.Last()
		case stepParent:
			loc = loc.Locator("xpath=..")
		case stepFocused:
			loc = d.page.Locator("*:focus")
		}
	}
	if !q.picksOne() {
		loc = loc.First()
	}
	return loc, nil
}

// literalText matches s as a case-sensitive substring. Playwright treats
// plain strings case-insensitively, so they are sent as a pattern with runs
// of whitespace relaxed to match the normalized page text.
func literalText(s string) *regexp.Regexp {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(strings.Join(words, `\s+`))
}

func (d *Playwright) Visit(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(urlutil.BuildAbsolute(d.baseURL, path), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return classify("visit "+path, Query{}, err)
}

func (d *Playwright) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return classify("reload", Query{}, err)
}

func (d *Playwright) Click(ctx context.Context, q Query, opts ClickOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	clickOpts := playwright.LocatorClickOptions{}
	if opts.Position != nil {
		clickOpts.Position = &playwright.Position{X: opts.Position.X, Y: opts.Position.Y}
	}
	return classify("click", q, loc.Click(clickOpts))
}

func (d *Playwright) Trigger(ctx context.Context, q Query, event string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	return classify("trigger "+event, q, loc.DispatchEvent(event, nil))
}

func (d *Playwright) Focus(ctx context.Context, q Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	return classify("focus", q, loc.Focus())
}

func (d *Playwright) Clear(ctx context.Context, q Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	return classify("clear", q, loc.Clear())
}

// Type sends literal runs keystroke by keystroke and presses named keys.
// The focused query types through the page keyboard so the caret set by a
// previous click is kept.
func (d *Playwright) Type(ctx context.Context, q Query, text string, opts TypeOptions) error {
	keys, err := ParseKeys(text)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "type "+q.String(), err)
	}
	var loc playwright.Locator
	if !q.IsFocused() {
		if loc, err = d.resolve(q); err != nil {
			return err
		}
	}
	delay := playwright.Float(ms(opts.Delay))
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case loc == nil && k.IsNamed():
			err = d.page.Keyboard().Press(k.Name)
		case loc == nil:
			err = d.page.Keyboard().Type(k.Text, playwright.KeyboardTypeOptions{Delay: delay})
		case k.IsNamed():
			err = loc.Press(k.Name)
		default:
			err = loc.PressSequentially(k.Text, playwright.LocatorPressSequentiallyOptions{Delay: delay})
		}
		if err != nil {
			return classify("type", q, err)
		}
	}
	return nil
}

func (d *Playwright) Press(ctx context.Context, q Query, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.IsFocused() {
		return classify("press "+key, q, d.page.Keyboard().Press(key))
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	return classify("press "+key, q, loc.Press(key))
}

func (d *Playwright) WaitFor(ctx context.Context, q Query, opts WaitOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	state := playwright.WaitForSelectorStateVisible
	switch opts.State {
	case WaitAttached:
		state = playwright.WaitForSelectorStateAttached
	case WaitDetached:
		state = playwright.WaitForSelectorStateDetached
	}
	err = loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		return errs.Wrap(errs.AssertionFailed,
			fmt.Sprintf("expected %s to be %s within %s", q, opts.State, timeout), err)
	}
	return nil
}

func (d *Playwright) InnerText(ctx context.Context, q Query) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc, err := d.resolve(q)
	if err != nil {
		return "", err
	}
	text, err := loc.InnerText()
	if err != nil {
		return "", classify("innerText", q, err)
	}
	return text, nil
}

type interceptor struct {
	method  string
	pattern string
	done    chan struct{}
}

func (d *Playwright) dispatchResponse(resp playwright.Response) {
	method := resp.Request().Method()
	url := resp.URL()

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.interceptors[:0]
	for _, ic := range d.interceptors {
		if strings.EqualFold(ic.method, method) && urlutil.MatchRequest(ic.pattern, url) {
			close(ic.done)
			continue
		}
		kept = append(kept, ic)
	}
	d.interceptors = kept
}

func (d *Playwright) Intercept(ctx context.Context, method, pattern string) (RequestWaiter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ic := &interceptor{method: method, pattern: pattern, done: make(chan struct{})}
	d.mu.Lock()
	d.interceptors = append(d.interceptors, ic)
	d.mu.Unlock()
	return &requestWaiter{d: d, ic: ic, fallback: d.timeout}, nil
}

// forget drops ic if no response has claimed it yet.
func (d *Playwright) forget(ic *interceptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, other := range d.interceptors {
		if other == ic {
			d.interceptors = append(d.interceptors[:i], d.interceptors[i+1:]...)
			return
		}
	}
}

type requestWaiter struct {
	d        *Playwright
	ic       *interceptor
	fallback time.Duration
}

func (w *requestWaiter) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.fallback
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.ic.done:
		return nil
	case <-ctx.Done():
		w.d.forget(w.ic)
		return ctx.Err()
	case <-timer.C:
		w.d.forget(w.ic)
		return errs.New(errs.Timeout,
			fmt.Sprintf("no %s %s response within %s", w.ic.method, w.ic.pattern, timeout))
	}
}

func (d *Playwright) SaveSession(ctx context.Context) (SessionState, error) {
	if err := ctx.Err(); err != nil {
		return SessionState{}, err
	}
	storage, err := d.page.Context().StorageState()
	if err != nil {
		return SessionState{}, classify("save session", Query{}, err)
	}
	state := SessionState{Cookies: make([]Cookie, 0, len(storage.Cookies))}
	for _, c := range storage.Cookies {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		state.Cookies = append(state.Cookies, cookie)
	}
	return state, nil
}

// RestoreSession replaces the context cookies and parks the page on a blank
// document, so the next sequence starts from a clean navigation.
func (d *Playwright) RestoreSession(ctx context.Context, state SessionState) error {
	if err := d.ClearSession(ctx); err != nil {
		return err
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	cookies := make([]playwright.OptionalCookie, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.SameSite != "" {
			sameSite := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &sameSite
		}
		cookies = append(cookies, oc)
	}
	return classify("restore session", Query{}, d.page.Context().AddCookies(cookies))
}

func (d *Playwright) ClearSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Context().ClearCookies(); err != nil {
		return classify("clear session", Query{}, err)
	}
	_, err := d.page.Goto("about:blank")
	return classify("clear session", Query{}, err)
}

func (d *Playwright) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return nil, classify("screenshot", Query{}, err)
	}
	return png, nil
}
