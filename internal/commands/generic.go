package commands

import (
	"context"
	"strings"
	"time"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

const (
	loginPath        = "/auth/login"
	loginRequestPath = "/v3-public/localProviders/local*"
	landingMarker    = "Getting Started"
)

// Credentials authenticate one login.
type Credentials struct {
	Username string
	Password string
	// CacheSession memoizes the login per (Username, Password) for the
	// Runner's lifetime.
	CacheSession bool
}

// Login signs in through the local auth provider and waits for the landing
// page. With CacheSession the first call logs in from a clean session and
// saves it; later calls with the same credentials restore it instead.
func (r *Runner) Login(ctx context.Context, creds Credentials) (err error) {
	const name = "login"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()

	if creds.Username == "" || creds.Password == "" {
		return errs.New(errs.InvalidArgument, "username and password are required")
	}
	if !creds.CacheSession {
		return r.login(ctx, creds)
	}

	key := sessionKey{username: creds.Username, password: creds.Password}
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.sessions[key]; ok {
		obs.From(ctx).Debug("session_restored", "pkg", "commands", "cookies", len(state.Cookies))
		return r.d.RestoreSession(ctx, state)
	}
	if err := r.d.ClearSession(ctx); err != nil {
		return err
	}
	if err := r.login(ctx, creds); err != nil {
		return err
	}
	state, err := r.d.SaveSession(ctx)
	if err != nil {
		return err
	}
	r.sessions[key] = state
	return nil
}

func (r *Runner) login(ctx context.Context, creds Credentials) error {
	loginReq, err := r.d.Intercept(ctx, "POST", loginRequestPath)
	if err != nil {
		return err
	}
	if err := r.d.Visit(ctx, loginPath); err != nil {
		return err
	}
	for _, field := range []struct{ label, value string }{
		{"Username", creds.Username},
		{"Password", creds.Password},
	} {
		q := ByLabel(field.label)
		if err := r.d.Focus(ctx, q); err != nil {
			return err
		}
		if err := r.d.Type(ctx, q, driver.EscapeKeys(field.value), driver.TypeOptions{NoLog: true}); err != nil {
			return err
		}
	}
	if err := r.d.Click(ctx, driver.Get("button"), driver.ClickOptions{}); err != nil {
		return err
	}
	if err := loginReq.Wait(ctx, r.opts.DefaultTimeout); err != nil {
		return err
	}
	return r.d.WaitFor(ctx, driver.Text(landingMarker), driver.WaitOptions{
		State:   driver.WaitVisible,
		Timeout: r.opts.LoginTimeout,
	})
}

// ByLabel addresses the input of the labeled field showing label.
func ByLabel(label string) driver.Query {
	return driver.Get(".labeled-input").HasText(label).Find("input")
}

// Button addresses the first button showing label.
func Button(label string) driver.Query {
	return driver.Get(".btn").HasText(label)
}

// ClickButton clicks the first button showing label.
func (r *Runner) ClickButton(ctx context.Context, label string) error {
	if strings.TrimSpace(label) == "" {
		return errs.New(errs.InvalidArgument, "clickButton: label is required")
	}
	return r.d.Click(ctx, Button(label), driver.ClickOptions{})
}

// ConfirmDelete accepts the delete confirmation dialog.
func (r *Runner) ConfirmDelete(ctx context.Context) error {
	return r.d.Click(ctx, driver.Get(".card-actions").Text("Delete"), driver.ClickOptions{})
}

// ClickNavMenu clicks each menu label inside the navigation region in
// order. Each segment is looked up after the previous click resolved.
func (r *Runner) ClickNavMenu(ctx context.Context, path ...string) (err error) {
	const name = "clickNavMenu"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()

	if len(path) == 0 {
		return errs.New(errs.InvalidArgument, "navigation path is empty")
	}
	for _, segment := range path {
		if strings.TrimSpace(segment) == "" {
			return errs.New(errs.InvalidArgument, "navigation path has an empty segment")
		}
		if err := r.d.Click(ctx, driver.Get("nav").Text(segment), driver.ClickOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// TypeValueOptions selects a field and the value to put in it.
type TypeValueOptions struct {
	// Label is the field label, or a raw selector when NoLabel is set.
	Label   string
	Value   string
	NoLabel bool
	// NoLog keeps Value out of the audit trail.
	NoLog bool
}

// TypeValue focuses a field, clears it and types the value.
func (r *Runner) TypeValue(ctx context.Context, opts TypeValueOptions) (err error) {
	const name = "typeValue"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()

	if strings.TrimSpace(opts.Label) == "" {
		return errs.New(errs.InvalidArgument, "field label is required")
	}
	q := ByLabel(opts.Label)
	if opts.NoLabel {
		q = driver.Get(opts.Label)
	}
	if err := r.d.Focus(ctx, q); err != nil {
		return err
	}
	if err := r.d.Clear(ctx, q); err != nil {
		return err
	}
	return r.d.Type(ctx, q, driver.EscapeKeys(opts.Value), driver.TypeOptions{NoLog: opts.NoLog})
}

// TypeKeyValue clears the field at selector and types value.
func (r *Runner) TypeKeyValue(ctx context.Context, selector, value string) (err error) {
	const name = "typeKeyValue"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()

	if strings.TrimSpace(selector) == "" {
		return errs.New(errs.InvalidArgument, "selector is required")
	}
	q := driver.Get(selector)
	if err := r.d.Clear(ctx, q); err != nil {
		return err
	}
	return r.d.Type(ctx, q, driver.EscapeKeys(value), driver.TypeOptions{})
}
