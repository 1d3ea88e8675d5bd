// Package driver defines the primitive browser actions the dashboard
// sequences are built from, the middleware wrapped around them, and the
// playwright-go backend that executes them.
package driver

import (
	"context"
	"time"
)

// Point is a position relative to an element's top-left corner.
type Point struct {
	X float64
	Y float64
}

// ClickOptions tunes a click.
type ClickOptions struct {
	// Position clicks at an offset instead of the element center.
	Position *Point
}

// TypeOptions tunes a type action.
type TypeOptions struct {
	// Delay is the pause between keystrokes.
	Delay time.Duration
	// NoLog keeps the typed text out of the audit trail.
	NoLog bool
}

// WaitState is the element condition a wait resolves on.
type WaitState int

const (
	// WaitVisible resolves once the element is attached and visible.
	WaitVisible WaitState = iota
	// WaitAttached resolves once the element exists in the DOM.
	WaitAttached
	// WaitDetached resolves once no element matches.
	WaitDetached
)

func (s WaitState) String() string {
	switch s {
	case WaitVisible:
		return "visible"
	case WaitAttached:
		return "attached"
	case WaitDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// WaitOptions tunes a wait. A zero Timeout uses the driver default.
type WaitOptions struct {
	State   WaitState
	Timeout time.Duration
}

// Cookie is one browser cookie of a saved session.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  float64
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// SessionState is the browser state needed to resume an authenticated session.
type SessionState struct {
	Cookies []Cookie
}

// RequestWaiter resolves once an intercepted request has completed.
type RequestWaiter interface {
	Wait(ctx context.Context, timeout time.Duration) error
}

// Driver executes primitive actions against one browser session. Every
// call blocks until the action resolves; callers never issue concurrent
// calls on the same Driver.
type Driver interface {
	Visit(ctx context.Context, path string) error
	Reload(ctx context.Context) error
	Click(ctx context.Context, q Query, opts ClickOptions) error
	Trigger(ctx context.Context, q Query, event string) error
	Focus(ctx context.Context, q Query) error
	Clear(ctx context.Context, q Query) error
	Type(ctx context.Context, q Query, text string, opts TypeOptions) error
	Press(ctx context.Context, q Query, key string) error
	WaitFor(ctx context.Context, q Query, opts WaitOptions) error
	InnerText(ctx context.Context, q Query) (string, error)

	// Intercept starts watching for a request before the action that
	// triggers it, so the response cannot be missed.
	Intercept(ctx context.Context, method, pattern string) (RequestWaiter, error)

	SaveSession(ctx context.Context) (SessionState, error)
	RestoreSession(ctx context.Context, state SessionState) error
	ClearSession(ctx context.Context) error

	Screenshot(ctx context.Context) ([]byte, error)
}
