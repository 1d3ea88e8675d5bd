// Package drivertest provides an in-memory driver that records every
// primitive it receives, for testing sequences without a browser.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/errs"
)

// Action is one recorded primitive.
type Action struct {
	Kind     string
	Query    string
	Text     string
	Delay    time.Duration
	NoLog    bool
	Position *driver.Point
	State    driver.WaitState
	Timeout  time.Duration
	At       time.Time
}

// String renders an action compactly, e.g. `click get(".btn").hasText("Create")`.
func (a Action) String() string {
	s := a.Kind
	if a.Query != "" {
		s += " " + a.Query
	}
	if a.Text != "" {
		s += " " + a.Text
	}
	return s
}

// Recorder implements driver.Driver in memory.
type Recorder struct {
	mu       sync.Mutex
	actions  []Action
	failures map[string]error
	texts    map[string]string
	cookies  []driver.Cookie
	now      func() time.Time
}

var _ driver.Driver = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		failures: make(map[string]error),
		texts:    make(map[string]string),
		now:      time.Now,
	}
}

// FailOn makes the first matching action return err. kind is the action
// kind ("click", "wait_for", ...); target is the query string, path or
// request pattern the action addresses.
func (r *Recorder) FailOn(kind, target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind+" "+target] = err
}

// SetInnerText sets the text returned for a query.
func (r *Recorder) SetInnerText(q driver.Query, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts[q.String()] = text
}

// SetCookies sets the cookies a SaveSession call captures.
func (r *Recorder) SetCookies(cookies ...driver.Cookie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookies = cookies
}

// Actions returns a copy of the recorded actions.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Lines returns Action.String for every recorded action.
func (r *Recorder) Lines() []string {
	actions := r.Actions()
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}

// Count returns how many actions of kind were recorded.
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, a := range r.Actions() {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets recorded actions but keeps configured failures and texts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}

func (r *Recorder) do(ctx context.Context, a Action, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a.At = r.now()
	r.actions = append(r.actions, a)
	key := a.Kind + " " + target
	if err, ok := r.failures[key]; ok {
		delete(r.failures, key)
		return err
	}
	return nil
}

func checkQuery(q driver.Query) error {
	if err := q.Validate(); err != nil {
		return errs.Wrap(errs.InvalidArgument, "query "+q.String(), err)
	}
	return nil
}

func (r *Recorder) Visit(ctx context.Context, path string) error {
	return r.do(ctx, Action{Kind: "visit", Text: path}, path)
}

func (r *Recorder) Reload(ctx context.Context) error {
	return r.do(ctx, Action{Kind: "reload"}, "")
}

func (r *Recorder) Click(ctx context.Context, q driver.Query, opts driver.ClickOptions) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "click", Query: q.String(), Position: opts.Position}, q.String())
}

func (r *Recorder) Trigger(ctx context.Context, q driver.Query, event string) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "trigger", Query: q.String(), Text: event}, q.String())
}

func (r *Recorder) Focus(ctx context.Context, q driver.Query) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "focus", Query: q.String()}, q.String())
}

func (r *Recorder) Clear(ctx context.Context, q driver.Query) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "clear", Query: q.String()}, q.String())
}

func (r *Recorder) Type(ctx context.Context, q driver.Query, text string, opts driver.TypeOptions) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	if _, err := driver.ParseKeys(text); err != nil {
		return errs.Wrap(errs.InvalidArgument, "type "+q.String(), err)
	}
	return r.do(ctx, Action{Kind: "type", Query: q.String(), Text: text, Delay: opts.Delay, NoLog: opts.NoLog}, q.String())
}

func (r *Recorder) Press(ctx context.Context, q driver.Query, key string) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "press", Query: q.String(), Text: key}, q.String())
}

func (r *Recorder) WaitFor(ctx context.Context, q driver.Query, opts driver.WaitOptions) error {
	if err := checkQuery(q); err != nil {
		return err
	}
	return r.do(ctx, Action{Kind: "wait_for", Query: q.String(), Text: opts.State.String(), State: opts.State, Timeout: opts.Timeout}, q.String())
}

func (r *Recorder) InnerText(ctx context.Context, q driver.Query) (string, error) {
	if err := checkQuery(q); err != nil {
		return "", err
	}
	if err := r.do(ctx, Action{Kind: "inner_text", Query: q.String()}, q.String()); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.texts[q.String()]
	if !ok {
		return "", errs.New(errs.NotFound, fmt.Sprintf("no text configured for %s", q))
	}
	return text, nil
}

func (r *Recorder) Intercept(ctx context.Context, method, pattern string) (driver.RequestWaiter, error) {
	target := method + " " + pattern
	if err := r.do(ctx, Action{Kind: "intercept", Text: target}, target); err != nil {
		return nil, err
	}
	return &waiter{r: r, target: target}, nil
}

type waiter struct {
	r      *Recorder
	target string
}

func (w *waiter) Wait(ctx context.Context, timeout time.Duration) error {
	return w.r.do(ctx, Action{Kind: "wait_request", Text: w.target, Timeout: timeout}, w.target)
}

func (r *Recorder) SaveSession(ctx context.Context) (driver.SessionState, error) {
	if err := r.do(ctx, Action{Kind: "save_session"}, ""); err != nil {
		return driver.SessionState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cookies := make([]driver.Cookie, len(r.cookies))
	copy(cookies, r.cookies)
	return driver.SessionState{Cookies: cookies}, nil
}

func (r *Recorder) RestoreSession(ctx context.Context, state driver.SessionState) error {
	if err := r.do(ctx, Action{Kind: "restore_session", Text: fmt.Sprintf("%d cookies", len(state.Cookies))}, ""); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookies = append([]driver.Cookie(nil), state.Cookies...)
	return nil
}

func (r *Recorder) ClearSession(ctx context.Context) error {
	return r.do(ctx, Action{Kind: "clear_session"}, "")
}

func (r *Recorder) Screenshot(ctx context.Context) ([]byte, error) {
	if err := r.do(ctx, Action{Kind: "screenshot"}, ""); err != nil {
		return nil, err
	}
	return []byte("\x89PNG recorder"), nil
}
