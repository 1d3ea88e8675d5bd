package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuitang/machreg-e2e/internal/logutil"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

type auditedDriver struct {
	Driver
}

// WithAuditLog records one structured "step" event per primitive.
// Typed text is redacted when TypeOptions.NoLog is set.
func WithAuditLog(d Driver) Driver {
	return &auditedDriver{Driver: d}
}

func (a *auditedDriver) record(ctx context.Context, action string, start time.Time, err error, attrs ...any) {
	durMS := float64(time.Since(start).Microseconds()) / 1000.0
	attrs = append(attrs, "action", action, "dur_ms", durMS)
	l := obs.From(ctx).With("pkg", "driver")
	if err != nil {
		l.Error("step", append(attrs, "error", err.Error())...)
		return
	}
	l.Debug("step", attrs...)
}

func (a *auditedDriver) Visit(ctx context.Context, path string) error {
	start := time.Now()
	err := a.Driver.Visit(ctx, path)
	a.record(ctx, "visit", start, err, "path", path)
	return err
}

func (a *auditedDriver) Reload(ctx context.Context) error {
	start := time.Now()
	err := a.Driver.Reload(ctx)
	a.record(ctx, "reload", start, err)
	return err
}

func (a *auditedDriver) Click(ctx context.Context, q Query, opts ClickOptions) error {
	start := time.Now()
	err := a.Driver.Click(ctx, q, opts)
	attrs := []any{"query", q.String()}
	if opts.Position != nil {
		attrs = append(attrs, slog.Group("position", "x", opts.Position.X, "y", opts.Position.Y))
	}
	a.record(ctx, "click", start, err, attrs...)
	return err
}

func (a *auditedDriver) Trigger(ctx context.Context, q Query, event string) error {
	start := time.Now()
	err := a.Driver.Trigger(ctx, q, event)
	a.record(ctx, "trigger", start, err, "query", q.String(), "event", event)
	return err
}

func (a *auditedDriver) Focus(ctx context.Context, q Query) error {
	start := time.Now()
	err := a.Driver.Focus(ctx, q)
	a.record(ctx, "focus", start, err, "query", q.String())
	return err
}

func (a *auditedDriver) Clear(ctx context.Context, q Query) error {
	start := time.Now()
	err := a.Driver.Clear(ctx, q)
	a.record(ctx, "clear", start, err, "query", q.String())
	return err
}

func (a *auditedDriver) Type(ctx context.Context, q Query, text string, opts TypeOptions) error {
	start := time.Now()
	err := a.Driver.Type(ctx, q, text, opts)
	a.record(ctx, "type", start, err,
		"query", q.String(),
		"text", logutil.RedactTypedText(q.String(), text, !opts.NoLog),
		"keystroke_delay_ms", opts.Delay.Milliseconds(),
	)
	return err
}

func (a *auditedDriver) Press(ctx context.Context, q Query, key string) error {
	start := time.Now()
	err := a.Driver.Press(ctx, q, key)
	a.record(ctx, "press", start, err, "query", q.String(), "key", key)
	return err
}

func (a *auditedDriver) WaitFor(ctx context.Context, q Query, opts WaitOptions) error {
	start := time.Now()
	err := a.Driver.WaitFor(ctx, q, opts)
	a.record(ctx, "wait_for", start, err, "query", q.String(), "state", opts.State.String())
	return err
}

func (a *auditedDriver) InnerText(ctx context.Context, q Query) (string, error) {
	start := time.Now()
	text, err := a.Driver.InnerText(ctx, q)
	a.record(ctx, "inner_text", start, err, "query", q.String(), "text", logutil.TruncateForLog(text, 120))
	return text, err
}

func (a *auditedDriver) Intercept(ctx context.Context, method, pattern string) (RequestWaiter, error) {
	start := time.Now()
	w, err := a.Driver.Intercept(ctx, method, pattern)
	a.record(ctx, "intercept", start, err, "method", method, "pattern", pattern)
	if err != nil {
		return nil, err
	}
	return &auditedWaiter{inner: w, method: method, pattern: pattern, audit: a}, nil
}

type auditedWaiter struct {
	inner   RequestWaiter
	method  string
	pattern string
	audit   *auditedDriver
}

func (w *auditedWaiter) Wait(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	err := w.inner.Wait(ctx, timeout)
	w.audit.record(ctx, "wait_request", start, err, "method", w.method, "pattern", w.pattern)
	return err
}

func (a *auditedDriver) SaveSession(ctx context.Context) (SessionState, error) {
	start := time.Now()
	state, err := a.Driver.SaveSession(ctx)
	a.record(ctx, "save_session", start, err, "cookies", len(state.Cookies))
	return state, err
}

func (a *auditedDriver) RestoreSession(ctx context.Context, state SessionState) error {
	start := time.Now()
	err := a.Driver.RestoreSession(ctx, state)
	a.record(ctx, "restore_session", start, err, "cookies", len(state.Cookies))
	return err
}

func (a *auditedDriver) ClearSession(ctx context.Context) error {
	start := time.Now()
	err := a.Driver.ClearSession(ctx)
	a.record(ctx, "clear_session", start, err)
	return err
}

func (a *auditedDriver) Screenshot(ctx context.Context) ([]byte, error) {
	start := time.Now()
	png, err := a.Driver.Screenshot(ctx)
	a.record(ctx, "screenshot", start, err, "bytes", len(png))
	return png, err
}
