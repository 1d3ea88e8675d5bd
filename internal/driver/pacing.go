package driver

import (
	"context"
	"time"
)

// Pacing throttles a driver against a reactive UI. It only affects wall-clock
// pacing; ordering comes from the blocking Driver contract.
type Pacing struct {
	// CommandDelay is slept after Visit, Reload, Click, Trigger, Type, Clear
	// and WaitFor resolve successfully.
	CommandDelay time.Duration
	// KeystrokeDelay overrides TypeOptions.Delay on every Type.
	KeystrokeDelay time.Duration
}

// DefaultPacing matches the dashboard suite's historical throttle.
var DefaultPacing = Pacing{
	CommandDelay:   time.Second,
	KeystrokeDelay: 100 * time.Millisecond,
}

type pacedDriver struct {
	Driver
	pacing Pacing
}

// WithPacing wraps d so the delayed primitives pause after resolving.
// Failed actions return at once.
func WithPacing(d Driver, pacing Pacing) Driver {
	return &pacedDriver{Driver: d, pacing: pacing}
}

func (p *pacedDriver) pause(ctx context.Context, err error) error {
	if err != nil || p.pacing.CommandDelay <= 0 {
		return err
	}
	timer := time.NewTimer(p.pacing.CommandDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *pacedDriver) Visit(ctx context.Context, path string) error {
	return p.pause(ctx, p.Driver.Visit(ctx, path))
}

func (p *pacedDriver) Reload(ctx context.Context) error {
	return p.pause(ctx, p.Driver.Reload(ctx))
}

func (p *pacedDriver) Click(ctx context.Context, q Query, opts ClickOptions) error {
	return p.pause(ctx, p.Driver.Click(ctx, q, opts))
}

func (p *pacedDriver) Trigger(ctx context.Context, q Query, event string) error {
	return p.pause(ctx, p.Driver.Trigger(ctx, q, event))
}

func (p *pacedDriver) Clear(ctx context.Context, q Query) error {
	return p.pause(ctx, p.Driver.Clear(ctx, q))
}

func (p *pacedDriver) Type(ctx context.Context, q Query, text string, opts TypeOptions) error {
	opts.Delay = p.pacing.KeystrokeDelay
	return p.pause(ctx, p.Driver.Type(ctx, q, text, opts))
}

func (p *pacedDriver) WaitFor(ctx context.Context, q Query, opts WaitOptions) error {
	return p.pause(ctx, p.Driver.WaitFor(ctx, q, opts))
}
