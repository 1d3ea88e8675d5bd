// Package commands is the catalog of named dashboard sequences. Each method
// on Runner composes driver primitives in a fixed order and returns only
// after the last one resolves; the first failing primitive aborts the
// sequence.
package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

// DefaultLoginTimeout bounds how long the post-login landing page may take.
const DefaultLoginTimeout = 10 * time.Second

// Options configures a Runner.
type Options struct {
	// LoginTimeout bounds the "Getting Started" assertion after login.
	LoginTimeout time.Duration
	// DefaultTimeout bounds every other wait. Zero uses the driver default.
	DefaultTimeout time.Duration
}

// Runner executes sequences against one browser session.
type Runner struct {
	d    driver.Driver
	opts Options

	mu       sync.Mutex
	sessions map[sessionKey]driver.SessionState
}

type sessionKey struct {
	username string
	password string
}

// NewRunner returns a Runner driving d. d is normally wrapped with
// driver.WithPacing and driver.WithAuditLog by the caller.
func NewRunner(d driver.Driver, opts Options) *Runner {
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	return &Runner{
		d:        d,
		opts:     opts,
		sessions: make(map[sessionKey]driver.SessionState),
	}
}

// Driver returns the session handle the runner drives.
func (r *Runner) Driver() driver.Driver {
	return r.d
}

// catalog is the set of sequence names a scenario can invoke.
var catalog = []string{
	"login",
	"byLabel",
	"clickButton",
	"confirmDelete",
	"clickNavMenu",
	"typeValue",
	"typeKeyValue",
	"createMachReg",
	"addMachRegLabel",
	"addMachRegAnnotation",
	"checkMachRegLabel",
	"checkMachRegAnnotation",
	"readMachRegYAML",
	"editMachReg",
	"deleteMachReg",
	"deleteAllMachReg",
}

// Catalog returns the registered sequence names in sorted order.
func Catalog() []string {
	out := append([]string(nil), catalog...)
	sort.Strings(out)
	return out
}

func (r *Runner) begin(ctx context.Context, name string) context.Context {
	ctx = obs.WithCommand(ctx, name)
	obs.From(ctx).Debug("sequence_start", "pkg", "commands")
	return ctx
}

func (r *Runner) end(ctx context.Context, name string, start time.Time, err error) error {
	durMS := float64(time.Since(start).Microseconds()) / 1000.0
	l := obs.From(ctx).With("pkg", "commands", "dur_ms", durMS)
	if err != nil {
		l.Error("sequence_failed", "error", err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	l.Info("sequence_done")
	return nil
}

func (r *Runner) waitOpts(state driver.WaitState) driver.WaitOptions {
	return driver.WaitOptions{State: state, Timeout: r.opts.DefaultTimeout}
}
