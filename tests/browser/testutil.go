// Package browser runs the command sequences in a real browser against the
// fake dashboard. All tests share one launched browser; each test gets its
// own fake dashboard and browser context.
package browser

import (
	"context"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/machreg-e2e/internal/commands"
	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/fakedash"
	"github.com/kuitang/machreg-e2e/internal/machreg"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

const (
	testUsername = "admin"
	testPassword = "rancher-password"

	// Every wait in tests/browser is bounded by this.
	browserMaxTimeout = 5 * time.Second
)

var admin = commands.Credentials{Username: testUsername, Password: testPassword}

var (
	browserMu     sync.Mutex
	sharedBrowser *driver.Browser
	browserErr    error
)

// BrowserTestEnv is one fake dashboard plus a browser session pointed at it.
type BrowserTestEnv struct {
	Dash    *fakedash.Server
	Server  *httptest.Server
	BaseURL string
	Page    *driver.Playwright
	Runner  *commands.Runner
	Ctx     context.Context
}

// SetupBrowserTestEnv starts a fake dashboard and opens a browser session.
// It skips in -short mode and when playwright cannot start.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	browser := initBrowser(t)

	dash, err := fakedash.New(fakedash.Options{Username: testUsername, Password: testPassword})
	require.NoError(t, err)
	server := httptest.NewServer(dash)
	t.Cleanup(func() {
		server.Close()
		dash.Close()
	})

	page, err := browser.NewSession(driver.PlaywrightOptions{
		BaseURL:        server.URL,
		DefaultTimeout: browserMaxTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	runner := commands.NewRunner(driver.WithAuditLog(page), commands.Options{
		LoginTimeout:   browserMaxTimeout,
		DefaultTimeout: browserMaxTimeout,
	})
	return &BrowserTestEnv{
		Dash:    dash,
		Server:  server,
		BaseURL: server.URL,
		Page:    page,
		Runner:  runner,
		Ctx:     obs.WithRun(context.Background(), "", t.Name()),
	}
}

func initBrowser(t *testing.T) *driver.Browser {
	t.Helper()
	browserMu.Lock()
	defer browserMu.Unlock()

	if sharedBrowser == nil && browserErr == nil {
		sharedBrowser, browserErr = driver.Launch(driver.LaunchOptions{Browser: "chromium", Headless: true})
	}
	if browserErr != nil {
		t.Skip("Playwright not available:", browserErr)
	}
	return sharedBrowser
}

func TestMain(m *testing.M) {
	code := m.Run()
	browserMu.Lock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
	}
	browserMu.Unlock()
	os.Exit(code)
}

// LoggedIn logs in with the admin account.
func (env *BrowserTestEnv) LoggedIn(t *testing.T) *BrowserTestEnv {
	t.Helper()
	require.NoError(t, env.Runner.Login(env.Ctx, admin))
	return env
}

// Seed stores registrations directly, bypassing the UI.
func (env *BrowserTestEnv) Seed(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := env.Dash.Store().Create(fakedash.Registration{Name: name}, false)
		require.NoError(t, err)
	}
}

// Registration returns the stored registration name in namespace.
func (env *BrowserTestEnv) Registration(t *testing.T, namespace, name string) fakedash.Registration {
	t.Helper()
	reg, err := env.Dash.Store().Get(namespace, name)
	require.NoError(t, err)
	return reg
}

// OpenListing navigates to the registration listing through the menu.
func (env *BrowserTestEnv) OpenListing(t *testing.T) {
	t.Helper()
	require.NoError(t, env.Runner.ClickNavMenu(env.Ctx, "Machine Registrations"))
}

func defaultSpec(name string) machreg.Spec {
	return machreg.Spec{
		Name:        name,
		Labels:      []machreg.KeyValue{machreg.DefaultLabel},
		Annotations: []machreg.KeyValue{machreg.DefaultAnnotation},
	}
}
