package driver_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/driver/drivertest"
	"github.com/kuitang/machreg-e2e/internal/logutil"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

func TestWithAuditLog_OneRecordPerPrimitive(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	d := driver.WithAuditLog(drivertest.NewRecorder())
	ctx := obs.WithCommand(obs.WithRun(context.Background(), "run-audit", ""), "login")

	require.NoError(t, d.Visit(ctx, "/auth/login"))
	w, err := d.Intercept(ctx, "POST", "/v3-public/localProviders/local*")
	require.NoError(t, err)
	require.NoError(t, d.Click(ctx, driver.Get("button"), driver.ClickOptions{Position: &driver.Point{}}))
	require.NoError(t, w.Wait(ctx, 0))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		require.Contains(t, line, `"msg":"step"`)
		require.Contains(t, line, `"run_id":"run-audit"`)
		require.Contains(t, line, `"command":"login"`)
	}
	require.Contains(t, lines[3], `"action":"wait_request"`)
}

func TestWithAuditLog_NoLogNeverEmitsTypedValue(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	const secret = "s3cr3t-Passw0rd"
	d := driver.WithAuditLog(drivertest.NewRecorder())
	ctx := context.Background()

	require.NoError(t, d.Type(ctx, driver.Get(".labeled-input").HasText("Username").Find("input"), secret, driver.TypeOptions{NoLog: true}))
	require.NoError(t, d.Type(ctx, driver.Get("#name"), "visible-value", driver.TypeOptions{}))

	out := buf.String()
	require.NotContains(t, out, secret)
	require.Contains(t, out, logutil.Redacted)
	require.Contains(t, out, "visible-value")
}

func TestWithAuditLog_FailureLoggedAtError(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	rec := drivertest.NewRecorder()
	rec.FailOn("wait_for", driver.Text("Getting Started").String(), errors.New("not visible"))
	d := driver.WithAuditLog(rec)

	err := d.WaitFor(context.Background(), driver.Text("Getting Started"), driver.WaitOptions{})
	require.Error(t, err)
	require.Contains(t, buf.String(), `"level":"ERROR"`)
	require.Contains(t, buf.String(), "not visible")
}
