package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/driver/drivertest"
)

func TestWithPacing_DelaysBetweenSteps(t *testing.T) {
	t.Parallel()

	const delay = 15 * time.Millisecond
	rec := drivertest.NewRecorder()
	d := driver.WithPacing(rec, driver.Pacing{CommandDelay: delay, KeystrokeDelay: 7 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, d.Visit(ctx, "/auth/login"))
	require.NoError(t, d.Click(ctx, driver.Get("button"), driver.ClickOptions{}))
	require.NoError(t, d.Type(ctx, driver.Get("input"), "admin", driver.TypeOptions{}))
	require.NoError(t, d.Clear(ctx, driver.Get("input")))
	require.NoError(t, d.WaitFor(ctx, driver.Text("Getting Started"), driver.WaitOptions{}))
	require.NoError(t, d.Trigger(ctx, driver.Get("input"), "change"))
	require.NoError(t, d.Reload(ctx))

	actions := rec.Actions()
	require.Len(t, actions, 7)
	for i := 1; i < len(actions); i++ {
		gap := actions[i].At.Sub(actions[i-1].At)
		require.GreaterOrEqualf(t, gap, delay, "step %d (%s) started %s after %s", i, actions[i].Kind, gap, actions[i-1].Kind)
	}
}

func TestWithPacing_OverridesKeystrokeDelay(t *testing.T) {
	t.Parallel()

	rec := drivertest.NewRecorder()
	d := driver.WithPacing(rec, driver.Pacing{KeystrokeDelay: 100 * time.Millisecond})

	err := d.Type(context.Background(), driver.Get("input"), "x", driver.TypeOptions{Delay: time.Second, NoLog: true})
	require.NoError(t, err)

	actions := rec.Actions()
	require.Len(t, actions, 1)
	require.Equal(t, 100*time.Millisecond, actions[0].Delay)
	require.True(t, actions[0].NoLog, "pacing must keep the log flag")
}

func TestWithPacing_UndelayedPrimitives(t *testing.T) {
	t.Parallel()

	rec := drivertest.NewRecorder()
	d := driver.WithPacing(rec, driver.Pacing{CommandDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, d.Focus(ctx, driver.Get("input")))
	require.NoError(t, d.Press(ctx, driver.Focused(), "Tab"))
	_, err := d.Intercept(ctx, "POST", "/v3-public/*")
	require.NoError(t, err)
	_, err = d.SaveSession(ctx)
	require.NoError(t, err)
}

func TestWithPacing_FailedActionSkipsDelay(t *testing.T) {
	t.Parallel()

	boom := errors.New("no such element")
	rec := drivertest.NewRecorder()
	rec.FailOn("click", driver.Get(".btn").HasText("Create").String(), boom)
	d := driver.WithPacing(rec, driver.Pacing{CommandDelay: time.Hour})

	start := time.Now()
	err := d.Click(context.Background(), driver.Get(".btn").HasText("Create"), driver.ClickOptions{})
	require.ErrorIs(t, err, boom)
	require.Less(t, time.Since(start), time.Minute)
}

func TestWithPacing_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	rec := drivertest.NewRecorder()
	d := driver.WithPacing(rec, driver.Pacing{CommandDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Visit(ctx, "/")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, rec.Count("visit"))
}
