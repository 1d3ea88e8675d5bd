package cli

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/machreg-e2e/internal/artifacts"
	"github.com/kuitang/machreg-e2e/internal/commands"
	"github.com/kuitang/machreg-e2e/internal/config"
	"github.com/kuitang/machreg-e2e/internal/driver/drivertest"
	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
)

func smokeScenario() Scenario {
	return Scenario{
		Credentials: commands.Credentials{Username: "admin", Password: "pw"},
		Spec: machreg.Spec{
			Name:        "machreg-1",
			Labels:      []machreg.KeyValue{machreg.DefaultLabel},
			Annotations: []machreg.KeyValue{machreg.DefaultAnnotation},
		},
		EditLabels: []machreg.KeyValue{{Key: "stage", Value: "edited"}},
	}
}

func TestParseKeyValues(t *testing.T) {
	t.Parallel()
	got, err := ParseKeyValues([]string{"env=ci", " a = b=c "})
	require.NoError(t, err)
	require.Equal(t, []machreg.KeyValue{{Key: "env", Value: "ci"}, {Key: "a", Value: "b=c"}}, got)

	for _, bad := range []string{"novalue", "=v", "k="} {
		_, err := ParseKeyValues([]string{bad})
		require.Equal(t, errs.InvalidArgument, errs.CodeOf(err), bad)
	}
}

func TestRunSmoke_FullScenario(t *testing.T) {
	t.Parallel()
	rec := drivertest.NewRecorder()
	runner := commands.NewRunner(rec, commands.Options{})

	require.NoError(t, RunSmoke(context.Background(), runner, smokeScenario()))
	lines := rec.Lines()
	require.Equal(t, "intercept POST /v3-public/localProviders/local*", lines[0])
	require.Contains(t, lines, `click get("li").hasText("Edit Config")`)
	require.Contains(t, lines, `wait_for text("stage: edited") attached`)
	require.Equal(t, `wait_for text("machreg-1") detached`, lines[len(lines)-1])

	edit := slices.Index(lines, `click get("li").hasText("Edit Config")`)
	save := slices.Index(lines, `click get(".btn").hasText("Save")`)
	require.Greater(t, save, edit, "edit must be saved")
}

func TestRunSmoke_KeepSkipsDelete(t *testing.T) {
	t.Parallel()
	rec := drivertest.NewRecorder()
	runner := commands.NewRunner(rec, commands.Options{})
	s := smokeScenario()
	s.EditLabels = nil
	s.Keep = true

	require.NoError(t, RunSmoke(context.Background(), runner, s))
	for _, line := range rec.Lines() {
		require.NotContains(t, line, "detached")
		require.NotContains(t, line, "Edit Config")
	}
}

func TestRunSmoke_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	rec := drivertest.NewRecorder()
	boom := errs.New(errs.Timeout, "create button never appeared")
	rec.FailOn("click", `get(".btn").hasText("Create")`, boom)
	runner := commands.NewRunner(rec, commands.Options{})

	err := RunSmoke(context.Background(), runner, smokeScenario())
	require.ErrorIs(t, err, boom)
	require.True(t, strings.HasPrefix(err.Error(), "createMachReg: "), err.Error())
	require.Equal(t, errs.Timeout, errs.CodeOf(err))
	require.Equal(t, `click get(".btn").hasText("Create")`, rec.Lines()[len(rec.Lines())-1])
}

func TestRunFlags_ScenarioDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Username, cfg.Password, cfg.CacheSession = "admin", "pw", true

	s, err := runFlags{namespace: "ns1"}.scenario(&cfg)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s.Spec.Name, "machreg-smoke-"))
	require.Equal(t, machreg.NewNamespace{Name: "ns1"}, s.Spec.Target())
	require.Equal(t, []machreg.KeyValue{machreg.DefaultLabel}, s.Spec.Labels)
	require.Equal(t, []machreg.KeyValue{machreg.DefaultAnnotation}, s.Spec.Annotations)
	require.True(t, s.Credentials.CacheSession)

	s, err = runFlags{name: "x", namespace: "fleet-default", labels: []string{"k=v"}}.scenario(&cfg)
	require.NoError(t, err)
	require.Equal(t, machreg.DefaultNamespace{}, s.Spec.Target())
	require.Equal(t, []machreg.KeyValue{{Key: "k", Value: "v"}}, s.Spec.Labels)

	_, err = runFlags{annotations: []string{"oops"}}.scenario(&cfg)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestCatalogCmd(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	cmd := newCatalogCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	for _, want := range []string{"createMachReg", "deleteAllMachReg", "login", "issues/6710", "issues/6458"} {
		require.Contains(t, out.String(), want)
	}
}

func TestListArtifacts(t *testing.T) {
	t.Parallel()
	store := artifacts.TestStore(t, "runs")
	ctx := context.Background()
	key, err := store.PutScreenshot(ctx, "run-7", "smoke", []byte("png"))
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(&out)

	require.NoError(t, listArtifacts(cmd, store, "run-7"))
	require.Equal(t, "s3://runs/"+key+"\n", out.String())

	out.Reset()
	require.NoError(t, listArtifacts(cmd, store, "run-8"))
	require.Equal(t, "No artifacts for run-8\n", out.String())
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	t.Setenv("DASHBOARD_URL", "")
	t.Setenv("DASHBOARD_USERNAME", "")
	t.Setenv("DASHBOARD_PASSWORD", "")

	root := NewRootCmd()
	root.SetArgs([]string{"run", "--browser", "firefox"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()

	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	var verr *config.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, err.Error(), "DASHBOARD_URL is required")
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("DASHBOARD_URL", "https://env.example")
	t.Setenv("HEADLESS", "true")

	cmd := &cobra.Command{}
	cmd.Flags().Bool("headless", true, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--headless=false"}))
	cfg := loadConfig(cmd, &rootFlags{url: "https://flag.example", headless: false})
	require.Equal(t, "https://flag.example", cfg.DashboardURL)
	require.False(t, cfg.Headless)

	cfg = loadConfig(&cobra.Command{}, &rootFlags{})
	require.Equal(t, "https://env.example", cfg.DashboardURL)
	require.True(t, cfg.Headless, "unset flags keep the environment")
}
