package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuitang/machreg-e2e/internal/artifacts"
	"github.com/kuitang/machreg-e2e/internal/commands"
	"github.com/kuitang/machreg-e2e/internal/config"
	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

type runFlags struct {
	name        string
	namespace   string
	labels      []string
	annotations []string
	editLabels  []string
	keep        bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the machine registration smoke scenario",
		Long: `Run the full scenario against the configured dashboard.

Examples:
  machreg-smoke run                                   # Default label and annotation
  machreg-smoke run --name machreg-1 --namespace ns1  # Create ns1 on the fly
  machreg-smoke run --label env=ci --edit-label stage=edited`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, root)
			if err := cfg.Validate(); err != nil {
				return errs.Wrap(errs.InvalidArgument, "config", err)
			}
			scenario, err := flags.scenario(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = obs.WithRun(ctx, obs.NewRunID(), "smoke")

			cfg.PrintStartupSummary()
			err = runScenario(ctx, cfg, scenario)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "PASS %s (run %s)\n", scenario.Spec.Name, obs.RunIDFromContext(ctx))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&flags.name, "name", "", "Registration name (default machreg-smoke-<run>)")
	cmd.Flags().StringVarP(&flags.namespace, "namespace", "n", "", "Namespace; anything but fleet-default is created")
	cmd.Flags().StringArrayVar(&flags.labels, "label", nil, "Label key=value (repeatable, default myLabel1=myLabelValue1)")
	cmd.Flags().StringArrayVar(&flags.annotations, "annotation", nil, "Annotation key=value (repeatable, default myAnnotation1=myAnnotationValue1)")
	cmd.Flags().StringArrayVar(&flags.editLabels, "edit-label", nil, "Label key=value added by editing after creation (repeatable)")
	cmd.Flags().BoolVar(&flags.keep, "keep", false, "Keep the registration instead of deleting it")

	return cmd
}

func (f runFlags) scenario(cfg *config.Config) (Scenario, error) {
	labels, err := ParseKeyValues(f.labels)
	if err != nil {
		return Scenario{}, err
	}
	if len(labels) == 0 {
		labels = []machreg.KeyValue{machreg.DefaultLabel}
	}
	annotations, err := ParseKeyValues(f.annotations)
	if err != nil {
		return Scenario{}, err
	}
	if len(annotations) == 0 {
		annotations = []machreg.KeyValue{machreg.DefaultAnnotation}
	}
	editLabels, err := ParseKeyValues(f.editLabels)
	if err != nil {
		return Scenario{}, err
	}
	name := f.name
	if name == "" {
		name = "machreg-smoke-" + uuid.NewString()[:8]
	}
	s := Scenario{
		Credentials: commands.Credentials{
			Username:     cfg.Username,
			Password:     cfg.Password,
			CacheSession: cfg.CacheSession,
		},
		Spec: machreg.Spec{
			Name:        name,
			Namespace:   machreg.NamespaceFor(f.namespace),
			Labels:      labels,
			Annotations: annotations,
		},
		EditLabels: editLabels,
		Keep:       f.keep,
	}
	return s, s.Spec.Validate()
}

func runScenario(ctx context.Context, cfg *config.Config, s Scenario) error {
	browser, err := driver.Launch(driver.LaunchOptions{Browser: cfg.Browser, Headless: cfg.Headless})
	if err != nil {
		return err
	}
	defer browser.Close()

	page, err := browser.NewSession(driver.PlaywrightOptions{
		BaseURL:           cfg.DashboardURL,
		DefaultTimeout:    cfg.DefaultTimeout,
		IgnoreHTTPSErrors: cfg.IgnoreHTTPSErrors,
		RunID:             obs.RunIDFromContext(ctx),
	})
	if err != nil {
		return err
	}
	defer page.Close()

	var store *artifacts.Store
	if cfg.ArtifactsEnabled() {
		store, err = artifacts.New(ctx, artifacts.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.ArtifactsBucket,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			return err
		}
	}

	d := driver.WithAuditLog(driver.WithPacing(page, cfg.Pacing()))
	runner := commands.NewRunner(d, commands.Options{
		LoginTimeout:   cfg.LoginTimeout,
		DefaultTimeout: cfg.DefaultTimeout,
	})
	err = RunSmoke(ctx, runner, s)
	return artifacts.CaptureOnFailure(ctx, store, page, "smoke-"+s.Spec.Name, err)
}
