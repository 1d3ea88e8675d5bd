package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/machreg-e2e/internal/commands"
	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

// Scenario is one smoke run against a dashboard.
type Scenario struct {
	Credentials commands.Credentials
	Spec        machreg.Spec
	// EditLabels are added through the config form after creation and
	// then checked in the YAML view.
	EditLabels []machreg.KeyValue
	// Keep leaves the registration in place.
	Keep bool
}

// RunSmoke logs in, creates and verifies a registration, optionally edits
// it, and deletes it unless Keep is set.
func RunSmoke(ctx context.Context, r *commands.Runner, s Scenario) error {
	logger := obs.From(ctx).With("pkg", "cli")

	if err := r.Login(ctx, s.Credentials); err != nil {
		return err
	}
	if err := r.CreateMachReg(ctx, s.Spec); err != nil {
		return err
	}
	if len(s.EditLabels) > 0 {
		if err := r.EditMachReg(ctx, s.Spec.Name, machreg.EditForm{Labels: s.EditLabels}, commands.EditOptions{Save: true}); err != nil {
			return err
		}
		if err := r.ClickNavMenu(ctx, "Machine Registrations"); err != nil {
			return err
		}
		for _, kv := range s.EditLabels {
			if err := r.CheckMachRegLabel(ctx, s.Spec.Name, kv); err != nil {
				return err
			}
		}
	}
	if s.Keep {
		logger.Info("registration_kept", "name", s.Spec.Name, "namespace", s.Spec.Target().Namespace())
		return nil
	}
	return r.DeleteMachReg(ctx, s.Spec.Name)
}

// ParseKeyValues parses key=value flags.
func ParseKeyValues(flags []string) ([]machreg.KeyValue, error) {
	out := make([]machreg.KeyValue, 0, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("expected key=value, got %q", f))
		}
		kv := machreg.KeyValue{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}
		if err := kv.Validate(); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, nil
}
