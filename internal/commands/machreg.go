package commands

import (
	"context"
	"regexp"
	"time"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

var registrationURL = regexp.MustCompile(machreg.RegistrationURLPattern)

const (
	listingLink     = "Machine Registrations"
	actionMenu      = "div.actions > .role-multi-action"
	yamlEditor      = ".yaml-editor"
	yamlAnchor      = "metadata"
	emptyListMarker = "There are no rows to show"
)

// CreateMachReg creates a registration, asserts its detail page and then
// verifies every label and annotation through the YAML view. The browser
// must be on a page with the main navigation.
func (r *Runner) CreateMachReg(ctx context.Context, spec machreg.Spec) (err error) {
	const name = "createMachReg"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()

	if err := spec.Validate(); err != nil {
		return err
	}
	if err := r.ClickNavMenu(ctx, "Dashboard"); err != nil {
		return err
	}
	if err := r.ClickButton(ctx, "Create Machine Registration"); err != nil {
		return err
	}

	switch target := spec.Target().(type) {
	case machreg.DefaultNamespace:
		err = r.fillDefaultNamespace(ctx, spec.Name)
	case machreg.NewNamespace:
		err = r.fillNewNamespace(ctx, target.Name, spec.Name)
	default:
		err = errs.New(errs.InvalidArgument, "unknown namespace target")
	}
	if err != nil {
		return err
	}

	for _, kv := range spec.Labels {
		if err := r.AddMachRegLabel(ctx, kv); err != nil {
			return err
		}
	}
	for _, kv := range spec.Annotations {
		if err := r.AddMachRegAnnotation(ctx, kv); err != nil {
			return err
		}
	}
	if err := r.ClickButton(ctx, "Create"); err != nil {
		return err
	}

	for _, q := range []driver.Query{
		driver.Get(".masthead").HasText(machreg.StatusBanner(spec.Name)),
		driver.Get(".masthead").HasText(machreg.NamespaceBanner(spec.Target().Namespace())),
		driver.Get(".mt-40 > .col").HasTextMatching(registrationURL),
	} {
		if err := r.d.WaitFor(ctx, q, r.waitOpts(driver.WaitAttached)); err != nil {
			return err
		}
	}
	for _, pc := range machreg.PendingChecks {
		obs.From(ctx).Warn("check_skipped", "pkg", "commands", "check", pc.Name, "reason", pc.Reason, "issue", pc.Issue)
	}

	if err := r.d.Click(ctx, driver.Text(listingLink), driver.ClickOptions{}); err != nil {
		return err
	}
	for _, kv := range spec.Labels {
		if err := r.CheckMachRegLabel(ctx, spec.Name, kv); err != nil {
			return err
		}
	}
	for _, kv := range spec.Annotations {
		if err := r.CheckMachRegAnnotation(ctx, spec.Name, kv); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) fillDefaultNamespace(ctx context.Context, name string) error {
	return r.TypeValue(ctx, TypeValueOptions{Label: "Name", Value: name})
}

// fillNewNamespace relies on the create form's tab order: two tabs lead
// from the new namespace input to the Name input.
func (r *Runner) fillNewNamespace(ctx context.Context, namespace, name string) error {
	if err := r.d.Click(ctx, driver.Get("div.vs__selected-options").Nth(0), driver.ClickOptions{}); err != nil {
		return err
	}
	if err := r.d.Click(ctx, driver.Get("li.vs__dropdown-option").HasText("Create a New Namespace"), driver.ClickOptions{}); err != nil {
		return err
	}
	nsInput := driver.Get(":nth-child(1) > .labeled-input").Find("input")
	if err := r.d.Type(ctx, nsInput, driver.EscapeKeys(namespace), driver.TypeOptions{}); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		if err := r.d.Press(ctx, driver.Focused(), "Tab"); err != nil {
			return err
		}
	}
	return r.d.Type(ctx, driver.Focused(), driver.EscapeKeys(name), driver.TypeOptions{})
}

// AddMachRegLabel appends a label row to the open form.
func (r *Runner) AddMachRegLabel(ctx context.Context, kv machreg.KeyValue) (err error) {
	const name = "addMachRegLabel"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()
	return r.addKeyValue(ctx, "Add Label", "Labels", kv)
}

// AddMachRegAnnotation appends an annotation row to the open form.
func (r *Runner) AddMachRegAnnotation(ctx context.Context, kv machreg.KeyValue) (err error) {
	const name = "addMachRegAnnotation"
	start := time.Now()
	ctx = r.begin(ctx, name)
	defer func() { err = r.end(ctx, name, start, err) }()
	return r.addKeyValue(ctx, "Add Annotation", "Annotations", kv)
}

func (r *Runner) addKeyValue(ctx context.Context, button, section string, kv machreg.KeyValue) error {
	if err := kv.Validate(); err != nil {
		return err
	}
	if err := r.ClickButton(ctx, button); err != nil {
		return err
	}
	row := driver.Get(".row").HasText(section)
	if err := r.d.Type(ctx, row.Find(".kv-item.key").Last(), driver.EscapeKeys(kv.Key), driver.TypeOptions{}); err != nil {
		return err
	}
	return r.d.Type(ctx, row.Find(".kv-item.value").Last(), driver.EscapeKeys(kv.Value), driver.TypeOptions{})
}

// openActionMenu opens the registration's detail page and its action menu.
func (r *Runner) openActionMenu(ctx context.Context, name string) error {
	if err := r.d.Click(ctx, driver.Text(name), driver.ClickOptions{}); err != nil {
		return err
	}
	return r.d.Click(ctx, driver.Get(actionMenu), driver.ClickOptions{})
}

func (r *Runner) openYAML(ctx context.Context, name string) error {
	if err := r.openActionMenu(ctx, name); err != nil {
		return err
	}
	if err := r.d.Click(ctx, driver.Get("li").HasText("Edit YAML"), driver.ClickOptions{}); err != nil {
		return err
	}
	return r.d.WaitFor(ctx, driver.Text(machreg.TitleBanner(name)), r.waitOpts(driver.WaitAttached))
}

// CheckMachRegLabel asserts the YAML view of registration name shows the
// label, then cancels. It never saves.
func (r *Runner) CheckMachRegLabel(ctx context.Context, name string, kv machreg.KeyValue) (err error) {
	const seq = "checkMachRegLabel"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()
	return r.checkYAMLLine(ctx, name, kv)
}

// CheckMachRegAnnotation asserts the YAML view of registration name shows
// the annotation, then cancels. It never saves.
func (r *Runner) CheckMachRegAnnotation(ctx context.Context, name string, kv machreg.KeyValue) (err error) {
	const seq = "checkMachRegAnnotation"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()
	return r.checkYAMLLine(ctx, name, kv)
}

func (r *Runner) checkYAMLLine(ctx context.Context, name string, kv machreg.KeyValue) error {
	if name == "" {
		return errs.New(errs.InvalidArgument, "registration name is required")
	}
	if err := kv.Validate(); err != nil {
		return err
	}
	if err := r.openYAML(ctx, name); err != nil {
		return err
	}
	if err := r.d.WaitFor(ctx, driver.Text(kv.YAMLLine()), r.waitOpts(driver.WaitAttached)); err != nil {
		return err
	}
	return r.ClickButton(ctx, "Cancel")
}

// ReadMachRegYAML opens the YAML view of registration name, parses it and
// cancels.
func (r *Runner) ReadMachRegYAML(ctx context.Context, name string) (doc machreg.Document, err error) {
	const seq = "readMachRegYAML"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()

	if name == "" {
		return machreg.Document{}, errs.New(errs.InvalidArgument, "registration name is required")
	}
	if err := r.openYAML(ctx, name); err != nil {
		return machreg.Document{}, err
	}
	text, err := r.d.InnerText(ctx, driver.Get(yamlEditor))
	if err != nil {
		return machreg.Document{}, err
	}
	doc, err = machreg.ParseDocument(text)
	if err != nil {
		return machreg.Document{}, err
	}
	if err := r.ClickButton(ctx, "Cancel"); err != nil {
		return machreg.Document{}, err
	}
	return doc, nil
}

// EditOptions tunes EditMachReg.
type EditOptions struct {
	// Save clicks Save after the edit. Without it the edit is left open
	// for the caller to finish.
	Save bool
}

// EditMachReg opens registration name for editing and applies mode.
func (r *Runner) EditMachReg(ctx context.Context, name string, mode machreg.EditMode, opts EditOptions) (err error) {
	const seq = "editMachReg"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()

	if name == "" {
		return errs.New(errs.InvalidArgument, "registration name is required")
	}
	if err := machreg.ValidateEdit(mode); err != nil {
		return err
	}
	if err := r.openActionMenu(ctx, name); err != nil {
		return err
	}

	switch m := mode.(type) {
	case machreg.EditYAML:
		err = r.editYAML(ctx, m)
	case machreg.EditForm:
		err = r.editForm(ctx, m)
	default:
		err = errs.New(errs.InvalidArgument, "unknown edit mode")
	}
	if err != nil || !opts.Save {
		return err
	}
	return r.ClickButton(ctx, "Save")
}

func (r *Runner) editYAML(ctx context.Context, m machreg.EditYAML) error {
	if err := r.d.Click(ctx, driver.Get("li").HasText("Edit YAML"), driver.ClickOptions{}); err != nil {
		return err
	}
	blocks := []string{
		machreg.InsertBlock(machreg.SectionLabels, m.Labels),
		machreg.InsertBlock(machreg.SectionAnnotations, m.Annotations),
	}
	for _, keys := range blocks {
		if keys == "" {
			continue
		}
		if err := r.d.Click(ctx, driver.Text(yamlAnchor), driver.ClickOptions{Position: &driver.Point{}}); err != nil {
			return err
		}
		if err := r.d.Type(ctx, driver.Focused(), keys, driver.TypeOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) editForm(ctx context.Context, m machreg.EditForm) error {
	if err := r.d.Click(ctx, driver.Get("li").HasText("Edit Config"), driver.ClickOptions{}); err != nil {
		return err
	}
	for _, kv := range m.Labels {
		if err := r.AddMachRegLabel(ctx, kv); err != nil {
			return err
		}
	}
	for _, kv := range m.Annotations {
		if err := r.AddMachRegAnnotation(ctx, kv); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMachReg deletes registration name from the listing and asserts it is gone.
func (r *Runner) DeleteMachReg(ctx context.Context, name string) (err error) {
	const seq = "deleteMachReg"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()

	if name == "" {
		return errs.New(errs.InvalidArgument, "registration name is required")
	}
	if err := r.d.Click(ctx, driver.Text(listingLink), driver.ClickOptions{}); err != nil {
		return err
	}
	if err := r.d.Click(ctx, driver.Text(name).Parent().Parent(), driver.ClickOptions{}); err != nil {
		return err
	}
	if err := r.ClickButton(ctx, "Delete"); err != nil {
		return err
	}
	if err := r.ConfirmDelete(ctx); err != nil {
		return err
	}
	return r.d.WaitFor(ctx, driver.Text(name), r.waitOpts(driver.WaitDetached))
}

// DeleteAllMachReg selects every registration in the listing, deletes them
// and asserts the listing is empty. The browser must be on the Elemental
// dashboard page.
func (r *Runner) DeleteAllMachReg(ctx context.Context) (err error) {
	const seq = "deleteAllMachReg"
	start := time.Now()
	ctx = r.begin(ctx, seq)
	defer func() { err = r.end(ctx, seq, start, err) }()

	if err := r.ClickButton(ctx, "Manage Machine Registrations"); err != nil {
		return err
	}
	if err := r.d.Click(ctx, driver.Get(`[width="30"] > .checkbox-outer-container`), driver.ClickOptions{}); err != nil {
		return err
	}
	if err := r.ClickButton(ctx, "Delete"); err != nil {
		return err
	}
	if err := r.ConfirmDelete(ctx); err != nil {
		return err
	}
	return r.d.WaitFor(ctx, driver.Text(emptyListMarker), r.waitOpts(driver.WaitAttached))
}
