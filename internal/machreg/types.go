// Package machreg holds the Machine Registration parameter bags the dashboard
// sequences take, plus the YAML helpers used to edit and inspect them.
package machreg

import (
	"fmt"
	"strings"

	"github.com/kuitang/machreg-e2e/internal/errs"
)

// DefaultNamespaceName is the namespace a registration lands in when none is chosen.
const DefaultNamespaceName = "fleet-default"

// KeyValue is one label or annotation.
type KeyValue struct {
	Key   string
	Value string
}

// DefaultLabel and DefaultAnnotation are the pairs the dashboard suite
// uses when a scenario only asks for "a label" or "an annotation".
var (
	DefaultLabel      = KeyValue{Key: "myLabel1", Value: "myLabelValue1"}
	DefaultAnnotation = KeyValue{Key: "myAnnotation1", Value: "myAnnotationValue1"}
)

// YAMLLine renders the pair the way the YAML view shows it.
func (kv KeyValue) YAMLLine() string {
	return kv.Key + ": " + kv.Value
}

func (kv KeyValue) String() string {
	return kv.YAMLLine()
}

// Validate rejects pairs the dashboard form would not accept.
func (kv KeyValue) Validate() error {
	if strings.TrimSpace(kv.Key) == "" {
		return errs.New(errs.InvalidArgument, "key is required")
	}
	if strings.TrimSpace(kv.Value) == "" {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("value for %q is required", kv.Key))
	}
	return nil
}

// NamespaceTarget selects where a new registration is created.
// It is either DefaultNamespace or NewNamespace.
type NamespaceTarget interface {
	// Namespace returns the namespace shown in the detail banner.
	Namespace() string
	isNamespaceTarget()
}

// DefaultNamespace targets fleet-default through the plain Name field.
type DefaultNamespace struct{}

func (DefaultNamespace) Namespace() string { return DefaultNamespaceName }
func (DefaultNamespace) isNamespaceTarget() {}

// NewNamespace creates Name through the namespace dropdown before naming
// the registration.
type NewNamespace struct {
	Name string
}

func (n NewNamespace) Namespace() string { return n.Name }
func (NewNamespace) isNamespaceTarget() {}

// NamespaceFor maps a namespace name to its target. "" and fleet-default
// select the default namespace.
func NamespaceFor(name string) NamespaceTarget {
	name = strings.TrimSpace(name)
	if name == "" || name == DefaultNamespaceName {
		return DefaultNamespace{}
	}
	return NewNamespace{Name: name}
}

// Spec describes a registration to create.
type Spec struct {
	Name        string
	Namespace   NamespaceTarget // nil means DefaultNamespace
	Labels      []KeyValue
	Annotations []KeyValue
}

// Target returns the namespace target, defaulting to DefaultNamespace.
func (s Spec) Target() NamespaceTarget {
	if s.Namespace == nil {
		return DefaultNamespace{}
	}
	return s.Namespace
}

// Validate checks the parameters up front so a bad call fails before any browser action.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errs.New(errs.InvalidArgument, "registration name is required")
	}
	if nn, ok := s.Target().(NewNamespace); ok && strings.TrimSpace(nn.Name) == "" {
		return errs.New(errs.InvalidArgument, "new namespace name is required")
	}
	for _, kv := range s.Labels {
		if err := kv.Validate(); err != nil {
			return errs.Wrap(errs.InvalidArgument, "label", err)
		}
	}
	for _, kv := range s.Annotations {
		if err := kv.Validate(); err != nil {
			return errs.Wrap(errs.InvalidArgument, "annotation", err)
		}
	}
	return nil
}

// EditMode selects the edit surface. It is either EditYAML or EditForm.
type EditMode interface {
	Pairs() (labels, annotations []KeyValue)
	isEditMode()
}

// EditYAML inserts label and annotation blocks as free text in the YAML editor.
type EditYAML struct {
	Labels      []KeyValue
	Annotations []KeyValue
}

func (e EditYAML) Pairs() ([]KeyValue, []KeyValue) { return e.Labels, e.Annotations }
func (EditYAML) isEditMode() {}

// EditForm adds pairs through the structured config form.
type EditForm struct {
	Labels      []KeyValue
	Annotations []KeyValue
}

func (e EditForm) Pairs() ([]KeyValue, []KeyValue) { return e.Labels, e.Annotations }
func (EditForm) isEditMode() {}

// ValidateEdit checks every pair of an edit mode.
func ValidateEdit(mode EditMode) error {
	if mode == nil {
		return errs.New(errs.InvalidArgument, "edit mode is required")
	}
	labels, annotations := mode.Pairs()
	for _, kv := range append(append([]KeyValue(nil), labels...), annotations...) {
		if err := kv.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StatusBanner is the masthead text of an active registration.
func StatusBanner(name string) string {
	return "Machine Registration: " + name + " Active"
}

// TitleBanner is the masthead title shown on every registration page.
func TitleBanner(name string) string {
	return "Machine Registration: " + name
}

// NamespaceBanner is the masthead namespace line.
func NamespaceBanner(namespace string) string {
	return "Namespace: " + namespace
}

// RegistrationURLPattern matches the registration endpoint shown on the detail page.
const RegistrationURLPattern = `https://.*elemental/registration`
