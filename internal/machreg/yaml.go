package machreg

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/machreg-e2e/internal/driver"
	"github.com/kuitang/machreg-e2e/internal/errs"
)

// Section names a top-level metadata map edited through the YAML view.
type Section string

const (
	SectionLabels      Section = "labels"
	SectionAnnotations Section = "annotations"
)

// InsertBlock returns the key sequence that, typed with the caret on the
// metadata line, appends a new section under metadata. The editor keeps
// the current indentation on Enter, so the block is written relative to it.
// Returns "" when pairs is empty.
func InsertBlock(section Section, pairs []KeyValue) string {
	if len(pairs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{end}{enter}  ")
	b.WriteString(driver.EscapeKeys(string(section)))
	b.WriteString(":{enter}  ")
	for i, kv := range pairs {
		if i > 0 {
			b.WriteString("{enter}")
		}
		b.WriteString(driver.EscapeKeys(kv.YAMLLine()))
	}
	return b.String()
}

// Document is the part of a registration manifest the sequences inspect.
type Document struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       struct {
		MachineName            string            `yaml:"machineName,omitempty"`
		MachineInventoryLabels map[string]string `yaml:"machineInventoryLabels,omitempty"`
		Config                 map[string]any    `yaml:"config,omitempty"`
	} `yaml:"spec"`
	Status struct {
		RegistrationURL   string `yaml:"registrationURL,omitempty"`
		RegistrationToken string `yaml:"registrationToken,omitempty"`
	} `yaml:"status"`
}

// Metadata is the manifest metadata block.
type Metadata struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// ParseDocument parses the text of the YAML view. Non-breaking spaces left
// by the editor are treated as spaces.
func ParseDocument(text string) (Document, error) {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	var doc Document
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return Document{}, errs.Wrap(errs.AssertionFailed, "parse registration yaml", err)
	}
	if doc.Metadata.Name == "" {
		return Document{}, errs.New(errs.AssertionFailed, "registration yaml has no metadata.name")
	}
	return doc, nil
}

// HasLabel reports whether the manifest carries the label.
func (d Document) HasLabel(kv KeyValue) bool {
	v, ok := d.Metadata.Labels[kv.Key]
	return ok && v == kv.Value
}

// HasAnnotation reports whether the manifest carries the annotation.
func (d Document) HasAnnotation(kv KeyValue) bool {
	v, ok := d.Metadata.Annotations[kv.Key]
	return ok && v == kv.Value
}
