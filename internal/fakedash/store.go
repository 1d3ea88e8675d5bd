package fakedash

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/machreg-e2e/internal/errs"
	"github.com/kuitang/machreg-e2e/internal/machreg"
)

const (
	apiVersion = "elemental.cattle.io/v1beta1"
	kind       = "MachineRegistration"
)

// Registration is one stored machine registration.
type Registration struct {
	Name        string
	Namespace   string
	Labels      map[string]string
	Annotations map[string]string
	Token       string
	CreatedAt   time.Time
}

// ID returns the namespace/name key of the registration.
func (r Registration) ID() string {
	return r.Namespace + "/" + r.Name
}

// Store holds registrations and namespaces in memory.
type Store struct {
	mu            sync.RWMutex
	registrations map[string]Registration
	namespaces    map[string]struct{}
}

// NewStore creates a store seeded with the default namespace.
func NewStore() *Store {
	return &Store{
		registrations: make(map[string]Registration),
		namespaces:    map[string]struct{}{machreg.DefaultNamespaceName: {}},
	}
}

// Create stores a new registration. The namespace must exist unless
// createNamespace is set.
func (s *Store) Create(reg Registration, createNamespace bool) (Registration, error) {
	if reg.Name == "" {
		return Registration{}, errs.New(errs.InvalidArgument, "registration name is required")
	}
	if reg.Namespace == "" {
		reg.Namespace = machreg.DefaultNamespaceName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[reg.Namespace]; !ok {
		if !createNamespace {
			return Registration{}, errs.New(errs.NotFound, fmt.Sprintf("namespace %q not found", reg.Namespace))
		}
		s.namespaces[reg.Namespace] = struct{}{}
	}
	if _, ok := s.registrations[reg.ID()]; ok {
		return Registration{}, errs.New(errs.InvalidArgument, fmt.Sprintf("registration %q already exists", reg.ID()))
	}
	reg.Labels = cloneOrEmpty(reg.Labels)
	reg.Annotations = cloneOrEmpty(reg.Annotations)
	reg.Token = uuid.NewString()
	reg.CreatedAt = time.Now().UTC()
	s.registrations[reg.ID()] = reg
	return reg, nil
}

// Get returns the registration namespace/name.
func (s *Store) Get(namespace, name string) (Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registrations[namespace+"/"+name]
	if !ok {
		return Registration{}, errs.New(errs.NotFound, fmt.Sprintf("registration %s/%s not found", namespace, name))
	}
	return reg, nil
}

// List returns all registrations ordered by namespace then name.
func (s *Store) List() []Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Values(s.registrations))
	slices.SortFunc(out, func(a, b Registration) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

// Namespaces returns the known namespaces, sorted.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.namespaces))
}

// SetMetadata replaces the labels and annotations of a registration.
func (s *Store) SetMetadata(namespace, name string, labels, annotations map[string]string) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := namespace + "/" + name
	reg, ok := s.registrations[id]
	if !ok {
		return Registration{}, errs.New(errs.NotFound, fmt.Sprintf("registration %s not found", id))
	}
	reg.Labels = cloneOrEmpty(labels)
	reg.Annotations = cloneOrEmpty(annotations)
	s.registrations[id] = reg
	return reg, nil
}

// Delete removes the registration namespace/name.
func (s *Store) Delete(namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := namespace + "/" + name
	if _, ok := s.registrations[id]; !ok {
		return errs.New(errs.NotFound, fmt.Sprintf("registration %s not found", id))
	}
	delete(s.registrations, id)
	return nil
}

// Manifest renders the registration as the YAML shown in the editor.
func (r Registration) Manifest(registrationURL string) (string, error) {
	var doc machreg.Document
	doc.APIVersion = apiVersion
	doc.Kind = kind
	doc.Metadata = machreg.Metadata{
		Name:        r.Name,
		Namespace:   r.Namespace,
		Labels:      r.Labels,
		Annotations: r.Annotations,
	}
	doc.Spec.MachineName = "${System Information/Manufacturer}-${System Information/UUID}"
	doc.Spec.Config = map[string]any{
		"cloud-config": map[string]any{
			"users": []any{map[string]any{"name": "root", "passwd": "root"}},
		},
		"elemental": map[string]any{
			"install": map[string]any{"device": "/dev/sda", "reboot": true},
		},
	}
	doc.Status.RegistrationURL = registrationURL
	doc.Status.RegistrationToken = r.Token

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return buf.String(), nil
}

func cloneOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
