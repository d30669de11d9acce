package framework

import (
	"fmt"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/resource"
)

// FromEntry builds a Definition from a loaded methodology entry. The
// guidance.md companion supplies the guidance text when the spec omits it.
func FromEntry(entry *resource.Entry) (*Definition, error) {
	var def Definition
	if err := entry.Manifest.DecodeSpec(&def); err != nil {
		return nil, fmt.Errorf("methodology %q: %w", entry.Manifest.ID(), err)
	}
	def.ID = entry.Manifest.ID()
	if g, ok := entry.Companions[resource.CompanionGuidance]; ok && def.Guidance == "" {
		def.Guidance = g
	}
	if def.Marker == "" {
		def.Marker = markerFor(def.Name)
	}
	return &def, nil
}

// Registry is the hot-reloadable methodology store, pre-seeded with the
// built-in methodologies.
type Registry struct {
	store *resource.Registry[*Definition]
}

// NewRegistry creates a registry seeded with the built-in methodologies.
func NewRegistry() *Registry {
	r := &Registry{store: resource.NewRegistry[*Definition]()}
	for _, def := range builtinDefinitions() {
		r.store.Swap(def)
	}
	return r
}

// LoadRoot scans a methodology root; manifests with built-in IDs replace the
// built-in definitions. A missing root is not an error since the built-ins
// already cover the standard methodologies.
func (r *Registry) LoadRoot(root string) error {
	entries, errs := resource.ScanRoot(root, resource.KindMethodology)
	for _, err := range errs {
		logger.Warn("skipping invalid methodology", "error", err)
	}
	for _, entry := range entries {
		def, err := FromEntry(entry)
		if err != nil {
			logger.Warn("skipping invalid methodology", "error", err)
			continue
		}
		r.store.Swap(def)
	}
	return nil
}

// Get returns the methodology with the given ID or name.
func (r *Registry) Get(idOrName string) (*Definition, bool) { return r.store.Get(idOrName) }

// IDs returns all registered methodology IDs, sorted.
func (r *Registry) IDs() []string { return r.store.IDs() }

// All returns every registered methodology.
func (r *Registry) All() []*Definition { return r.store.All() }

// Suggest returns IDs close to an unknown ID for error hints.
func (r *Registry) Suggest(unknown string) []string { return r.store.Suggest(unknown) }

// Register inserts or replaces a definition directly.
func (r *Registry) Register(def *Definition) { r.store.Swap(def) }

// Apply implements resource.Applier.
func (r *Registry) Apply(entry *resource.Entry) error {
	def, err := FromEntry(entry)
	if err != nil {
		return err
	}
	r.store.Swap(def)
	return nil
}

// Remove implements resource.Applier.
func (r *Registry) Remove(id string) bool { return r.store.Remove(id) }
