// Package style provides output style definitions and the hot-reloadable
// style registry. A style carries guidance text merged into the rendered
// prompt by the style application stage.
package style

import (
	"fmt"
	"sort"
	"strings"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/resource"
)

// EnhancementMode controls how style guidance merges with rendered content.
type EnhancementMode string

const (
	ModePrepend EnhancementMode = "prepend"
	ModeAppend  EnhancementMode = "append"
	ModeReplace EnhancementMode = "replace"
)

// Activation declares when a style auto-applies, mirroring gate activation.
type Activation struct {
	PromptCategories []string `yaml:"prompt_categories" json:"prompt_categories,omitempty"`
	FrameworkContext []string `yaml:"framework_context" json:"framework_context,omitempty"`
	ExplicitRequest  bool     `yaml:"explicit_request" json:"explicit_request,omitempty"`
}

// Definition is a fully loaded style.
type Definition struct {
	ID                   string          `yaml:"-" json:"id"`
	Name                 string          `yaml:"name" json:"name"`
	Guidance             string          `yaml:"guidance" json:"guidance,omitempty"`
	EnhancementMode      EnhancementMode `yaml:"enhancement_mode" json:"enhancement_mode"`
	Priority             int             `yaml:"priority" json:"priority,omitempty"`
	Enabled              *bool           `yaml:"enabled" json:"enabled,omitempty"`
	Activation           Activation      `yaml:"activation" json:"activation"`
	CompatibleFrameworks []string        `yaml:"compatible_frameworks" json:"compatible_frameworks,omitempty"`
}

// ResourceID implements resource.Named.
func (d *Definition) ResourceID() string { return d.ID }

// ResourceName implements resource.Named.
func (d *Definition) ResourceName() string { return d.Name }

var _ resource.Named = (*Definition)(nil)

// IsEnabled reports whether the style may be applied. Styles default on.
func (d *Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// CompatibleWith reports whether the style may combine with a methodology.
// An empty compatibility list means compatible with everything.
func (d *Definition) CompatibleWith(frameworkID string) bool {
	if len(d.CompatibleFrameworks) == 0 {
		return true
	}
	for _, f := range d.CompatibleFrameworks {
		if strings.EqualFold(f, frameworkID) {
			return true
		}
	}
	return false
}

// ActivatesFor reports whether the style auto-applies to a prompt category.
func (d *Definition) ActivatesFor(category string) bool {
	for _, c := range d.Activation.PromptCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Apply merges the style guidance into content per the enhancement mode.
// Disabled styles and styles without guidance are no-ops.
func (d *Definition) Apply(content string) string {
	if !d.IsEnabled() || d.Guidance == "" {
		return content
	}
	switch d.EnhancementMode {
	case ModePrepend, "":
		return d.Guidance + "\n\n" + content
	case ModeAppend:
		return content + "\n\n" + d.Guidance
	case ModeReplace:
		return d.Guidance
	}
	return content
}

// FromEntry builds a Definition from a loaded style entry. The guidance.md
// companion supplies guidance text when the spec omits it.
func FromEntry(entry *resource.Entry) (*Definition, error) {
	var def Definition
	if err := entry.Manifest.DecodeSpec(&def); err != nil {
		return nil, fmt.Errorf("style %q: %w", entry.Manifest.ID(), err)
	}
	def.ID = entry.Manifest.ID()
	if g, ok := entry.Companions[resource.CompanionGuidance]; ok && def.Guidance == "" {
		def.Guidance = g
	}
	if def.Guidance == "" {
		return nil, fmt.Errorf("style %q has no guidance", def.ID)
	}
	return &def, nil
}

// Registry is the hot-reloadable style store.
type Registry struct {
	store *resource.Registry[*Definition]
}

// NewRegistry creates an empty style registry.
func NewRegistry() *Registry {
	return &Registry{store: resource.NewRegistry[*Definition]()}
}

// LoadRoot scans a style root and registers every valid style. A missing
// root is not an error; styles are optional.
func (r *Registry) LoadRoot(root string) error {
	entries, errs := resource.ScanRoot(root, resource.KindStyle)
	for _, err := range errs {
		logger.Warn("skipping invalid style", "error", err)
	}
	for _, entry := range entries {
		def, err := FromEntry(entry)
		if err != nil {
			logger.Warn("skipping invalid style", "error", err)
			continue
		}
		r.store.Swap(def)
	}
	return nil
}

// Get returns the style with the given ID or name.
func (r *Registry) Get(idOrName string) (*Definition, bool) { return r.store.Get(idOrName) }

// IDs returns all registered style IDs, sorted.
func (r *Registry) IDs() []string { return r.store.IDs() }

// All returns every registered style.
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

// ActiveFor selects the styles that auto-apply for a category and framework,
// highest priority first. Explicitly selected styles bypass this path.
func (r *Registry) ActiveFor(category, frameworkID string) []*Definition {
	var active []*Definition
	for _, def := range r.store.All() {
		if !def.IsEnabled() || def.Activation.ExplicitRequest {
			continue
		}
		if !def.ActivatesFor(category) || !def.CompatibleWith(frameworkID) {
			continue
		}
		active = append(active, def)
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})
	return active
}
