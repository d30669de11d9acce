package prompt

import (
	"fmt"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/resource"
)

// Registry is the hot-reloadable prompt store. Lookup is case-insensitive by
// ID and by name. It implements resource.Applier for the hot-reload
// coordinator and template.PromptResolver for {{ref:}} inclusion.
type Registry struct {
	store *resource.Registry[*Definition]
}

// NewRegistry creates an empty prompt registry.
func NewRegistry() *Registry {
	return &Registry{store: resource.NewRegistry[*Definition]()}
}

// LoadRoot scans a resource root and registers every valid prompt.
// Invalid entries are logged and skipped.
func (r *Registry) LoadRoot(root string) error {
	entries, errs := resource.ScanRoot(root, resource.KindPrompt)
	for _, err := range errs {
		logger.Warn("skipping invalid prompt", "error", err)
	}
	if entries == nil && len(errs) > 0 {
		return fmt.Errorf("prompt root %s yielded no valid prompts: %w", root, errs[0])
	}
	for _, entry := range entries {
		def, err := FromEntry(entry)
		if err != nil {
			logger.Warn("skipping invalid prompt", "error", err)
			continue
		}
		r.store.Swap(def)
	}
	return nil
}

// Get returns the prompt with the given ID or name.
func (r *Registry) Get(idOrName string) (*Definition, bool) {
	return r.store.Get(idOrName)
}

// IDs returns all registered prompt IDs, sorted.
func (r *Registry) IDs() []string { return r.store.IDs() }

// All returns every registered prompt.
func (r *Registry) All() []*Definition { return r.store.All() }

// Len returns the number of registered prompts.
func (r *Registry) Len() int { return r.store.Len() }

// Suggest returns IDs close to an unknown ID for error hints.
func (r *Registry) Suggest(unknown string) []string { return r.store.Suggest(unknown) }

// Register inserts or replaces a definition directly (tests, tool edits).
func (r *Registry) Register(def *Definition) { r.store.Swap(def) }

// Apply implements resource.Applier: parse and swap a reloaded entry.
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

// ResolveTemplate implements template.PromptResolver: {{ref:id}} inlines the
// referenced prompt's user message template.
func (r *Registry) ResolveTemplate(id string) (string, error) {
	def, ok := r.store.Get(id)
	if !ok {
		return "", fmt.Errorf("prompt %q not found", id)
	}
	return def.UserMessageTemplate, nil
}
