package gate

import (
	"fmt"

	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/resource"
	"github.com/promptforge/promptforge/types"
)

// spec mirrors the YAML shape of a gate manifest's spec block.
type spec struct {
	Name            string          `yaml:"name"`
	Type            Type            `yaml:"type"`
	Severity        Severity        `yaml:"severity"`
	EnforcementMode EnforcementMode `yaml:"enforcement_mode"`
	GateKind        GateKind        `yaml:"gate_type"`
	Description     string          `yaml:"description"`
	Guidance        string          `yaml:"guidance"`
	PassCriteria    []PassCriterion `yaml:"pass_criteria"`
	Activation      Activation      `yaml:"activation"`
	Retry           RetryConfig     `yaml:"retry"`
}

// FromEntry builds a Definition from a loaded resource entry. The
// guidance.md companion supplies guidance text when the spec omits it.
func FromEntry(entry *resource.Entry) (*Definition, error) {
	var s spec
	if err := entry.Manifest.DecodeSpec(&s); err != nil {
		return nil, fmt.Errorf("gate %q: %w", entry.Manifest.ID(), err)
	}

	def := &Definition{
		ID:              entry.Manifest.ID(),
		Name:            s.Name,
		Type:            s.Type,
		Severity:        s.Severity,
		EnforcementMode: s.EnforcementMode,
		GateKind:        s.GateKind,
		Description:     s.Description,
		Guidance:        s.Guidance,
		PassCriteria:    s.PassCriteria,
		Activation:      s.Activation,
		Retry:           s.Retry,
	}

	if guidance, ok := entry.Companions[resource.CompanionGuidance]; ok && def.Guidance == "" {
		def.Guidance = guidance
	}
	if def.Severity == "" {
		def.Severity = SeverityMedium
	}
	if def.EnforcementMode == "" {
		def.EnforcementMode = EnforcementAdvisory
	}
	if def.GateKind == "" {
		def.GateKind = KindCustom
	}
	if def.Type == TypeValidation && len(def.PassCriteria) == 0 {
		return nil, fmt.Errorf("validation gate %q declares no pass criteria", def.ID)
	}

	return def, nil
}

// FromSpec builds an inline gate from a request's GateSpec: a quick
// name+description guidance gate or a full definition map.
func FromSpec(id string, gs types.GateSpec) (*Definition, error) {
	if len(gs.Definition) > 0 {
		return fromMap(id, gs.Definition)
	}
	if gs.Name == "" {
		return nil, fmt.Errorf("inline gate needs a name or definition")
	}
	return &Definition{
		ID:              id,
		Name:            gs.Name,
		Type:            TypeGuidance,
		Severity:        SeverityMedium,
		EnforcementMode: EnforcementAdvisory,
		GateKind:        KindCustom,
		Guidance:        gs.Description,
	}, nil
}

// fromMap decodes a full inline definition expressed as a generic map.
func fromMap(id string, m map[string]interface{}) (*Definition, error) {
	def := &Definition{
		ID:              id,
		Type:            TypeGuidance,
		Severity:        SeverityMedium,
		EnforcementMode: EnforcementAdvisory,
		GateKind:        KindCustom,
	}
	if v, ok := m["name"].(string); ok {
		def.Name = v
	}
	if v, ok := m["type"].(string); ok {
		def.Type = Type(v)
	}
	if v, ok := m["severity"].(string); ok {
		def.Severity = Severity(v)
	}
	if v, ok := m["enforcement_mode"].(string); ok {
		def.EnforcementMode = EnforcementMode(v)
	}
	if v, ok := m["guidance"].(string); ok {
		def.Guidance = v
	}
	if v, ok := m["description"].(string); ok {
		def.Description = v
	}
	if raw, ok := m["pass_criteria"].([]interface{}); ok {
		for _, item := range raw {
			cm, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			pc := PassCriterion{}
			if check, ok := cm["check"].(string); ok {
				pc.Check = check
			}
			if params, ok := cm["params"].(map[string]interface{}); ok {
				pc.Params = params
			}
			if pc.Check != "" {
				def.PassCriteria = append(def.PassCriteria, pc)
			}
		}
	}
	if def.Name == "" {
		return nil, fmt.Errorf("inline gate definition is missing name")
	}
	return def, nil
}

// Registry is the hot-reloadable gate store.
type Registry struct {
	store *resource.Registry[*Definition]
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{store: resource.NewRegistry[*Definition]()}
}

// LoadRoot scans a resource root and registers every valid gate.
func (r *Registry) LoadRoot(root string) error {
	entries, errs := resource.ScanRoot(root, resource.KindGate)
	for _, err := range errs {
		logger.Warn("skipping invalid gate", "error", err)
	}
	if entries == nil && len(errs) > 0 {
		return fmt.Errorf("gate root %s yielded no valid gates: %w", root, errs[0])
	}
	for _, entry := range entries {
		def, err := FromEntry(entry)
		if err != nil {
			logger.Warn("skipping invalid gate", "error", err)
			continue
		}
		r.store.Swap(def)
	}
	return nil
}

// Get returns the gate with the given ID or name.
func (r *Registry) Get(idOrName string) (*Definition, bool) { return r.store.Get(idOrName) }

// IDs returns all registered gate IDs, sorted.
func (r *Registry) IDs() []string { return r.store.IDs() }

// All returns every registered gate.
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
