package resource

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Spec schemas, keyed by kind. Validation happens on the decoded YAML before
// the per-kind loaders bind the spec to their definition structs, so a
// malformed manifest is rejected with field-level messages instead of a
// half-populated definition.
var specSchemas = map[Kind]string{
	KindPrompt: `{
		"type": "object",
		"required": ["name", "category"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"category": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"system_message": {"type": "string"},
			"user_message_template": {"type": "string"},
			"arguments": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"type": {"enum": ["string", "number", "boolean", "array", "object"]},
						"required": {"type": "boolean"},
						"description": {"type": "string"},
						"default": {},
						"validation": {
							"type": "object",
							"properties": {
								"min_length": {"type": "integer", "minimum": 0},
								"max_length": {"type": "integer", "minimum": 0},
								"pattern": {"type": "string"}
							}
						}
					}
				}
			},
			"chain_steps": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["prompt_id"],
					"properties": {
						"prompt_id": {"type": "string", "minLength": 1},
						"variable_name": {"type": "string"},
						"args": {"type": "object"},
						"input_mapping": {"type": "object"},
						"output_mapping": {"type": "object"},
						"retries": {"type": "integer", "minimum": 0}
					}
				}
			},
			"gates": {
				"type": "object",
				"properties": {
					"include": {"type": "array", "items": {"type": "string"}},
					"exclude": {"type": "array", "items": {"type": "string"}},
					"framework_gates": {"type": "boolean"}
				}
			},
			"script_tools": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "command"],
					"properties": {
						"id": {"type": "string", "minLength": 1},
						"command": {"type": "string", "minLength": 1},
						"mode": {"enum": ["auto", "confirm", "manual", "auto_approve_on_valid"]},
						"triggers": {"type": "array", "items": {"type": "string"}}
					}
				}
			}
		}
	}`,

	KindGate: `{
		"type": "object",
		"required": ["name", "type"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"type": {"enum": ["validation", "guidance"]},
			"severity": {"enum": ["critical", "high", "medium", "low"]},
			"enforcement_mode": {"enum": ["blocking", "advisory", "informational"]},
			"gate_type": {"enum": ["framework", "category", "custom"]},
			"description": {"type": "string"},
			"guidance": {"type": "string"},
			"pass_criteria": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["check"],
					"properties": {
						"check": {"type": "string", "minLength": 1},
						"params": {"type": "object"}
					}
				}
			},
			"activation": {
				"type": "object",
				"properties": {
					"prompt_categories": {"type": "array", "items": {"type": "string"}},
					"framework_context": {"type": "array", "items": {"type": "string"}},
					"explicit_request": {"type": "boolean"}
				}
			},
			"retry": {
				"type": "object",
				"properties": {
					"max_attempts": {"type": "integer", "minimum": 0},
					"improvement_hints": {"type": "array", "items": {"type": "string"}},
					"preserve_context": {"type": "boolean"}
				}
			}
		}
	}`,

	KindStyle: `{
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"guidance": {"type": "string"},
			"enhancement_mode": {"enum": ["prepend", "append", "replace"]},
			"priority": {"type": "integer"},
			"enabled": {"type": "boolean"},
			"compatible_frameworks": {"type": "array", "items": {"type": "string"}},
			"activation": {
				"type": "object",
				"properties": {
					"prompt_categories": {"type": "array", "items": {"type": "string"}},
					"framework_context": {"type": "array", "items": {"type": "string"}},
					"explicit_request": {"type": "boolean"}
				}
			}
		}
	}`,

	KindMethodology: `{
		"type": "object",
		"required": ["name", "type"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"type": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"system_prompt_template": {"type": "string"},
			"step_guidance": {"type": "object"},
			"template_guidance": {"type": "object"}
		}
	}`,
}

// ValidateManifest checks the manifest spec against the JSON schema for its
// kind. The YAML spec node is decoded to a generic value first; yaml.v3
// produces string-keyed maps, which gojsonschema consumes directly.
func ValidateManifest(m *Manifest, kind Kind) error {
	schemaText, ok := specSchemas[kind]
	if !ok {
		return fmt.Errorf("no schema registered for kind %q", kind)
	}

	var spec interface{}
	if err := m.DecodeSpec(&spec); err != nil {
		return err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaText),
		gojsonschema.NewGoLoader(spec),
	)
	if err != nil {
		return fmt.Errorf("schema validation for %q: %w", m.ID(), err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("manifest %q failed schema validation: %s", m.ID(), strings.Join(msgs, "; "))
	}

	return nil
}
