// Package resource provides the shared on-disk resource infrastructure:
// manifest parsing, root directory resolution, schema validation, content
// hash journaling, filesystem watching, and a hot-swappable registry used by
// the prompt, gate, framework, and style loaders.
//
// Resources live in directories under resources/{prompts,gates,styles,
// methodologies}/<id>/ each containing a primary <kind>.yaml manifest plus
// optional companion files (guidance.md, user-message.md) inlined into the
// definition on load.
package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Kind identifies a resource family.
type Kind string

const (
	KindPrompt      Kind = "prompt"
	KindGate        Kind = "gate"
	KindStyle       Kind = "style"
	KindMethodology Kind = "methodology"
)

// Dir returns the directory name under the resource root for this kind.
func (k Kind) Dir() string {
	switch k {
	case KindPrompt:
		return "prompts"
	case KindGate:
		return "gates"
	case KindStyle:
		return "styles"
	case KindMethodology:
		return "methodologies"
	}
	return string(k)
}

// apiGroup is the manifest apiVersion group accepted by the loaders.
const apiGroup = "promptforge.io"

// supportedVersions constrains the manifest spec version field.
var supportedVersions = func() *semver.Constraints {
	c, err := semver.NewConstraint(">= 1.0.0, < 2.0.0")
	if err != nil {
		panic(err)
	}
	return c
}()

// Manifest is the k8s-style envelope every resource YAML uses. Spec decoding
// is deferred to the per-kind loaders via the raw node.
type Manifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata"`
	Spec       yaml.Node         `yaml:"spec"`
}

// ID returns the resource identifier: metadata.name.
func (m *Manifest) ID() string {
	return m.Metadata.Name
}

// DecodeSpec decodes the manifest's spec into out.
func (m *Manifest) DecodeSpec(out interface{}) error {
	if m.Spec.Kind == 0 {
		return fmt.Errorf("manifest %q has no spec", m.ID())
	}
	return m.Spec.Decode(out)
}

// ParseManifest parses and sanity-checks a manifest document.
func ParseManifest(data []byte, expectKind Kind) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	group, version, ok := strings.Cut(m.APIVersion, "/")
	if !ok || group != apiGroup {
		return nil, fmt.Errorf("unsupported apiVersion %q (want %s/v<semver>)", m.APIVersion, apiGroup)
	}
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid apiVersion %q: %w", m.APIVersion, err)
	}
	if !supportedVersions.Check(v) {
		return nil, fmt.Errorf("apiVersion %q outside supported range %s", m.APIVersion, supportedVersions)
	}

	if !strings.EqualFold(m.Kind, string(expectKind)) {
		return nil, fmt.Errorf("manifest kind %q, expected %q", m.Kind, expectKind)
	}
	if m.Metadata.Name == "" {
		return nil, fmt.Errorf("manifest is missing metadata.name")
	}

	return &m, nil
}

// envVarFor returns the environment variable that overrides the root for a
// given kind, e.g. MCP_PROMPTS_PATH.
func envVarFor(kind Kind) string {
	return "MCP_" + strings.ToUpper(kind.Dir()) + "_PATH"
}

// anchorFiles mark a project root during upward traversal.
var anchorFiles = []string{"promptforge.yaml", "go.mod", "package.json"}

// fallbackRoots are tried relative to the working directory as a last resort.
var fallbackRoots = []string{"resources", "../resources", "../../resources"}

// ResolveRoot locates the directory holding resources of the given kind.
//
// Resolution order:
//  1. MCP_<KIND>_PATH environment variable (points directly at the kind dir)
//  2. explicit base directory, if non-empty: <base>/<kind-dir>
//  3. walk up from the working directory looking for an anchor file with a
//     resources/ sibling
//  4. known relative fallbacks
func ResolveRoot(base string, kind Kind) (string, error) {
	if env := os.Getenv(envVarFor(kind)); env != "" {
		return env, nil
	}

	if base != "" {
		return filepath.Join(base, kind.Dir()), nil
	}

	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for {
			for _, anchor := range anchorFiles {
				if _, err := os.Stat(filepath.Join(dir, anchor)); err == nil {
					candidate := filepath.Join(dir, "resources", kind.Dir())
					if info, err := os.Stat(candidate); err == nil && info.IsDir() {
						return candidate, nil
					}
				}
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	for _, fallback := range fallbackRoots {
		candidate := filepath.Join(fallback, kind.Dir())
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no resource root found for kind %q (set %s)", kind, envVarFor(kind))
}
