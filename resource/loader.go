package resource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Companion file names inlined into definitions at load time.
const (
	CompanionGuidance    = "guidance.md"
	CompanionUserMessage = "user-message.md"
)

// Entry is one loaded resource: its parsed manifest plus companion file
// contents keyed by file name.
type Entry struct {
	Manifest   *Manifest
	Dir        string
	Path       string
	Companions map[string]string
}

// LoadEntry reads a single resource directory: <dir>/<kind>.yaml plus any
// companion files.
func LoadEntry(dir string, kind Kind) (*Entry, error) {
	path := filepath.Join(dir, string(kind)+".yaml")
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	manifest, err := ParseManifest(data, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := ValidateManifest(manifest, kind); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	entry := &Entry{
		Manifest:   manifest,
		Dir:        dir,
		Path:       path,
		Companions: make(map[string]string),
	}

	for _, name := range []string{CompanionGuidance, CompanionUserMessage} {
		companionPath := filepath.Join(dir, name)
		content, err := os.ReadFile(filepath.Clean(companionPath))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading companion %s: %w", companionPath, err)
		}
		entry.Companions[name] = string(content)
	}

	return entry, nil
}

// ScanRoot loads every resource directory under root. Directories whose
// manifest fails to parse or validate are reported in errs but do not abort
// the scan; a registry boots with the valid subset.
func ScanRoot(root string, kind Kind) (entries []*Entry, errs []error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{fmt.Errorf("reading resource root %s: %w", root, err)}
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := LoadEntry(filepath.Join(root, name), kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}
