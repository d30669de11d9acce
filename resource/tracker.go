package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ChangeOrigin distinguishes who produced an on-disk change.
type ChangeOrigin string

const (
	// OriginFilesystem marks a change made outside the process (editor, git).
	OriginFilesystem ChangeOrigin = "filesystem"
	// OriginTool marks a change made by a tool surface of this process.
	OriginTool ChangeOrigin = "tool"
)

// JournalEntry records the last observed content hash for one file.
type JournalEntry struct {
	Hash       string       `json:"hash"`
	Origin     ChangeOrigin `json:"origin"`
	ObservedAt time.Time    `json:"observed_at"`
}

// ExternalChange describes a file whose content diverged from the journal
// while the process was down.
type ExternalChange struct {
	Path     string `json:"path"`
	OldHash  string `json:"old_hash,omitempty"`
	NewHash  string `json:"new_hash,omitempty"`
	Change   string `json:"change"` // added, modified, removed
	LastSeen time.Time
}

// ChangeTracker journals SHA-256 content hashes of resource files across
// restarts, distinguishing filesystem-origin changes from tool-driven edits.
// The journal is a single JSON file; writes are whole-file replacements.
type ChangeTracker struct {
	mu          sync.Mutex
	journalPath string
	entries     map[string]JournalEntry
}

// NewChangeTracker opens (or creates) a change journal at the given path.
func NewChangeTracker(journalPath string) (*ChangeTracker, error) {
	t := &ChangeTracker{
		journalPath: journalPath,
		entries:     make(map[string]JournalEntry),
	}

	data, err := os.ReadFile(filepath.Clean(journalPath))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("reading change journal: %w", err)
	}
	if err := json.Unmarshal(data, &t.entries); err != nil {
		return nil, fmt.Errorf("parsing change journal: %w", err)
	}
	return t, nil
}

// HashFile computes the SHA-256 content hash of a file.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Record journals the current content hash of path with the given origin.
// Removed files are journaled with an empty hash.
func (t *ChangeTracker) Record(path string, origin ChangeOrigin) error {
	hash, err := HashFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[path] = JournalEntry{
		Hash:       hash,
		Origin:     origin,
		ObservedAt: time.Now(),
	}
	return t.persistLocked()
}

// Forget drops a path from the journal (resource directory deleted).
func (t *ChangeTracker) Forget(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, path)
	return t.persistLocked()
}

// Entry returns the journal entry for a path.
func (t *ChangeTracker) Entry(path string) (JournalEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[path]
	return e, ok
}

// DetectExternalChanges compares the on-disk state of every YAML file under
// root against the journal and reports divergences: files changed, added, or
// removed while the process was down. Detected files are re-journaled with
// OriginFilesystem.
func (t *ChangeTracker) DetectExternalChanges(root string) ([]ExternalChange, error) {
	onDisk := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		hash, err := HashFile(path)
		if err != nil {
			return err
		}
		onDisk[path] = hash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var changes []ExternalChange
	for path, hash := range onDisk {
		entry, known := t.entries[path]
		switch {
		case !known:
			changes = append(changes, ExternalChange{Path: path, NewHash: hash, Change: "added"})
		case entry.Hash != hash:
			changes = append(changes, ExternalChange{
				Path:     path,
				OldHash:  entry.Hash,
				NewHash:  hash,
				Change:   "modified",
				LastSeen: entry.ObservedAt,
			})
		}
	}
	for path, entry := range t.entries {
		if !strings.HasPrefix(path, root) {
			continue
		}
		if _, exists := onDisk[path]; !exists && entry.Hash != "" {
			changes = append(changes, ExternalChange{
				Path:     path,
				OldHash:  entry.Hash,
				Change:   "removed",
				LastSeen: entry.ObservedAt,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	// Re-journal the observed state so the next startup is quiet.
	for path, hash := range onDisk {
		t.entries[path] = JournalEntry{Hash: hash, Origin: OriginFilesystem, ObservedAt: time.Now()}
	}
	for _, c := range changes {
		if c.Change == "removed" {
			delete(t.entries, c.Path)
		}
	}
	if err := t.persistLocked(); err != nil {
		return nil, err
	}

	return changes, nil
}

func (t *ChangeTracker) persistLocked() error {
	data, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.journalPath), 0o750); err != nil {
		return err
	}
	return os.WriteFile(t.journalPath, data, 0o600)
}
