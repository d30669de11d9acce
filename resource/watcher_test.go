package resource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectChanges(t *testing.T, w *Watcher) (get func() []Change) {
	t.Helper()
	var mu sync.Mutex
	var changes []Change
	go func() {
		for c := range w.C {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		}
	}()
	return func() []Change {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Change, len(changes))
		copy(out, changes)
		return out
	}
}

func waitForChanges(t *testing.T, get func() []Change, n int) []Change {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cs := get(); len(cs) >= n {
			return cs
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d changes, got %v", n, get())
	return nil
}

func TestWatcherReportsModification(t *testing.T) {
	root := t.TempDir()
	dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

	w, err := NewWatcher(root)
	require.NoError(t, err)
	defer w.Close()
	get := collectChanges(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.yaml"),
		[]byte(validPromptManifest+"\n# touched\n"), 0o600))

	changes := waitForChanges(t, get, 1)
	assert.Equal(t, "greet", changes[0].ID)
	assert.Contains(t, []ChangeType{ChangeModified, ChangeAdded}, changes[0].Type)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

	w, err := NewWatcher(root)
	require.NoError(t, err)
	defer w.Close()
	get := collectChanges(t, w)

	// A burst of writes within the debounce window yields one change.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.yaml"),
			[]byte(validPromptManifest), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	changes := waitForChanges(t, get, 1)
	time.Sleep(2 * debounceWindow)
	assert.Len(t, get(), len(changes))
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

	w, err := NewWatcher(root)
	require.NoError(t, err)
	defer w.Close()
	get := collectChanges(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	time.Sleep(2 * debounceWindow)
	assert.Empty(t, get())
}

func TestCloseRacesPendingDebounce(t *testing.T) {
	// Close while debounce timers are firing must not send on the closed
	// channel. Repeated rounds give a fired-but-unsent callback a chance to
	// overlap Close.
	for i := 0; i < 10; i++ {
		root := t.TempDir()
		dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

		w, err := NewWatcher(root)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.yaml"),
			[]byte(validPromptManifest), 0o600))
		time.Sleep(debounceWindow - 10*time.Millisecond)

		require.NoError(t, w.Close())
		for range w.C {
			// Drain whatever made it out before the close.
		}
	}
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []string
	removed []string
	fail    bool
}

func (f *fakeApplier) Apply(entry *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.applied = append(f.applied, entry.Manifest.ID())
	return nil
}

func (f *fakeApplier) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return true
}

func (f *fakeApplier) appliedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.applied))
	copy(out, f.applied)
	return out
}

func TestCoordinatorReloadsOnChange(t *testing.T) {
	root := t.TempDir()
	dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

	applier := &fakeApplier{}
	coord := NewCoordinator(KindPrompt, root, applier, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, coord.Start(ctx))
	defer coord.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.yaml"),
		[]byte(validPromptManifest), 0o600))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(applier.appliedIDs()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Contains(t, applier.appliedIDs(), "greet")
}

func TestCoordinatorRetainsOldEntryOnParseFailure(t *testing.T) {
	root := t.TempDir()
	dir := writeResource(t, root, "prompt", "greet", validPromptManifest, nil)

	applier := &fakeApplier{}
	coord := NewCoordinator(KindPrompt, root, applier, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, coord.Start(ctx))
	defer coord.Stop()

	// Corrupt the manifest: the applier must not see a new entry.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.yaml"),
		[]byte("not: [valid"), 0o600))

	time.Sleep(3 * debounceWindow)
	assert.Empty(t, applier.appliedIDs())
}
