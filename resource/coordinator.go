package resource

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/promptforge/promptforge/events"
	"github.com/promptforge/promptforge/logger"
)

// reloadRate bounds how fast a coordinator re-parses resources during
// filesystem churn (e.g. a git checkout touching every manifest).
var reloadRate = rate.Limit(20)

// Applier binds a coordinator to a concrete registry: Apply swaps a freshly
// loaded entry in, Remove drops an ID. Apply returning an error means the
// entry was rejected and the previous definition stays active.
type Applier interface {
	Apply(entry *Entry) error
	Remove(id string) bool
}

// Coordinator drives hot reload for one registry: it consumes watcher
// changes, re-loads and re-validates the affected resource, and atomically
// swaps the registry entry on success. On failure the previous entry is
// retained and the error logged.
type Coordinator struct {
	kind    Kind
	root    string
	applier Applier
	tracker *ChangeTracker
	emitter *events.Emitter
	watcher *Watcher
	limiter *rate.Limiter
}

// NewCoordinator creates a coordinator for the given registry root.
// tracker and emitter are optional.
func NewCoordinator(kind Kind, root string, applier Applier, tracker *ChangeTracker, emitter *events.Emitter) *Coordinator {
	return &Coordinator{
		kind:    kind,
		root:    root,
		applier: applier,
		tracker: tracker,
		emitter: emitter,
		limiter: rate.NewLimiter(reloadRate, 5),
	}
}

// Start begins watching the root. It returns once the watcher is installed;
// reload handling runs in a background goroutine until ctx is cancelled or
// Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	w, err := NewWatcher(c.root)
	if err != nil {
		return err
	}
	c.watcher = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-w.C:
				if !ok {
					return
				}
				if err := c.limiter.Wait(ctx); err != nil {
					return
				}
				c.handle(change)
			}
		}
	}()
	return nil
}

// Stop halts watching.
func (c *Coordinator) Stop() {
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
}

// handle applies a single coalesced change to the registry.
func (c *Coordinator) handle(change Change) {
	switch change.Type {
	case ChangeRemoved:
		if c.applier.Remove(change.ID) {
			logger.ResourceReload(string(c.kind), change.ID, string(change.Type))
			c.record(change)
			c.emitter.ResourceChanged(string(c.kind), change.ID, string(change.Type), string(OriginFilesystem))
		}
		return

	case ChangeAdded, ChangeModified:
		entry, err := LoadEntry(change.Dir, c.kind)
		if err != nil {
			// Keep serving the previous definition.
			logger.Warn("hot reload rejected",
				"kind", c.kind, "id", change.ID, "error", err)
			return
		}
		if err := c.applier.Apply(entry); err != nil {
			logger.Warn("hot reload apply failed",
				"kind", c.kind, "id", change.ID, "error", err)
			return
		}
		logger.ResourceReload(string(c.kind), change.ID, string(change.Type))
		c.record(change)
		c.emitter.ResourceChanged(string(c.kind), change.ID, string(change.Type), string(OriginFilesystem))
	}
}

func (c *Coordinator) record(change Change) {
	if c.tracker == nil {
		return
	}
	var err error
	if change.Type == ChangeRemoved {
		err = c.tracker.Forget(change.Path)
	} else {
		err = c.tracker.Record(change.Path, OriginFilesystem)
	}
	if err != nil {
		logger.Warn("change journal update failed", "path", change.Path, "error", err)
	}
}
