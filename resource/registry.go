package resource

import (
	"sort"
	"strings"
	"sync"
)

// Named is implemented by every definition stored in a Registry.
type Named interface {
	ResourceID() string
	ResourceName() string
}

// Registry is a hot-swappable store of definitions keyed case-insensitively
// by ID and by name. Readers receive the definition pointer current at call
// time; a concurrent Swap replaces the map entry without mutating the value a
// reader already holds, so an in-flight request never observes a
// half-reloaded definition.
type Registry[T Named] struct {
	mu      sync.RWMutex
	byID    map[string]T
	nameIdx map[string]string // lower(name) -> lower(id)
}

// NewRegistry creates an empty registry.
func NewRegistry[T Named]() *Registry[T] {
	return &Registry[T]{
		byID:    make(map[string]T),
		nameIdx: make(map[string]string),
	}
}

// Get returns the definition for the given ID or name, case-insensitively.
func (r *Registry[T]) Get(idOrName string) (T, bool) {
	key := strings.ToLower(idOrName)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.byID[key]; ok {
		return def, true
	}
	if id, ok := r.nameIdx[key]; ok {
		def, ok := r.byID[id]
		return def, ok
	}
	var zero T
	return zero, false
}

// Swap inserts or atomically replaces the definition for def's ID.
func (r *Registry[T]) Swap(def T) {
	id := strings.ToLower(def.ResourceID())

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[id]; ok {
		delete(r.nameIdx, strings.ToLower(old.ResourceName()))
	}
	r.byID[id] = def
	if name := strings.ToLower(def.ResourceName()); name != "" && name != id {
		r.nameIdx[name] = id
	}
}

// Remove deletes the definition with the given ID. Returns false if absent.
func (r *Registry[T]) Remove(id string) bool {
	key := strings.ToLower(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.byID[key]
	if !ok {
		return false
	}
	delete(r.byID, key)
	delete(r.nameIdx, strings.ToLower(def.ResourceName()))
	return true
}

// IDs returns all registered IDs, sorted.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every registered definition in ID order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defs := make([]T, 0, len(ids))
	for _, id := range ids {
		defs = append(defs, r.byID[id])
	}
	return defs
}

// Len returns the number of registered definitions.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// maxSuggestionDistance is the edit-distance ceiling for Suggest matches.
const maxSuggestionDistance = 3

// Suggest returns registered IDs close to the given unknown ID, nearest
// first. Used to build "did you mean" hints on ResourceNotFound errors.
func (r *Registry[T]) Suggest(unknown string) []string {
	target := strings.ToLower(unknown)

	type candidate struct {
		id   string
		dist int
	}

	r.mu.RLock()
	var candidates []candidate
	for id := range r.byID {
		d := levenshtein(target, id)
		// Prefix matches are good suggestions regardless of length delta.
		if strings.HasPrefix(id, target) && d > maxSuggestionDistance {
			d = maxSuggestionDistance
		}
		if d <= maxSuggestionDistance {
			candidates = append(candidates, candidate{id: id, dist: d})
		}
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.id)
	}
	return out
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
