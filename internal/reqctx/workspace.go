package reqctx

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Workspace is a concurrent key-value store shared across an agent
// hierarchy for passing data between agents without a central owner.
// Backed by xsync.MapOf, a lock-free sharded map, the Go analogue of the
// DashMap used for the same purpose elsewhere in the corpus. Workspace is a
// thin value wrapper around a pointer, so copying it (as RequestContext.Child
// does) shares the same underlying map.
type Workspace struct {
	inner *xsync.MapOf[string, any]
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() Workspace {
	return Workspace{inner: xsync.NewMapOf[string, any]()}
}

// Get returns the value at key, or nil and false if absent.
func (w Workspace) Get(key string) (any, bool) {
	return w.inner.Load(key)
}

// Set inserts or overwrites a key-value pair.
func (w Workspace) Set(key string, value any) {
	w.inner.Store(key, value)
}

// Remove deletes a key and returns its prior value, if present.
func (w Workspace) Remove(key string) (any, bool) {
	return w.inner.LoadAndDelete(key)
}

// Contains reports whether a key exists.
func (w Workspace) Contains(key string) bool {
	_, ok := w.inner.Load(key)
	return ok
}

// Keys returns a snapshot of all current keys.
func (w Workspace) Keys() []string {
	keys := make([]string, 0, w.inner.Size())
	w.inner.Range(func(k string, _ any) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Len returns the number of entries in the workspace.
func (w Workspace) Len() int { return w.inner.Size() }

// IsEmpty reports whether the workspace has no entries.
func (w Workspace) IsEmpty() bool { return w.inner.Size() == 0 }
