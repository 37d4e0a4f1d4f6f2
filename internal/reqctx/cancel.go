package reqctx

import (
	"context"
	"sync/atomic"
)

// CancelTree is a parent-pointer tree of atomic cancellation flags. A node
// observes cancellation if itself or any ancestor has been cancelled.
// Cancelling a node cancels it and every descendant, but never an ancestor
// or a sibling subtree.
//
// Go's context.Context alone can't express this: a plain
// context.WithCancel parent/child pair already gives cancel-propagates-down,
// but a node here needs to report its own state without walking back through
// a context chain the caller may not hold a reference to, and needs an
// explicit handle to cancel a whole subtree from anywhere that holds it. Each
// node still carries a derived context.Context for interop with APIs (HTTP
// clients, database drivers) that require one.
type CancelTree struct {
	cancelled *atomic.Bool
	parent    *CancelTree
	ctx       context.Context
	cancelFn  context.CancelFunc
}

// NewCancelTree creates a root node, deriving its context from ctx.
func NewCancelTree(ctx context.Context) *CancelTree {
	if ctx == nil {
		ctx = context.Background()
	}
	derived, cancel := context.WithCancel(ctx)
	return &CancelTree{
		cancelled: &atomic.Bool{},
		ctx:       derived,
		cancelFn:  cancel,
	}
}

// Child derives a new node whose cancellation is independent of siblings
// but which observes cancellation of this node and all of its ancestors.
func (t *CancelTree) Child() *CancelTree {
	derived, cancel := context.WithCancel(t.ctx)
	return &CancelTree{
		cancelled: &atomic.Bool{},
		parent:    t,
		ctx:       derived,
		cancelFn:  cancel,
	}
}

// Context returns the context.Context for this node, cancelled when this
// node or any ancestor is cancelled.
func (t *CancelTree) Context() context.Context { return t.ctx }

// IsCancelled reports whether this node or any ancestor has been cancelled.
func (t *CancelTree) IsCancelled() bool {
	for n := t; n != nil; n = n.parent {
		if n.cancelled.Load() {
			return true
		}
	}
	return false
}

// Cancel marks this node (and transitively every descendant, since their
// IsCancelled walks back up to this node) as cancelled.
func (t *CancelTree) Cancel() {
	t.cancelled.Store(true)
	t.cancelFn()
}

// Done returns a channel closed when this node's own derived context is
// cancelled — directly, or because an ancestor's Cancel() call unwound the
// context chain.
func (t *CancelTree) Done() <-chan struct{} { return t.ctx.Done() }
